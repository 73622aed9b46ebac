package email

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/sendpulse"
)

const (
	ReasonWarmup       = "warm-up cap reached"
	ReasonMarketingOff = "marketing emails disabled"
)

type repository interface {
	CreateCampaign(ctx context.Context, c *models.EmailCampaign) error
	FinishCampaign(ctx context.Context, id uuid.UUID, sent, skipped, failed int) error
	InsertLog(ctx context.Context, log *models.EmailLog) error
	ListCampaigns(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.EmailCampaign, error)
	ListLogs(ctx context.Context, campaignID uuid.UUID) ([]models.EmailLog, error)
	Recipients(ctx context.Context, audience enums.EmailAudience, now time.Time) ([]Recipient, error)
}

type sender interface {
	Send(ctx context.Context, msg sendpulse.Email) error
}

type allower interface {
	Allow(ctx context.Context, now time.Time) (bool, error)
}

type recorder interface {
	Email(result string)
}

// Message is a single transactional email.
type Message struct {
	UserID  *uuid.UUID
	To      string
	Name    string
	Subject string
	Content
}

// CampaignInput is the admin send request.
type CampaignInput struct {
	Type     enums.EmailType     `json:"type" validate:"required"`
	Audience enums.EmailAudience `json:"targetAudience" validate:"required"`
	Subject  string              `json:"subject" validate:"required,max=200"`
	Title    string              `json:"title" validate:"required,max=200"`
	Message  string              `json:"message" validate:"required"`
	CTAText  string              `json:"ctaText" validate:"omitempty,max=80"`
	CTAURL   string              `json:"ctaUrl" validate:"omitempty,url"`
}

// CampaignSummary reports what happened to every recipient.
type CampaignSummary struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Recipients int       `json:"recipients"`
	Sent       int       `json:"sent"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

type Service interface {
	SendTransactional(ctx context.Context, msg Message) (enums.EmailSendStatus, error)
	SendCampaign(ctx context.Context, adminID uuid.UUID, input CampaignInput) (*CampaignSummary, error)
	ListCampaigns(ctx context.Context, limit int, cursor string) (*pagination.Page[models.EmailCampaign], error)
	CampaignLogs(ctx context.Context, campaignID uuid.UUID) ([]models.EmailLog, error)
}

type ServiceParams struct {
	Repo    repository
	Sender  sender
	Warmup  allower
	Metrics recorder
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    repository
	sender  sender
	warmup  allower
	metrics recorder
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "email repository required")
	}
	if p.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "email sender required")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{repo: p.Repo, sender: p.Sender, warmup: p.Warmup, metrics: p.Metrics, logg: p.Logger, now: p.Now}, nil
}

func (s *service) SendTransactional(ctx context.Context, msg Message) (enums.EmailSendStatus, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "recipient email required")
	}
	return s.deliver(ctx, nil, msg)
}

// deliver sends one message and writes its log row. Warm-up refusals are
// reported as skipped with a nil error.
func (s *service) deliver(ctx context.Context, campaignID *uuid.UUID, msg Message) (enums.EmailSendStatus, error) {
	status, reason, sendErr := s.attempt(ctx, msg)
	entry := &models.EmailLog{
		CampaignID: campaignID,
		UserID:     msg.UserID,
		Recipient:  msg.To,
		Subject:    msg.Subject,
		Status:     status,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if err := s.repo.InsertLog(ctx, entry); err != nil {
		s.logg.Error(ctx, "failed to write email log", err)
	}
	if s.metrics != nil {
		s.metrics.Email(string(status))
	}
	return status, sendErr
}

func (s *service) attempt(ctx context.Context, msg Message) (enums.EmailSendStatus, string, error) {
	if s.warmup != nil {
		ok, err := s.warmup.Allow(ctx, s.now())
		if err != nil {
			return enums.EmailFailed, "warm-up counter unavailable", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check warm-up")
		}
		if !ok {
			s.logg.Warn(s.logg.WithField(ctx, "recipient", msg.To), "email skipped by warm-up cap")
			return enums.EmailSkipped, ReasonWarmup, nil
		}
	}
	html, text, err := Render(msg.Content)
	if err != nil {
		return enums.EmailFailed, "render failed", err
	}
	err = s.sender.Send(ctx, sendpulse.Email{
		ToEmail: msg.To,
		ToName:  msg.Name,
		Subject: msg.Subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return enums.EmailFailed, err.Error(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}
	return enums.EmailSent, "", nil
}

func (s *service) SendCampaign(ctx context.Context, adminID uuid.UUID, input CampaignInput) (*CampaignSummary, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	recipients, err := s.repo.Recipients(ctx, input.Audience, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipients")
	}
	campaign := &models.EmailCampaign{
		Type:      input.Type,
		Audience:  input.Audience,
		Subject:   input.Subject,
		Title:     input.Title,
		Message:   input.Message,
		CTAText:   optional(input.CTAText),
		CTAURL:    optional(input.CTAURL),
		CreatedBy: adminID,
	}
	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create campaign")
	}

	summary := &CampaignSummary{CampaignID: campaign.ID, Recipients: len(recipients)}
	content := Content{Title: input.Title, Message: input.Message, CTAText: input.CTAText, CTAURL: input.CTAURL}
	for _, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			break
		}
		userID := rcpt.ID
		msg := Message{UserID: &userID, To: rcpt.Email, Name: rcpt.FullName, Subject: input.Subject, Content: content}
		if input.Type == enums.EmailMarketing && !rcpt.MarketingEmails {
			reason := ReasonMarketingOff
			if err := s.repo.InsertLog(ctx, &models.EmailLog{
				CampaignID: &campaign.ID, UserID: &userID, Recipient: rcpt.Email, Subject: input.Subject,
				Status: enums.EmailSkipped, Reason: &reason,
			}); err != nil {
				s.logg.Error(ctx, "failed to write email log", err)
			}
			summary.Skipped++
			continue
		}
		status, sendErr := s.deliver(ctx, &campaign.ID, msg)
		switch status {
		case enums.EmailSent:
			summary.Sent++
		case enums.EmailSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			s.logg.Error(s.logg.WithField(ctx, "recipient", rcpt.Email), "campaign email failed", sendErr)
		}
	}

	if err := s.repo.FinishCampaign(ctx, campaign.ID, summary.Sent, summary.Skipped, summary.Failed); err != nil {
		s.logg.Error(ctx, "failed to store campaign summary", err)
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"campaign_id": campaign.ID.String(),
		"sent":        summary.Sent,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
	})
	s.logg.Info(logCtx, "email campaign finished")
	return summary, ctx.Err()
}

func (s *service) ListCampaigns(ctx context.Context, limit int, cursor string) (*pagination.Page[models.EmailCampaign], error) {
	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListCampaigns(ctx, limit, parsed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaigns")
	}
	page := pagination.Trim(rows, limit, func(c models.EmailCampaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return &page, nil
}

func (s *service) CampaignLogs(ctx context.Context, campaignID uuid.UUID) ([]models.EmailLog, error) {
	rows, err := s.repo.ListLogs(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list email logs")
	}
	return rows, nil
}

func (in CampaignInput) validate() error {
	if !in.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid email type")
	}
	if !in.Audience.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid target audience")
	}
	if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject, title and message are required")
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
