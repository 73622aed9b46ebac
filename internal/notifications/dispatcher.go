package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/internal/email"
	"github.com/simcheck/simcheck-backend/internal/push"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type pusher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, msg push.Message) (push.Result, error)
}

type mailer interface {
	SendTransactional(ctx context.Context, msg email.Message) (enums.EmailSendStatus, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type sendMarker interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Delivery channels, also used as suffixes of send marks.
const (
	channelInApp = "in_app"
	channelPush  = "push"
	channelEmail = "email"
)

// Notice is one event rendered for every delivery channel.
type Notice struct {
	Type    enums.NotificationType
	UserID  *uuid.UUID
	Admin   bool
	Title   string
	Message string
	Link    string

	// GuestEmail receives the email when there is no account to notify.
	GuestEmail   string
	EmailSubject string
	CTAText      string
	InAppOnly    bool

	// Key identifies the notice across redeliveries of its event. Each
	// channel is sent at most once per key while the send mark lives.
	Key string
}

// Dispatcher writes the in-app notification and fans out to push and email
// according to the recipient's preferences.
type Dispatcher struct {
	repo      Repository
	profiles  profileLookup
	push      pusher
	mail      mailer
	sent      sendMarker
	publicURL string
	logg      *logger.Logger
}

// DispatcherParams wires the dispatcher. Sent may be nil, in which case a
// redelivered event sends every channel again.
type DispatcherParams struct {
	Repo      Repository
	Profiles  profileLookup
	Push      pusher
	Mail      mailer
	Sent      sendMarker
	PublicURL string
	Logger    *logger.Logger
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if p.Profiles == nil {
		return nil, fmt.Errorf("profile lookup required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{
		repo:      p.Repo,
		profiles:  p.Profiles,
		push:      p.Push,
		mail:      p.Mail,
		sent:      p.Sent,
		publicURL: strings.TrimRight(p.PublicURL, "/"),
		logg:      p.Logger,
	}, nil
}

// Deliver returns an error only when the in-app notification or the
// preference lookup fails. Push and email failures are logged. Channels
// already sent for n.Key are skipped.
func (d *Dispatcher) Deliver(ctx context.Context, n Notice) error {
	if n.Admin {
		return d.createInApp(ctx, n, &models.Notification{
			Audience: enums.NotificationAudienceAdmin,
			Type:     n.Type,
			Title:    n.Title,
			Message:  n.Message,
			Link:     optionalLink(n.Link),
		})
	}

	if n.UserID == nil {
		if n.GuestEmail != "" && !n.InAppOnly && d.claim(ctx, n, channelEmail) {
			d.sendEmail(ctx, n, nil, n.GuestEmail, "")
		}
		return nil
	}

	userID := *n.UserID
	if err := d.createInApp(ctx, n, &models.Notification{
		UserID:   &userID,
		Audience: enums.NotificationAudienceUser,
		Type:     n.Type,
		Title:    n.Title,
		Message:  n.Message,
		Link:     optionalLink(n.Link),
	}); err != nil {
		return err
	}

	profile, err := d.profiles.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		d.logg.Warn(d.logg.WithUserID(ctx, userID.String()), "notification recipient has no profile")
		return nil
	}
	if profile.PushNotifications && d.push != nil && d.claim(ctx, n, channelPush) {
		if _, err := d.push.SendToUser(ctx, userID, push.Message{
			Title: n.Title,
			Body:  n.Message,
			URL:   n.Link,
			Tag:   string(n.Type),
		}); err != nil {
			d.logg.Error(d.logg.WithUserID(ctx, userID.String()), "push delivery failed", err)
		}
	}
	if profile.EmailNotifications && !n.InAppOnly && d.claim(ctx, n, channelEmail) {
		d.sendEmail(ctx, n, &userID, profile.Email, profile.FullName)
	}
	return nil
}

// createInApp writes the notification unless it was written for n.Key
// already. A failed write gives the mark back so the redelivery retries it.
func (d *Dispatcher) createInApp(ctx context.Context, n Notice, row *models.Notification) error {
	if !d.claim(ctx, n, channelInApp) {
		return nil
	}
	if err := d.repo.Create(ctx, row); err != nil {
		d.unclaim(ctx, n, channelInApp)
		return err
	}
	return nil
}

// claim reports whether channel still has to be sent for n. When the marker
// is unavailable the notice is sent.
func (d *Dispatcher) claim(ctx context.Context, n Notice, channel string) bool {
	if d.sent == nil || n.Key == "" {
		return true
	}
	fresh, err := d.sent.Claim(ctx, n.Key+":"+channel)
	if err != nil {
		d.logg.Error(d.logg.WithField(ctx, "channel", channel), "notification send mark unavailable", err)
		return true
	}
	return fresh
}

func (d *Dispatcher) unclaim(ctx context.Context, n Notice, channel string) {
	if d.sent == nil || n.Key == "" {
		return
	}
	if err := d.sent.Release(ctx, n.Key+":"+channel); err != nil {
		d.logg.Error(d.logg.WithField(ctx, "channel", channel), "notification send mark release failed", err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, n Notice, userID *uuid.UUID, to, name string) {
	if d.mail == nil || strings.TrimSpace(to) == "" {
		return
	}
	subject := n.EmailSubject
	if subject == "" {
		subject = n.Title
	}
	content := email.Content{Title: n.Title, Message: n.Message}
	if n.Link != "" {
		content.CTAText = n.CTAText
		if content.CTAText == "" {
			content.CTAText = "Open SimCheck"
		}
		content.CTAURL = d.absolute(n.Link)
	}
	status, err := d.mail.SendTransactional(ctx, email.Message{
		UserID:  userID,
		To:      to,
		Name:    name,
		Subject: subject,
		Content: content,
	})
	if err != nil {
		d.logg.Error(d.logg.WithField(ctx, "recipient", to), "notification email failed", err)
		return
	}
	if status == enums.EmailSkipped {
		d.logg.Info(d.logg.WithField(ctx, "recipient", to), "notification email deferred by warm-up")
	}
}

func (d *Dispatcher) absolute(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return d.publicURL + "/" + strings.TrimLeft(link, "/")
}

func optionalLink(link string) *string {
	if link == "" {
		return nil
	}
	return &link
}
