package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/sendpulse"
)

type capturingSender struct {
	sent []sendpulse.Email
	fail map[string]bool
}

func (c *capturingSender) Send(_ context.Context, msg sendpulse.Email) error {
	if c.fail[msg.ToEmail] {
		return errors.New("mailbox unavailable")
	}
	c.sent = append(c.sent, msg)
	return nil
}

type fixedAllowance struct {
	left int
}

func (f *fixedAllowance) Allow(context.Context, time.Time) (bool, error) {
	f.left--
	return f.left >= 0, nil
}

type emailHarness struct {
	db     *gorm.DB
	sender *capturingSender
	svc    Service
	now    time.Time
}

func newEmailHarness(t *testing.T, warmup allower) *emailHarness {
	t.Helper()
	h := &emailHarness{
		db:     dbtest.Open(t),
		sender: &capturingSender{fail: map[string]bool{}},
		now:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(h.db),
		Sender: h.sender,
		Warmup: warmup,
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Now:    func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *emailHarness) profile(t *testing.T, email string, credits int, marketing bool, created time.Time) {
	t.Helper()
	p := &models.Profile{Email: email, CreditBalance: credits, MarketingEmails: marketing, CreatedAt: created}
	require.NoError(t, h.db.Create(p).Error)
	require.NoError(t, h.db.Model(p).Update("marketing_emails", marketing).Error)
}

func TestCampaignAudiences(t *testing.T) {
	h := newEmailHarness(t, nil)
	old := h.now.Add(-90 * 24 * time.Hour)
	h.profile(t, "rich@example.com", 5, false, old)
	h.profile(t, "poor@example.com", 0, true, old)
	h.profile(t, "new@example.com", 0, false, h.now.Add(-time.Hour))

	cases := []struct {
		audience enums.EmailAudience
		want     []string
	}{
		{enums.AudienceAll, []string{"rich@example.com", "poor@example.com", "new@example.com"}},
		{enums.AudienceWithCredits, []string{"rich@example.com"}},
		{enums.AudienceWithoutCredits, []string{"poor@example.com", "new@example.com"}},
		{enums.AudienceMarketing, []string{"poor@example.com"}},
		{enums.AudienceRecent, []string{"new@example.com"}},
	}
	for _, tc := range cases {
		rows, err := NewRepository(h.db).Recipients(context.Background(), tc.audience, h.now)
		require.NoError(t, err)
		var got []string
		for _, r := range rows {
			got = append(got, r.Email)
		}
		require.ElementsMatch(t, tc.want, got, tc.audience)
	}
}

func TestCampaignSendsOneEmailPerRecipient(t *testing.T) {
	h := newEmailHarness(t, &fixedAllowance{left: 2})
	old := h.now.Add(-48 * time.Hour)
	h.profile(t, "a@example.com", 0, true, old)
	h.profile(t, "b@example.com", 0, false, old.Add(time.Minute))
	h.profile(t, "c@example.com", 0, true, old.Add(2*time.Minute))
	h.profile(t, "d@example.com", 0, true, old.Add(3*time.Minute))
	h.sender.fail["c@example.com"] = true

	summary, err := h.svc.SendCampaign(context.Background(), uuid.New(), CampaignInput{
		Type:     enums.EmailMarketing,
		Audience: enums.AudienceAll,
		Subject:  "Spring offer",
		Title:    "Save on scans",
		Message:  "First paragraph.\n\nSecond paragraph.",
		CTAText:  "Buy credits",
		CTAURL:   "https://simcheck.app/pricing",
	})
	require.NoError(t, err)
	require.Equal(t, 4, summary.Recipients)
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 1, summary.Failed)

	require.Len(t, h.sender.sent, 1)
	require.Equal(t, "a@example.com", h.sender.sent[0].ToEmail)
	require.Contains(t, h.sender.sent[0].HTML, "https://simcheck.app/pricing")
	require.Contains(t, h.sender.sent[0].HTML, "<p style")

	logs, err := h.svc.CampaignLogs(context.Background(), summary.CampaignID)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	reasons := map[string]string{}
	for _, l := range logs {
		reason := ""
		if l.Reason != nil {
			reason = *l.Reason
		}
		reasons[l.Recipient] = string(l.Status) + "|" + reason
	}
	require.Equal(t, "skipped|"+ReasonMarketingOff, reasons["b@example.com"])
	require.True(t, strings.HasPrefix(reasons["c@example.com"], "failed|"))
	require.Equal(t, "skipped|"+ReasonWarmup, reasons["d@example.com"])

	var campaign models.EmailCampaign
	require.NoError(t, h.db.First(&campaign, "id = ?", summary.CampaignID).Error)
	require.Equal(t, 1, campaign.Sent)
	require.Equal(t, 2, campaign.Skipped)
}

func TestCampaignValidation(t *testing.T) {
	h := newEmailHarness(t, nil)
	_, err := h.svc.SendCampaign(context.Background(), uuid.New(), CampaignInput{Type: "spam", Audience: enums.AudienceAll, Subject: "s", Title: "t", Message: "m"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = h.svc.SendCampaign(context.Background(), uuid.New(), CampaignInput{Type: enums.EmailAnnouncement, Audience: "everyone", Subject: "s", Title: "t", Message: "m"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	page, err := h.svc.ListCampaigns(context.Background(), 10, "")
	require.NoError(t, err)
	require.Empty(t, page.Items)
}

func TestTransactionalSkippedByWarmup(t *testing.T) {
	h := newEmailHarness(t, &fixedAllowance{left: 1})
	msg := Message{To: "x@example.com", Subject: "Report ready", Content: Content{Title: "Done", Message: "Your report is ready."}}

	status, err := h.svc.SendTransactional(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, enums.EmailSent, status)

	status, err = h.svc.SendTransactional(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, enums.EmailSkipped, status)

	_, err = h.svc.SendTransactional(context.Background(), Message{})
	require.Error(t, err)
}

func TestRenderEscapesContent(t *testing.T) {
	html, text, err := Render(Content{Title: "<b>Hi</b>", Message: "line one\n\nline two", CTAText: "Open", CTAURL: "https://simcheck.app"})
	require.NoError(t, err)
	require.NotContains(t, html, "<b>Hi</b>")
	require.Contains(t, html, "&lt;b&gt;Hi&lt;/b&gt;")
	require.Equal(t, 2, strings.Count(html, "line "))
	require.Contains(t, text, "Open: https://simcheck.app")
}
