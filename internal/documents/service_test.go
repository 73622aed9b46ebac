package documents

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/storage"
)

type stubLinks struct {
	link      *models.MagicUploadLink
	resolveFn func(token string) error
	consumed  int
}

func (s *stubLinks) Resolve(ctx context.Context, token string) (*models.MagicUploadLink, error) {
	if s.resolveFn != nil {
		if err := s.resolveFn(token); err != nil {
			return nil, err
		}
	}
	return s.link, nil
}

func (s *stubLinks) Consume(ctx context.Context, tx *gorm.DB, token string) (*models.MagicUploadLink, error) {
	s.consumed++
	return s.link, nil
}

type harness struct {
	t      *testing.T
	client *db.Client
	store  *storage.MemoryStore
	links  *stubLinks
	svc    Service
	clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	ledger, err := credits.NewService(credits.NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	h := &harness{
		t:      t,
		client: client,
		store:  storage.NewMemoryStore(),
		links:  &stubLinks{link: &models.MagicUploadLink{ID: uuid.New(), ScanType: enums.ScanTypeSimilarityOnly}},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Tx:      client,
		Credits: ledger,
		Links:   h.links,
		Store:   h.store,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Options: Options{MaxUploadBytes: 1 << 20, LeaseDuration: 10 * time.Minute, MaxAttempts: 2},
		Now:     func() time.Time { return h.clock },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) profile(role enums.Role, full, similarity int) Actor {
	h.t.Helper()
	id := uuid.New()
	require.NoError(h.t, h.client.DB().Create(&models.Profile{
		ID:                      id,
		Email:                   id.String() + "@example.com",
		Role:                    role,
		CreditBalance:           full,
		SimilarityCreditBalance: similarity,
	}).Error)
	return Actor{UserID: id, Role: role}
}

func (h *harness) upload(actor Actor, scanType enums.ScanType, name string) *models.Document {
	h.t.Helper()
	doc, err := h.svc.Upload(context.Background(), actor, UploadInput{ScanType: scanType, File: pdf(name)})
	require.NoError(h.t, err)
	return doc
}

func (h *harness) events(eventType enums.OutboxEventType) int64 {
	var count int64
	require.NoError(h.t, h.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func pdf(name string) FileInput {
	body := "%PDF-1.4 " + name
	return FileInput{Name: name, ContentType: "application/pdf", Size: int64(len(body)), Body: strings.NewReader(body)}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	te := pkgerrors.As(err)
	require.NotNil(t, te, err.Error())
	require.Equal(t, code, te.Code(), err.Error())
}

func TestUploadConsumesCreditAndStoresFile(t *testing.T) {
	h := newHarness(t)
	customer := h.profile(enums.RoleCustomer, 1, 0)

	doc := h.upload(customer, enums.ScanTypeFull, "My Essay (1).pdf")
	require.Equal(t, enums.DocumentStatusPending, doc.Status)
	require.Equal(t, "my essay", doc.NormalizedName)
	require.True(t, h.store.Has(doc.FilePath))
	require.Contains(t, doc.FilePath, customer.UserID.String())

	var profile models.Profile
	require.NoError(t, h.client.DB().First(&profile, "id = ?", customer.UserID).Error)
	require.Zero(t, profile.CreditBalance)

	var usage models.CreditTransaction
	require.NoError(t, h.client.DB().First(&usage, "user_id = ?", customer.UserID).Error)
	require.Equal(t, enums.CreditUsage, usage.Type)
	require.Equal(t, doc.ID.String(), *usage.ReferenceID)
	require.EqualValues(t, 1, h.events(enums.EventDocumentUploaded))

	_, err := h.svc.Upload(context.Background(), customer, UploadInput{File: pdf("second.pdf")})
	requireCode(t, err, pkgerrors.CodeInsufficient)

	var docs int64
	require.NoError(t, h.client.DB().Model(&models.Document{}).Count(&docs).Error)
	require.EqualValues(t, 1, docs)
}

func TestUploadNormalizesOriginalNameForReportMatching(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 2, 0)
	repo := NewRepository(h.client.DB())

	cases := []struct {
		upload string
		report string
		stored string
	}{
		{upload: "Essay #3.pdf", report: "essay #3 (1).pdf", stored: "Essay _3.pdf"},
		{upload: "Growth 50% draft.pdf", report: "Growth 50% draft.pdf", stored: "Growth 50_ draft.pdf"},
	}
	for _, tc := range cases {
		doc := h.upload(customer, enums.ScanTypeFull, tc.upload)
		require.Equal(t, tc.stored, doc.FileName)
		require.Equal(t, NormalizeFileName(tc.report), doc.NormalizedName)

		found, err := repo.FindOpenByNormalizedName(ctx, NormalizeFileName(tc.report))
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, doc.ID, found[0].ID)
	}
}

func TestUploadChargesBalanceOfScanType(t *testing.T) {
	h := newHarness(t)
	customer := h.profile(enums.RoleCustomer, 5, 0)

	_, err := h.svc.Upload(context.Background(), customer, UploadInput{ScanType: enums.ScanTypeSimilarityOnly, File: pdf("a.pdf")})
	requireCode(t, err, pkgerrors.CodeInsufficient)

	_, err = h.svc.Upload(context.Background(), customer, UploadInput{File: FileInput{Name: "a.exe", Size: 3, Body: strings.NewReader("abc")}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestStaffCompletionRequiresBothReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 1, 0)
	staff := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(customer, enums.ScanTypeFull, "thesis.pdf")

	claimed, err := h.svc.Claim(ctx, staff, doc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusInProgress, claimed.Status)
	require.Equal(t, staff.UserID, *claimed.AssignedStaffID)
	require.NotNil(t, claimed.AssignedAt)

	_, err = h.svc.ChangeStatus(ctx, staff, doc.ID, StatusChange{Status: enums.DocumentStatusCompleted})
	requireCode(t, err, pkgerrors.CodeValidation)

	sim := pdf("sim.pdf")
	_, err = h.svc.AttachReports(ctx, staff, doc.ID, ReportInput{Similarity: &sim, Complete: true})
	requireCode(t, err, pkgerrors.CodeValidation)

	current, err := h.svc.Get(ctx, staff, doc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusInProgress, current.Status)
	require.False(t, current.HasSimilarityReport())

	sim, ai := pdf("sim.pdf"), pdf("ai.pdf")
	simPct, aiPct := 12.5, 40.0
	done, err := h.svc.AttachReports(ctx, staff, doc.ID, ReportInput{
		Similarity:           &sim,
		AI:                   &ai,
		SimilarityPercentage: &simPct,
		AIPercentage:         &aiPct,
		Complete:             true,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.True(t, h.store.Has(*done.SimilarityReportPath))
	require.True(t, h.store.Has(*done.AIReportPath))
	require.EqualValues(t, 1, h.events(enums.EventDocumentCompleted))

	activity, err := h.svc.Activity(ctx, customer, doc.ID)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	require.Contains(t, activity[2].Description, "status: in_progress → completed")
	require.Contains(t, activity[2].Description, "similarity %: none → 12.50")
}

func TestSimilarityOnlyNeedsOneReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 0, 1)
	staff := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(customer, enums.ScanTypeSimilarityOnly, "sim.pdf")

	_, err := h.svc.Claim(ctx, staff, doc.ID)
	require.NoError(t, err)
	report := pdf("report.pdf")
	done, err := h.svc.AttachReports(ctx, staff, doc.ID, ReportInput{Similarity: &report, Complete: true})
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusCompleted, done.Status)
}

func TestAdminCompletesWithoutReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 1, 0)
	admin := h.profile(enums.RoleAdmin, 0, 0)
	staff := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(customer, enums.ScanTypeFull, "a.pdf")

	_, err := h.svc.ChangeStatus(ctx, staff, doc.ID, StatusChange{Status: enums.DocumentStatusCompleted})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	done, err := h.svc.ChangeStatus(ctx, admin, doc.ID, StatusChange{Status: enums.DocumentStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusCompleted, done.Status)
	require.Equal(t, admin.UserID, *done.AssignedStaffID)

	reset, err := h.svc.ChangeStatus(ctx, admin, doc.ID, StatusChange{Status: enums.DocumentStatusPending})
	require.NoError(t, err)
	require.Nil(t, reset.AssignedStaffID)
	require.Nil(t, reset.AssignedAt)
	require.Nil(t, reset.CompletedAt)

	_, err = h.svc.ChangeStatus(ctx, customer, doc.ID, StatusChange{Status: enums.DocumentStatusError})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestClaimIsExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 1, 0)
	first := h.profile(enums.RoleStaff, 0, 0)
	second := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(customer, enums.ScanTypeFull, "a.pdf")

	_, err := h.svc.Claim(ctx, first, doc.ID)
	require.NoError(t, err)
	_, err = h.svc.Claim(ctx, second, doc.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestStaffCannotChangeStatusOfAnotherHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 1, 0)
	holder := h.profile(enums.RoleStaff, 0, 0)
	other := h.profile(enums.RoleStaff, 0, 0)
	admin := h.profile(enums.RoleAdmin, 0, 0)
	doc := h.upload(customer, enums.ScanTypeFull, "held.pdf")

	_, err := h.svc.Claim(ctx, holder, doc.ID)
	require.NoError(t, err)

	for _, status := range []enums.DocumentStatus{enums.DocumentStatusPending, enums.DocumentStatusError} {
		_, err = h.svc.ChangeStatus(ctx, other, doc.ID, StatusChange{Status: status})
		requireCode(t, err, pkgerrors.CodeStateConflict)
	}
	current, err := h.svc.Get(ctx, admin, doc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusInProgress, current.Status)
	require.Equal(t, holder.UserID, *current.AssignedStaffID)

	released, err := h.svc.ChangeStatus(ctx, holder, doc.ID, StatusChange{Status: enums.DocumentStatusPending})
	require.NoError(t, err)
	require.Nil(t, released.AssignedStaffID)

	taken, err := h.svc.ChangeStatus(ctx, other, doc.ID, StatusChange{Status: enums.DocumentStatusInProgress})
	require.NoError(t, err)
	require.Equal(t, other.UserID, *taken.AssignedStaffID)

	_, err = h.svc.ChangeStatus(ctx, admin, doc.ID, StatusChange{Status: enums.DocumentStatusPending})
	require.NoError(t, err)
}

func TestManualClaimKeepsFailureBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 1, 0)
	staff := h.profile(enums.RoleStaff, 0, 0)
	agent := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(customer, enums.ScanTypeFull, "manual.pdf")

	claimed, err := h.svc.Claim(ctx, staff, doc.ID)
	require.NoError(t, err)
	require.Zero(t, claimed.ProcessingAttempts)
	require.Nil(t, claimed.LeaseExpiresAt)

	_, err = h.svc.ChangeStatus(ctx, staff, doc.ID, StatusChange{Status: enums.DocumentStatusPending})
	require.NoError(t, err)

	leased, err := h.svc.ClaimNext(ctx, agent)
	require.NoError(t, err)
	require.Equal(t, doc.ID, leased.ID)
	require.Equal(t, 1, leased.ProcessingAttempts)

	released, err := h.svc.ReportFailure(ctx, agent, leased.ID, "checker timeout")
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusPending, released.Status)
}

func TestLeaseLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.profile(enums.RoleCustomer, 2, 0)
	agent := h.profile(enums.RoleStaff, 0, 0)
	older := h.upload(customer, enums.ScanTypeFull, "older.pdf")
	h.upload(customer, enums.ScanTypeFull, "newer.pdf")

	leased, err := h.svc.ClaimNext(ctx, agent)
	require.NoError(t, err)
	require.Equal(t, older.ID, leased.ID)
	require.Equal(t, 1, leased.ProcessingAttempts)
	require.WithinDuration(t, h.clock.Add(10*time.Minute), *leased.LeaseExpiresAt, time.Second)

	_, body, err := h.svc.OpenLeased(ctx, agent, leased.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	require.Contains(t, string(data), "older.pdf")

	released, err := h.svc.ReportFailure(ctx, agent, leased.ID, "checker timeout")
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusPending, released.Status)
	require.Equal(t, "checker timeout", *released.ErrorMessage)

	again, err := h.svc.ClaimNext(ctx, agent)
	require.NoError(t, err)
	require.Equal(t, older.ID, again.ID)
	require.Equal(t, 2, again.ProcessingAttempts)

	failed, err := h.svc.ReportFailure(ctx, agent, again.ID, "still broken")
	require.NoError(t, err)
	require.Equal(t, enums.DocumentStatusError, failed.Status)
	require.EqualValues(t, 1, h.events(enums.EventDocumentFailed))

	next, err := h.svc.ClaimNext(ctx, agent)
	require.NoError(t, err)
	require.NotEqual(t, older.ID, next.ID)

	h.clock = h.clock.Add(5 * time.Minute)
	renewed, err := h.svc.RenewLeases(ctx, agent)
	require.NoError(t, err)
	require.EqualValues(t, 1, renewed)

	h.clock = h.clock.Add(9 * time.Minute)
	count, err := h.svc.ReleaseExpiredLeases(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	h.clock = h.clock.Add(2 * time.Minute)
	count, err = h.svc.ReleaseExpiredLeases(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	none, err := h.svc.ClaimNext(ctx, customer)
	requireCode(t, err, pkgerrors.CodeForbidden)
	require.Nil(t, none)
}

func TestCustomersOnlySeeOwnDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.profile(enums.RoleCustomer, 1, 0)
	other := h.profile(enums.RoleCustomer, 1, 0)
	staff := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(owner, enums.ScanTypeFull, "mine.pdf")
	h.upload(other, enums.ScanTypeFull, "theirs.pdf")

	_, err := h.svc.Get(ctx, other, doc.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	page, err := h.svc.List(ctx, owner, ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	queue, err := h.svc.List(ctx, staff, ListQuery{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, queue.Items, 2)

	url, err := h.svc.DownloadURL(ctx, owner, doc.ID, FileOriginal)
	require.NoError(t, err)
	require.NotEmpty(t, url)
	_, err = h.svc.DownloadURL(ctx, owner, doc.ID, FileAI)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeleteArchivesSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.profile(enums.RoleCustomer, 1, 0)
	staff := h.profile(enums.RoleStaff, 0, 0)
	doc := h.upload(owner, enums.ScanTypeFull, "gone.pdf")

	requireCode(t, h.svc.Delete(ctx, staff, doc.ID), pkgerrors.CodeForbidden)
	require.NoError(t, h.svc.Delete(ctx, owner, doc.ID))
	require.False(t, h.store.Has(doc.FilePath))

	var archived models.DeletedDocumentLog
	require.NoError(t, h.client.DB().First(&archived, "document_id = ?", doc.ID).Error)
	require.Equal(t, owner.UserID, archived.DeletedBy)
	require.Contains(t, string(archived.Snapshot), "gone.pdf")

	_, err := h.svc.Get(ctx, owner, doc.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestGuestUploadUsesLinkScanType(t *testing.T) {
	h := newHarness(t)
	doc, err := h.svc.GuestUpload(context.Background(), GuestUploadInput{Token: "mul_x", Email: "Guest@Example.com", File: pdf("guest.pdf")})
	require.NoError(t, err)
	require.Nil(t, doc.UserID)
	require.Equal(t, h.links.link.ID, *doc.MagicLinkID)
	require.Equal(t, enums.ScanTypeSimilarityOnly, doc.ScanType)
	require.Equal(t, "guest@example.com", *doc.GuestEmail)
	require.Equal(t, 1, h.links.consumed)
	require.True(t, strings.HasPrefix(doc.FilePath, "documents/guest/"))

	h.links.resolveFn = func(string) error { return pkgerrors.New(pkgerrors.CodeStateConflict, "upload link exhausted") }
	_, err = h.svc.GuestUpload(context.Background(), GuestUploadInput{Token: "mul_x", File: pdf("again.pdf")})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	require.Equal(t, 1, h.links.consumed)
}
