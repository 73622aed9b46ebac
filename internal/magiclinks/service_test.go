package magiclinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/security"
)

type linkHarness struct {
	client *db.Client
	svc    Service
	clock  time.Time
}

func newLinkHarness(t *testing.T) *linkHarness {
	t.Helper()
	hasher, err := security.NewTokenHasher("pepper")
	require.NoError(t, err)
	h := &linkHarness{client: dbtest.Client(t), clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc, err := NewService(NewRepository(h.client.DB()), hasher, func() time.Time { return h.clock })
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *linkHarness) consume(t *testing.T, token string) error {
	t.Helper()
	return h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.svc.Consume(context.Background(), tx, token)
		return err
	})
}

func requireReason(t *testing.T, err error, code pkgerrors.Code, reason string) {
	t.Helper()
	te := pkgerrors.As(err)
	require.NotNil(t, te)
	require.Equal(t, code, te.Code())
	require.Contains(t, te.Error(), reason)
}

func TestCreateStoresOnlyHash(t *testing.T) {
	h := newLinkHarness(t)
	created, err := h.svc.Create(context.Background(), uuid.New(), CreateInput{Label: " Class A ", MaxUploads: 3, ScanType: "similarity_only"})
	require.NoError(t, err)
	require.Contains(t, created.Token, security.MagicLinkPrefix)
	require.NotContains(t, created.Link.TokenHash, created.Token)
	require.Equal(t, "Class A", created.Link.Label)
	require.Equal(t, enums.ScanTypeSimilarityOnly, created.Link.ScanType)

	info, err := h.svc.Info(context.Background(), created.Token)
	require.NoError(t, err)
	require.Equal(t, 3, info.Remaining)

	_, err = h.svc.Create(context.Background(), uuid.New(), CreateInput{MaxUploads: 0})
	require.Error(t, err)
}

func TestConsumeStopsAtCapacity(t *testing.T) {
	h := newLinkHarness(t)
	created, err := h.svc.Create(context.Background(), uuid.New(), CreateInput{MaxUploads: 2})
	require.NoError(t, err)

	require.NoError(t, h.consume(t, created.Token))
	require.NoError(t, h.consume(t, created.Token))
	requireReason(t, h.consume(t, created.Token), pkgerrors.CodeStateConflict, ReasonExhausted)

	var link models.MagicUploadLink
	require.NoError(t, h.client.DB().First(&link, "id = ?", created.Link.ID).Error)
	require.Equal(t, 2, link.CurrentUploads)
	require.Equal(t, enums.MagicLinkActive, link.Status)

	_, err = h.svc.Resolve(context.Background(), created.Token)
	requireReason(t, err, pkgerrors.CodeStateConflict, ReasonExhausted)
}

func TestDisabledAndExpiredLinksReject(t *testing.T) {
	h := newLinkHarness(t)
	ctx := context.Background()
	expiry := h.clock.Add(time.Hour)
	created, err := h.svc.Create(ctx, uuid.New(), CreateInput{MaxUploads: 5, ExpiresAt: &expiry})
	require.NoError(t, err)

	_, err = h.svc.Disable(ctx, created.Link.ID)
	require.NoError(t, err)
	requireReason(t, h.consume(t, created.Token), pkgerrors.CodeForbidden, ReasonDisabled)

	_, err = h.svc.Enable(ctx, created.Link.ID)
	require.NoError(t, err)
	require.NoError(t, h.consume(t, created.Token))

	h.clock = h.clock.Add(2 * time.Hour)
	requireReason(t, h.consume(t, created.Token), pkgerrors.CodeForbidden, ReasonExpired)

	n, err := h.svc.ExpireDue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = h.svc.Enable(ctx, created.Link.ID)
	requireReason(t, err, pkgerrors.CodeStateConflict, ReasonExpired)
}

func TestUnknownTokens(t *testing.T) {
	h := newLinkHarness(t)
	_, err := h.svc.Resolve(context.Background(), "nope")
	requireReason(t, err, pkgerrors.CodeNotFound, ReasonUnknown)
	requireReason(t, h.consume(t, security.MagicLinkPrefix+"missing"), pkgerrors.CodeNotFound, ReasonUnknown)
	require.Error(t, h.svc.Delete(context.Background(), uuid.New()))
}
