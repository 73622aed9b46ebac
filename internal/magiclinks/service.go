package magiclinks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/security"
)

// Rejection reasons surfaced to guests.
const (
	ReasonUnknown   = "upload link not found"
	ReasonDisabled  = "upload link disabled"
	ReasonExpired   = "upload link expired"
	ReasonExhausted = "upload link has no uploads left"
)

type tokenHasher interface {
	Hash(token string) string
}

// CreateInput is the admin form for a new link.
type CreateInput struct {
	Label      string     `json:"label" validate:"max=200"`
	MaxUploads int        `json:"max_uploads" validate:"required,gte=1,lte=10000"`
	ExpiresAt  *time.Time `json:"expires_at"`
	ScanType   string     `json:"scan_type" validate:"omitempty,oneof=full similarity_only"`
}

// Created carries the plaintext token, shown only once.
type Created struct {
	Link  *models.MagicUploadLink `json:"link"`
	Token string                  `json:"token"`
}

// LinkInfo is what a guest sees before uploading.
type LinkInfo struct {
	Label     string         `json:"label"`
	Remaining int            `json:"remaining"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	ScanType  enums.ScanType `json:"scan_type"`
}

// Service manages magic upload links.
type Service interface {
	Create(ctx context.Context, adminID uuid.UUID, input CreateInput) (*Created, error)
	List(ctx context.Context, status string, limit int, cursor string) (*pagination.Page[models.MagicUploadLink], error)
	Disable(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error)
	Enable(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Info(ctx context.Context, token string) (*LinkInfo, error)
	Resolve(ctx context.Context, token string) (*models.MagicUploadLink, error)
	Consume(ctx context.Context, tx *gorm.DB, token string) (*models.MagicUploadLink, error)
	ExpireDue(ctx context.Context) (int64, error)
}

type service struct {
	repo   *Repository
	hasher tokenHasher
	now    func() time.Time
}

// NewService wires the magic link service.
func NewService(repo *Repository, hasher tokenHasher, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "magic link repository required")
	}
	if hasher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "token hasher required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, hasher: hasher, now: now}, nil
}

func (s *service) Create(ctx context.Context, adminID uuid.UUID, input CreateInput) (*Created, error) {
	if input.MaxUploads < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max_uploads must be at least 1")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}
	scanType := enums.ScanTypeFull
	if input.ScanType != "" {
		parsed, err := enums.ParseScanType(input.ScanType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scan type")
		}
		scanType = parsed
	}
	token, err := security.GenerateToken(security.MagicLinkPrefix)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate token")
	}
	link := &models.MagicUploadLink{
		TokenHash:  s.hasher.Hash(token),
		Label:      strings.TrimSpace(input.Label),
		MaxUploads: input.MaxUploads,
		ExpiresAt:  input.ExpiresAt,
		Status:     enums.MagicLinkActive,
		ScanType:   scanType,
		CreatedBy:  adminID,
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create magic link")
	}
	return &Created{Link: link, Token: token}, nil
}

func (s *service) List(ctx context.Context, status string, limit int, cursor string) (*pagination.Page[models.MagicUploadLink], error) {
	var filter enums.MagicLinkStatus
	if status != "" {
		parsed, err := enums.ParseMagicLinkStatus(status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter = parsed
	}
	parsedCursor, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, limit, parsedCursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list magic links")
	}
	page := pagination.Trim(rows, limit, func(l models.MagicUploadLink) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return &page, nil
}

func (s *service) Disable(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error) {
	return s.setStatus(ctx, id, enums.MagicLinkDisabled)
}

// Enable reactivates a disabled link. Expired links stay expired.
func (s *service) Enable(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error) {
	link, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.ExpiresAt != nil && !link.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, ReasonExpired)
	}
	return s.setStatus(ctx, id, enums.MagicLinkActive)
}

func (s *service) setStatus(ctx context.Context, id uuid.UUID, status enums.MagicLinkStatus) (*models.MagicUploadLink, error) {
	ok, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update magic link")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ReasonUnknown)
	}
	return s.get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete magic link")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, ReasonUnknown)
	}
	return nil
}

func (s *service) Info(ctx context.Context, token string) (*LinkInfo, error) {
	link, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &LinkInfo{Label: link.Label, Remaining: link.Remaining(), ExpiresAt: link.ExpiresAt, ScanType: link.ScanType}, nil
}

// Resolve returns the link behind token when it can still accept an upload.
func (s *service) Resolve(ctx context.Context, token string) (*models.MagicUploadLink, error) {
	link, err := s.lookup(ctx, s.repo, token)
	if err != nil {
		return nil, err
	}
	if err := s.usable(link); err != nil {
		return nil, err
	}
	return link, nil
}

// Consume takes one upload slot inside tx. Concurrent guests cannot push
// current_uploads past max_uploads.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, token string) (*models.MagicUploadLink, error) {
	repo := s.repo.WithTx(tx)
	token = strings.TrimSpace(token)
	ok, err := repo.Increment(ctx, s.hasher.Hash(token), s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume magic link")
	}
	link, err := s.lookup(ctx, repo, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.usable(link); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, ReasonExhausted)
	}
	return link, nil
}

func (s *service) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire magic links")
	}
	return n, nil
}

func (s *service) lookup(ctx context.Context, repo *Repository, token string) (*models.MagicUploadLink, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, security.MagicLinkPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ReasonUnknown)
	}
	link, err := repo.FindByHash(ctx, s.hasher.Hash(token))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load magic link")
	}
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ReasonUnknown)
	}
	return link, nil
}

func (s *service) usable(link *models.MagicUploadLink) error {
	switch {
	case link.Status == enums.MagicLinkDisabled:
		return pkgerrors.New(pkgerrors.CodeForbidden, ReasonDisabled)
	case link.Status == enums.MagicLinkExpired || (link.ExpiresAt != nil && !link.ExpiresAt.After(s.now())):
		return pkgerrors.New(pkgerrors.CodeForbidden, ReasonExpired)
	case link.CurrentUploads >= link.MaxUploads:
		return pkgerrors.New(pkgerrors.CodeStateConflict, ReasonExhausted)
	}
	return nil
}

func (s *service) get(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error) {
	link, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load magic link")
	}
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ReasonUnknown)
	}
	return link, nil
}
