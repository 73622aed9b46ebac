package profiles

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Repository exposes profile persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository scoped to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Create inserts a new profile.
func (r *Repository) Create(ctx context.Context, profile *models.Profile) error {
	return r.DB(ctx).Create(profile).Error
}

// FindByID loads a profile, returning nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.DB(ctx).First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// Update writes the supplied columns.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.DB(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields).Error
}

// ListParams filters the admin profile listing.
type ListParams struct {
	Search string
	Role   enums.Role
	Limit  int
	Cursor *pagination.Cursor
}

// List returns profiles newest first, with one extra row for paging.
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.Profile, error) {
	q := r.DB(ctx).Model(&models.Profile{})
	if term := strings.TrimSpace(params.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?)", like, like)
	}
	if params.Role != "" {
		q = q.Where("role = ?", params.Role)
	}
	var rows []models.Profile
	err := repo.Keyset(q, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

// ListByRole returns every profile holding role.
func (r *Repository) ListByRole(ctx context.Context, role enums.Role) ([]models.Profile, error) {
	var rows []models.Profile
	err := r.DB(ctx).Where("role = ?", role).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
