package profiles

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

type repository interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	List(ctx context.Context, params ListParams) ([]models.Profile, error)
}

// Identity is what the auth provider asserts about a caller.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// UpdateInput carries optional profile edits made by the owner.
type UpdateInput struct {
	FullName           *string `json:"full_name" validate:"omitempty,max=200"`
	EmailNotifications *bool   `json:"email_notifications"`
	PushNotifications  *bool   `json:"push_notifications"`
	MarketingEmails    *bool   `json:"marketing_emails"`
}

// AdminListParams filters the admin listing.
type AdminListParams struct {
	Search string
	Role   string
	Limit  int
	Cursor string
}

// Service manages profiles.
type Service interface {
	Ensure(ctx context.Context, identity Identity) (*models.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Profile, error)
	List(ctx context.Context, params AdminListParams) (*pagination.Page[models.Profile], error)
	SetRole(ctx context.Context, actorID, id uuid.UUID, role enums.Role) (*models.Profile, error)
}

type service struct {
	repo repository
}

// NewService wires the profiles service.
func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profiles repository required")
	}
	return &service{repo: repo}, nil
}

// Ensure returns the caller's profile, creating it on first sight.
func (s *service) Ensure(ctx context.Context, identity Identity) (*models.Profile, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id missing")
	}
	existing, err := s.repo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if existing != nil {
		return existing, nil
	}

	profile := &models.Profile{
		ID:                 identity.UserID,
		Email:              strings.ToLower(strings.TrimSpace(identity.Email)),
		FullName:           strings.TrimSpace(identity.FullName),
		Role:               enums.RoleCustomer,
		EmailNotifications: true,
		PushNotifications:  true,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		if db.IsUniqueViolation(err, "") {
			// concurrent first request created it
			return s.Get(ctx, identity.UserID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create profile")
	}
	return profile, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return profile, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Profile, error) {
	fields := map[string]any{}
	if input.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.EmailNotifications != nil {
		fields["email_notifications"] = *input.EmailNotifications
	}
	if input.PushNotifications != nil {
		fields["push_notifications"] = *input.PushNotifications
	}
	if input.MarketingEmails != nil {
		fields["marketing_emails"] = *input.MarketingEmails
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, id, fields); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
		}
	}
	return s.Get(ctx, id)
}

func (s *service) List(ctx context.Context, params AdminListParams) (*pagination.Page[models.Profile], error) {
	query := ListParams{Search: params.Search, Limit: params.Limit}
	if params.Role != "" {
		role, err := enums.ParseRole(params.Role)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role filter")
		}
		query.Role = role
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list profiles")
	}
	page := pagination.Trim(rows, params.Limit, func(p models.Profile) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &page, nil
}

// SetRole changes a profile's role. Admins cannot demote themselves.
func (s *service) SetRole(ctx context.Context, actorID, id uuid.UUID, role enums.Role) (*models.Profile, error) {
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if actorID == id && role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "admins cannot demote themselves")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, map[string]any{"role": role}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
	}
	return s.Get(ctx, id)
}
