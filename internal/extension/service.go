package extension

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/security"
)

const usageDateLayout = "2006-01-02"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tokenHasher interface {
	Hash(token string) string
}

// Options configures token lifetime and slot defaults.
type Options struct {
	TokenTTL         time.Duration
	DefaultSlotLimit int
}

// CreateTokenInput names a new extension token.
type CreateTokenInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreatedToken returns the plaintext exactly once.
type CreatedToken struct {
	Token  *models.ExtensionToken `json:"token"`
	Secret string                 `json:"secret"`
}

// SlotUsageInput records checker-account usage.
type SlotUsageInput struct {
	AccountLabel string `json:"account_label" validate:"required,max=120"`
	Increment    int    `json:"increment" validate:"gte=0,lte=1000"`
	DailyLimit   *int   `json:"daily_limit" validate:"omitempty,gte=1,lte=10000"`
}

// Slot is a checker account with usage for today.
type Slot struct {
	AccountLabel string `json:"account_label"`
	DailyLimit   int    `json:"daily_limit"`
	UsedToday    int    `json:"used_today"`
	Remaining    int    `json:"remaining"`
	UsageDate    string `json:"usage_date"`
}

// Service manages extension credentials and checker slots.
type Service interface {
	CreateToken(ctx context.Context, userID uuid.UUID, input CreateTokenInput) (*CreatedToken, error)
	ListTokens(ctx context.Context, userID uuid.UUID) ([]models.ExtensionToken, error)
	RevokeToken(ctx context.Context, userID, id uuid.UUID) error
	DeleteToken(ctx context.Context, userID, id uuid.UUID) error
	Authenticate(ctx context.Context, token string) (*models.ExtensionToken, error)
	Heartbeat(ctx context.Context, token *models.ExtensionToken, version string) error
	Slots(ctx context.Context, userID uuid.UUID) ([]Slot, error)
	UpdateSlotUsage(ctx context.Context, userID uuid.UUID, input SlotUsageInput) (*Slot, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	hasher tokenHasher
	opts   Options
	now    func() time.Time
}

// NewService wires the extension service.
func NewService(repo *Repository, tx txRunner, hasher tokenHasher, opts Options, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "extension repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if hasher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "token hasher required")
	}
	if opts.DefaultSlotLimit <= 0 {
		opts.DefaultSlotLimit = 20
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, tx: tx, hasher: hasher, opts: opts, now: now}, nil
}

func (s *service) CreateToken(ctx context.Context, userID uuid.UUID, input CreateTokenInput) (*CreatedToken, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	secret, err := security.GenerateToken(security.ExtensionTokenPrefix)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate token")
	}
	token := &models.ExtensionToken{
		UserID:      userID,
		Name:        name,
		TokenHash:   s.hasher.Hash(secret),
		TokenPrefix: security.DisplayPrefix(secret),
		IsActive:    true,
	}
	if s.opts.TokenTTL > 0 {
		expires := s.now().Add(s.opts.TokenTTL)
		token.ExpiresAt = &expires
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create token")
	}
	return &CreatedToken{Token: token, Secret: secret}, nil
}

func (s *service) ListTokens(ctx context.Context, userID uuid.UUID) ([]models.ExtensionToken, error) {
	rows, err := s.repo.ListTokens(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tokens")
	}
	return rows, nil
}

func (s *service) RevokeToken(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.UpdateToken(ctx, userID, id, map[string]any{"is_active": false})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke token")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "token not found")
	}
	return nil
}

func (s *service) DeleteToken(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.DeleteToken(ctx, userID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete token")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "token not found")
	}
	return nil
}

// Authenticate resolves a bearer secret to an active, unexpired token.
func (s *service) Authenticate(ctx context.Context, secret string) (*models.ExtensionToken, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, security.ExtensionTokenPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid extension token")
	}
	token, err := s.repo.FindTokenByHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load token")
	}
	now := s.now()
	switch {
	case token == nil:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid extension token")
	case !token.IsActive:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "extension token revoked")
	case token.ExpiresAt != nil && !token.ExpiresAt.After(now):
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "extension token expired")
	}
	if _, err := s.repo.UpdateToken(ctx, token.UserID, token.ID, map[string]any{"last_used_at": now}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch token")
	}
	token.LastUsedAt = &now
	return token, nil
}

func (s *service) Heartbeat(ctx context.Context, token *models.ExtensionToken, version string) error {
	fields := map[string]any{"last_heartbeat_at": s.now()}
	if version = strings.TrimSpace(version); version != "" {
		fields["extension_version"] = version
	}
	if _, err := s.repo.UpdateToken(ctx, token.UserID, token.ID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record heartbeat")
	}
	return nil
}

func (s *service) Slots(ctx context.Context, userID uuid.UUID) ([]Slot, error) {
	rows, err := s.repo.ListSlots(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list slots")
	}
	today := s.today()
	out := make([]Slot, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSlot(row, today))
	}
	return out, nil
}

// UpdateSlotUsage adds usage to a checker account, resetting the counter on a
// new UTC day. Usage past the daily limit is rejected.
func (s *service) UpdateSlotUsage(ctx context.Context, userID uuid.UUID, input SlotUsageInput) (*Slot, error) {
	label := strings.TrimSpace(input.AccountLabel)
	if label == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account_label is required")
	}
	if input.Increment < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "increment must not be negative")
	}
	today := s.today()
	var result models.ExtensionSlot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		slot, err := repo.FindSlot(ctx, userID, label)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load slot")
		}
		if slot == nil {
			slot = &models.ExtensionSlot{UserID: userID, AccountLabel: label, DailyLimit: s.opts.DefaultSlotLimit, UsageDate: today}
			if input.DailyLimit != nil {
				slot.DailyLimit = *input.DailyLimit
			}
			if err := repo.CreateSlot(ctx, slot); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create slot")
			}
		} else if input.DailyLimit != nil {
			if err := repo.SetSlotLimit(ctx, slot.ID, *input.DailyLimit); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update slot limit")
			}
		}
		if err := repo.ResetSlotDay(ctx, slot.ID, today); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset slot")
		}
		if input.Increment > 0 {
			ok, err := repo.AddSlotUsage(ctx, slot.ID, input.Increment)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update slot usage")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeRateLimit, "daily limit reached for "+label)
			}
		}
		fresh, err := repo.FindSlotByID(ctx, slot.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload slot")
		}
		result = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	slot := toSlot(result, today)
	return &slot, nil
}

func (s *service) today() string {
	return s.now().UTC().Format(usageDateLayout)
}

func toSlot(row models.ExtensionSlot, today string) Slot {
	used := row.UsedToday
	if row.UsageDate != today {
		used = 0
	}
	remaining := row.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return Slot{AccountLabel: row.AccountLabel, DailyLimit: row.DailyLimit, UsedToday: used, Remaining: remaining, UsageDate: today}
}
