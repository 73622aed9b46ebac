package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// ErrInsufficientBalance is returned when a debit would take a balance below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrProfileNotFound is returned when the balance owner does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Repository persists balances and ledger rows.
type Repository struct {
	repo.Base
}

// NewRepository binds the credits repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository scoped to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// ApplyDelta moves a balance by delta and returns the balance after the move.
// Debits only apply when the balance covers them.
func (r *Repository) ApplyDelta(ctx context.Context, userID uuid.UUID, creditType enums.CreditType, delta int) (int, error) {
	column := creditType.BalanceColumn()
	q := r.DB(ctx).Model(&models.Profile{}).Where("id = ?", userID)
	if delta < 0 {
		q = q.Where(column+" >= ?", -delta)
	}
	res := q.Updates(map[string]any{
		column:       gorm.Expr(column+" + ?", delta),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		exists, err := r.profileExists(ctx, userID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrProfileNotFound
		}
		return 0, ErrInsufficientBalance
	}

	var profile models.Profile
	if err := r.DB(ctx).Select(column).First(&profile, "id = ?", userID).Error; err != nil {
		return 0, err
	}
	return profile.Balance(creditType), nil
}

func (r *Repository) profileExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Profile{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

// InsertTransaction appends a ledger row.
func (r *Repository) InsertTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	return r.DB(ctx).Create(txn).Error
}

// FindProfile loads the balance owner.
func (r *Repository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.DB(ctx).First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// HistoryParams filters ledger listings.
type HistoryParams struct {
	UserID *uuid.UUID
	Type   enums.CreditTransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor *pagination.Cursor
}

func (p HistoryParams) apply(q *gorm.DB) *gorm.DB {
	if p.UserID != nil {
		q = q.Where("user_id = ?", *p.UserID)
	}
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.From != nil {
		q = q.Where("created_at >= ?", *p.From)
	}
	if p.To != nil {
		q = q.Where("created_at < ?", *p.To)
	}
	return q
}

// ListTransactions returns one page of ledger rows, newest first.
func (r *Repository) ListTransactions(ctx context.Context, params HistoryParams) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	q := params.apply(r.DB(ctx).Model(&models.CreditTransaction{}))
	err := repo.Keyset(q, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

// ExportRow is a ledger row joined with the owner's email.
type ExportRow struct {
	models.CreditTransaction
	Email string
}

// ListForExport returns every matching row, newest first, capped at limit.
func (r *Repository) ListForExport(ctx context.Context, params HistoryParams, limit int) ([]ExportRow, error) {
	var rows []ExportRow
	q := r.DB(ctx).
		Table("credit_transactions AS ct").
		Select("ct.*, p.email AS email").
		Joins("LEFT JOIN profiles p ON p.id = ct.user_id")
	if params.UserID != nil {
		q = q.Where("ct.user_id = ?", *params.UserID)
	}
	if params.Type != "" {
		q = q.Where("ct.type = ?", params.Type)
	}
	if params.From != nil {
		q = q.Where("ct.created_at >= ?", *params.From)
	}
	if params.To != nil {
		q = q.Where("ct.created_at < ?", *params.To)
	}
	err := q.Order("ct.created_at DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}
