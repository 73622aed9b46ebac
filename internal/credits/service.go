package credits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/xlsx"
)

const exportRowLimit = 50000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Movement describes one balance change. Amount is always positive; the
// operation decides the sign.
type Movement struct {
	UserID        uuid.UUID
	CreditType    enums.CreditType
	Amount        int
	ReferenceType string
	ReferenceID   string
	Description   string
	ActorID       *uuid.UUID
}

// AdjustInput is an admin correction. Delta may be negative.
type AdjustInput struct {
	ActorID    uuid.UUID
	UserID     uuid.UUID
	CreditType enums.CreditType `json:"credit_type" validate:"required,oneof=full similarity"`
	Delta      int              `json:"delta" validate:"required"`
	Reason     string           `json:"reason" validate:"required,max=500"`
}

// Balances is the pair of spendable balances on a profile.
type Balances struct {
	UserID     uuid.UUID `json:"user_id"`
	Full       int       `json:"credit_balance"`
	Similarity int       `json:"similarity_credit_balance"`
}

// HistoryQuery pages through a ledger.
type HistoryQuery struct {
	UserID *uuid.UUID
	Type   string
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

// Service owns every mutation of profile balances.
type Service interface {
	Grant(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error)
	Consume(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error)
	Refund(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.CreditTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (*Balances, error)
	History(ctx context.Context, query HistoryQuery) (*pagination.Page[models.CreditTransaction], error)
	ExportXLSX(ctx context.Context, query HistoryQuery) ([]byte, error)
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the ledger.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credits repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Grant(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error) {
	return s.apply(ctx, tx, m, enums.CreditPurchase, m.Amount)
}

func (s *service) Consume(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error) {
	return s.apply(ctx, tx, m, enums.CreditUsage, -m.Amount)
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, m Movement) (*models.CreditTransaction, error) {
	return s.apply(ctx, tx, m, enums.CreditRefund, m.Amount)
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.CreditTransaction, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	actor := input.ActorID
	m := Movement{
		UserID:        input.UserID,
		CreditType:    input.CreditType,
		ReferenceType: "admin",
		ReferenceID:   actor.String(),
		Description:   strings.TrimSpace(input.Reason),
		ActorID:       &actor,
	}
	var txn *models.CreditTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.apply(ctx, tx, m, enums.CreditAdminAdjustment, input.Delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"target_user_id": input.UserID.String(),
			"credit_type":    input.CreditType,
			"delta":          input.Delta,
		})
		s.logg.Info(logCtx, "credits.adjusted")
	}
	return txn, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, m Movement, kind enums.CreditTransactionType, delta int) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if m.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !m.CreditType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit type")
	}
	if kind != enums.CreditAdminAdjustment && m.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	after, err := repo.ApplyDelta(ctx, m.UserID, m.CreditType, delta)
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient "+m.CreditType.String()+" credits")
	case errors.Is(err, ErrProfileNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}

	txn := &models.CreditTransaction{
		UserID:        m.UserID,
		Type:          kind,
		CreditType:    m.CreditType,
		Amount:        delta,
		BalanceBefore: after - delta,
		BalanceAfter:  after,
		ReferenceType: optional(m.ReferenceType),
		ReferenceID:   optional(m.ReferenceID),
		Description:   m.Description,
		CreatedBy:     m.ActorID,
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit transaction")
	}
	return txn, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*Balances, error) {
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return &Balances{
		UserID:     userID,
		Full:       profile.CreditBalance,
		Similarity: profile.SimilarityCreditBalance,
	}, nil
}

func (s *service) History(ctx context.Context, query HistoryQuery) (*pagination.Page[models.CreditTransaction], error) {
	params, err := query.params()
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTransactions(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit transactions")
	}
	page := pagination.Trim(rows, query.Limit, func(t models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &page, nil
}

func (s *service) ExportXLSX(ctx context.Context, query HistoryQuery) ([]byte, error) {
	params, err := query.params()
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForExport(ctx, params, exportRowLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit transactions")
	}

	sheet := xlsx.Sheet{
		Name: "Credit transactions",
		Columns: []xlsx.Column{
			{Header: "Date", Width: 22},
			{Header: "Email", Width: 32},
			{Header: "Type", Width: 18},
			{Header: "Credit type", Width: 12},
			{Header: "Amount", Width: 10},
			{Header: "Balance before", Width: 14},
			{Header: "Balance after", Width: 14},
			{Header: "Reference", Width: 40},
			{Header: "Description", Width: 48},
		},
	}
	for _, row := range rows {
		reference := ""
		if row.ReferenceType != nil {
			reference = *row.ReferenceType
		}
		if row.ReferenceID != nil {
			reference += ":" + *row.ReferenceID
		}
		sheet.Rows = append(sheet.Rows, []any{
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Email,
			string(row.Type),
			string(row.CreditType),
			row.Amount,
			row.BalanceBefore,
			row.BalanceAfter,
			reference,
			row.Description,
		})
	}
	data, err := xlsx.Render(sheet)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render export")
	}
	return data, nil
}

func (q HistoryQuery) params() (HistoryParams, error) {
	params := HistoryParams{UserID: q.UserID, From: q.From, To: q.To, Limit: q.Limit}
	if q.Type != "" {
		kind, err := enums.ParseCreditTransactionType(q.Type)
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter")
		}
		params.Type = kind
	}
	if q.Cursor != "" {
		cursor, err := pagination.ParseCursor(q.Cursor)
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}
	return params, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
