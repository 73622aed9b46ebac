package refunds

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

const referenceType = "refund_request"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type creditRefunder interface {
	Refund(ctx context.Context, tx *gorm.DB, m credits.Movement) (*models.CreditTransaction, error)
}

type documentLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

type RequestInput struct {
	DocumentID uuid.UUID `json:"document_id" validate:"required"`
	Reason     string    `json:"reason" validate:"required,max=2000"`
}

type ListQuery struct {
	Status string
	Limit  int
	Cursor string
}

type Service interface {
	Request(ctx context.Context, userID uuid.UUID, input RequestInput) (*models.RefundRequest, error)
	List(ctx context.Context, userID *uuid.UUID, query ListQuery) (*pagination.Page[models.RefundRequest], error)
	Approve(ctx context.Context, adminID, id uuid.UUID, note string) (*models.RefundRequest, error)
	Reject(ctx context.Context, adminID, id uuid.UUID, note string) (*models.RefundRequest, error)
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Documents documentLookup
	Credits   creditRefunder
	Outbox    outboxEmitter
	Now       func() time.Time
}

type service struct {
	repo      *Repository
	tx        txRunner
	documents documentLookup
	credits   creditRefunder
	outbox    outboxEmitter
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "refunds repository required")
	case p.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case p.Documents == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "document lookup required")
	case p.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credit ledger required")
	case p.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{repo: p.Repo, tx: p.Tx, documents: p.Documents, credits: p.Credits, outbox: p.Outbox, now: p.Now}, nil
}

// Request opens a refund for a document of the caller that ended in error.
// A document can carry one pending or approved request at a time.
func (s *service) Request(ctx context.Context, userID uuid.UUID, input RequestInput) (*models.RefundRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	doc, err := s.documents.FindByID(ctx, input.DocumentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
	if doc == nil || doc.UserID == nil || *doc.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	if doc.Status != enums.DocumentStatusError {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed documents can be refunded")
	}

	req := &models.RefundRequest{
		UserID:     userID,
		DocumentID: doc.ID,
		Reason:     reason,
		Status:     enums.RefundPending,
		CreditType: doc.ScanType.CreditType(),
		Credits:    1,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		open, err := repo.CountBlocking(ctx, doc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check refund requests")
		}
		if open > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "a refund was already requested for this document")
		}
		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// List returns one user's requests, or every request when userID is nil.
func (s *service) List(ctx context.Context, userID *uuid.UUID, query ListQuery) (*pagination.Page[models.RefundRequest], error) {
	params := listParams{UserID: userID, Limit: query.Limit}
	if query.Status != "" {
		status := enums.RefundStatus(query.Status)
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid refund status")
		}
		params.Status = &status
	}
	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	page := pagination.Trim(rows, query.Limit, func(r models.RefundRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &page, nil
}

// Approve returns the credits in the same transaction that decides the
// request, so a request is credited at most once.
func (s *service) Approve(ctx context.Context, adminID, id uuid.UUID, note string) (*models.RefundRequest, error) {
	return s.decide(ctx, adminID, id, enums.RefundApproved, strings.TrimSpace(note))
}

func (s *service) Reject(ctx context.Context, adminID, id uuid.UUID, note string) (*models.RefundRequest, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a note is required when rejecting")
	}
	return s.decide(ctx, adminID, id, enums.RefundRejected, note)
}

func (s *service) decide(ctx context.Context, adminID, id uuid.UUID, status enums.RefundStatus, note string) (*models.RefundRequest, error) {
	var decided *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.Find(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
		}
		if req == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}

		now := s.now().UTC()
		fields := map[string]any{"decided_by": adminID, "decided_at": now}
		if note != "" {
			fields["admin_note"] = note
		}
		ok, err := repo.Decide(ctx, id, status, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide refund request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund request already decided")
		}

		if status == enums.RefundApproved {
			actor := adminID
			if _, err := s.credits.Refund(ctx, tx, credits.Movement{
				UserID:        req.UserID,
				CreditType:    req.CreditType,
				Amount:        req.Credits,
				ReferenceType: referenceType,
				ReferenceID:   req.ID.String(),
				Description:   "Refund for failed document",
				ActorID:       &actor,
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundDecided,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: string(enums.RoleAdmin)},
			Data: payloads.RefundDecidedEvent{
				RefundID:   req.ID,
				UserID:     req.UserID,
				DocumentID: req.DocumentID,
				Status:     status,
				Credits:    req.Credits,
				Note:       note,
			},
		}); err != nil {
			return err
		}

		decided, err = repo.Find(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}
