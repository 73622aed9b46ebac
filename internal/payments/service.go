package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/stripe"
	"github.com/simcheck/simcheck-backend/pkg/viva"
)

var errGrantSkipped = errors.New("grant skipped")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditGranter interface {
	Grant(ctx context.Context, tx *gorm.DB, m credits.Movement) (*models.CreditTransaction, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type vivaOrders interface {
	CreateOrder(ctx context.Context, req viva.OrderRequest) (*viva.Order, error)
}

type stripeSessions interface {
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (*stripe.CheckoutSession, error)
}

// ServiceParams wires the payments service.
type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Credits   creditGranter
	Outbox    outboxEmitter
	Catalog   Catalog
	Viva      vivaOrders
	Stripe    stripeSessions
	PublicURL string
	Logger    *logger.Logger
	Now       func() time.Time
}

// CheckoutInput starts a purchase.
type CheckoutInput struct {
	UserID    uuid.UUID `json:"-"`
	Email     string    `json:"-"`
	Provider  string    `json:"provider" validate:"required,oneof=paddle viva stripe"`
	PackageID string    `json:"package_id" validate:"required"`
}

// CheckoutResult tells the client how to continue at the provider.
type CheckoutResult struct {
	PaymentID   uuid.UUID             `json:"payment_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	Reference   string                `json:"reference"`
	CheckoutURL string                `json:"checkout_url,omitempty"`
	PriceID     string                `json:"price_id,omitempty"`
	CustomData  map[string]string     `json:"custom_data,omitempty"`
}

// GrantInput identifies a provider transaction that settled a payment.
// PaymentID takes precedence over Reference when both are set.
type GrantInput struct {
	Provider      enums.PaymentProvider
	PaymentID     *uuid.UUID
	Reference     string
	TransactionID string
	Amount        *decimal.Decimal
	Currency      string
	// ExactAmount rejects the grant when Amount differs from the stored
	// payment amount. Without it a mismatch is only logged.
	ExactAmount bool
}

// GrantResult reports what the grant did.
type GrantResult struct {
	Payment          *models.Payment
	AlreadyProcessed bool
	NewBalance       int
}

// ReverseInput identifies a payment reversed at the provider.
type ReverseInput struct {
	Provider      enums.PaymentProvider
	PaymentID     *uuid.UUID
	Reference     string
	TransactionID string
}

// Service sells credits and records provider activity.
type Service interface {
	Catalog() Catalog
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	Grant(ctx context.Context, input GrantInput) (*GrantResult, error)
	Reverse(ctx context.Context, input ReverseInput) (*models.Payment, error)
	ListPayments(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*pagination.Page[models.Payment], error)
	Invoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error)
	Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
	WebhookLog
}

type service struct {
	repo      *Repository
	tx        txRunner
	credits   creditGranter
	outbox    outboxEmitter
	catalog   Catalog
	viva      vivaOrders
	stripe    stripeSessions
	publicURL string
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the payments service. Viva and Stripe are optional; a nil
// gateway disables that provider at checkout.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credits service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if len(params.Catalog) == 0 {
		params.Catalog = DefaultCatalog()
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		credits:   params.Credits,
		outbox:    params.Outbox,
		catalog:   params.Catalog,
		viva:      params.Viva,
		stripe:    params.Stripe,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

func (s *service) Catalog() Catalog {
	return s.catalog
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	provider, err := enums.ParsePaymentProvider(strings.ToLower(strings.TrimSpace(input.Provider)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider")
	}
	pkg, ok := s.catalog.Find(input.PackageID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
	}
	if (provider == enums.ProviderViva && s.viva == nil) || (provider == enums.ProviderStripe && s.stripe == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, provider.String()+" checkout is not available")
	}

	payment := &models.Payment{
		ID:         uuid.New(),
		Provider:   provider,
		UserID:     input.UserID,
		PackageID:  pkg.ID,
		Credits:    pkg.Credits,
		CreditType: pkg.CreditType,
		Amount:     pkg.Amount,
		Currency:   pkg.Currency,
		Status:     enums.PaymentPending,
	}
	payment.ProviderReference = payment.ID.String()
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	result := &CheckoutResult{PaymentID: payment.ID, Provider: provider, Reference: payment.ProviderReference}
	switch provider {
	case enums.ProviderPaddle:
		result.PriceID = pkg.PaddlePriceID
		result.CustomData = map[string]string{"payment_id": payment.ID.String(), "user_id": input.UserID.String()}
		return result, nil
	case enums.ProviderViva:
		order, err := s.viva.CreateOrder(ctx, viva.OrderRequest{
			Amount:       pkg.Amount,
			CustomerTrns: pkg.Name,
			Email:        input.Email,
			MerchantTrns: payment.ID.String(),
		})
		if err != nil {
			s.failCheckout(ctx, payment, err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create viva order")
		}
		result.Reference, result.CheckoutURL = order.OrderCode, order.CheckoutURL
	case enums.ProviderStripe:
		session, err := s.stripe.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
			PaymentID:   payment.ID.String(),
			Email:       input.Email,
			ProductName: pkg.Name,
			Amount:      pkg.Amount,
			Currency:    pkg.Currency,
			SuccessURL:  s.publicURL + "/dashboard/credits?checkout=success",
			CancelURL:   s.publicURL + "/dashboard/credits?checkout=cancelled",
			Metadata:    map[string]string{"payment_id": payment.ID.String()},
		})
		if err != nil {
			s.failCheckout(ctx, payment, err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe session")
		}
		result.Reference, result.CheckoutURL = session.ID, session.URL
	}
	if err := s.repo.SetPaymentReference(ctx, payment.ID, result.Reference); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
	}
	return result, nil
}

func (s *service) failCheckout(ctx context.Context, payment *models.Payment, cause error) {
	if _, err := s.repo.UpdatePaymentStatus(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentPending}, map[string]any{"status": enums.PaymentFailed}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "payments.checkout.mark_failed", err)
	}
	if s.logg != nil {
		s.logg.Error(s.logg.WithProvider(ctx, payment.Provider.String()), "payments.checkout.failed", cause)
	}
}

// Grant credits a settled payment exactly once per provider transaction.
// Redelivery of the same transaction reports AlreadyProcessed without error.
func (s *service) Grant(ctx context.Context, input GrantInput) (*GrantResult, error) {
	txnID := strings.TrimSpace(input.TransactionID)
	if txnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	key := input.Provider.String() + ":" + txnID
	result := &GrantResult{}
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := s.locate(ctx, repo, input.Provider, input.PaymentID, input.Reference)
		if err != nil {
			return err
		}
		result.Payment = payment
		if input.ExactAmount && (input.Amount == nil || !input.Amount.Equal(payment.Amount)) {
			return pkgerrors.New(pkgerrors.CodeValidation, "paid amount does not match payment")
		}
		if err := repo.InsertGrantKey(ctx, key, payment.ID); err != nil {
			if errors.Is(err, ErrAlreadyGranted) {
				return errGrantSkipped
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert grant key")
		}
		ok, err := repo.UpdatePaymentStatus(ctx, payment.ID,
			[]enums.PaymentStatus{enums.PaymentPending, enums.PaymentFailed},
			map[string]any{"status": enums.PaymentCompleted, "provider_transaction_id": txnID, "completed_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if !ok {
			return errGrantSkipped
		}
		payment.Status, payment.ProviderTxnID, payment.CompletedAt = enums.PaymentCompleted, &txnID, &now

		txn, err := s.credits.Grant(ctx, tx, credits.Movement{
			UserID:        payment.UserID,
			CreditType:    payment.CreditType,
			Amount:        payment.Credits,
			ReferenceType: "payment",
			ReferenceID:   payment.ID.String(),
			Description:   "Purchase " + payment.PackageID + " via " + payment.Provider.String(),
		})
		if err != nil {
			return err
		}
		result.NewBalance = txn.BalanceAfter

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsPurchased,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.CreditsPurchasedEvent{
				PaymentID:  payment.ID,
				UserID:     payment.UserID,
				Provider:   payment.Provider,
				Credits:    payment.Credits,
				CreditType: payment.CreditType,
				Amount:     payment.Amount.StringFixed(2),
				Currency:   payment.Currency,
				NewBalance: txn.BalanceAfter,
			},
		})
	})
	if errors.Is(err, errGrantSkipped) {
		result.AlreadyProcessed = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if input.Amount != nil && !input.Amount.Equal(result.Payment.Amount) && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id": result.Payment.ID.String(),
			"expected":   result.Payment.Amount.StringFixed(2),
			"received":   input.Amount.StringFixed(2),
		})
		s.logg.Warn(logCtx, "payments.grant.amount_mismatch")
	}
	if err := s.issueDocuments(ctx, result.Payment); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_id", result.Payment.ID.String()), "payments.invoice.failed", err)
	}
	return result, nil
}

func (s *service) locate(ctx context.Context, repo *Repository, provider enums.PaymentProvider, id *uuid.UUID, reference string) (*models.Payment, error) {
	var (
		payment *models.Payment
		err     error
	)
	switch {
	case id != nil:
		payment, err = repo.FindPayment(ctx, *id)
	case strings.TrimSpace(reference) != "":
		payment, err = repo.FindPaymentByReference(ctx, provider, strings.TrimSpace(reference))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil || payment.Provider != provider {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

// issueDocuments creates the invoice and receipt for a completed payment.
func (s *service) issueDocuments(ctx context.Context, payment *models.Payment) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.InvoiceExists(ctx, payment.ID)
		if err != nil || exists {
			return err
		}
		issued := s.now()
		invoiceNo, err := repo.NextDocumentNumber(ctx, &models.Invoice{}, "INV", issued.Year())
		if err != nil {
			return err
		}
		invoice := &models.Invoice{
			PaymentID: payment.ID,
			UserID:    payment.UserID,
			Number:    invoiceNo,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			IssuedAt:  issued,
		}
		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			return err
		}
		receiptNo, err := repo.NextDocumentNumber(ctx, &models.Receipt{}, "RCT", issued.Year())
		if err != nil {
			return err
		}
		return repo.CreateReceipt(ctx, &models.Receipt{
			PaymentID: payment.ID,
			InvoiceID: invoice.ID,
			UserID:    payment.UserID,
			Number:    receiptNo,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Credits:   payment.Credits,
			IssuedAt:  issued,
		})
	})
}

// Reverse marks a completed payment refunded at the provider. Credits are not
// clawed back automatically; the reversal is surfaced to admins.
func (s *service) Reverse(ctx context.Context, input ReverseInput) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		payment, err = s.locate(ctx, repo, input.Provider, input.PaymentID, input.Reference)
		if err != nil {
			return err
		}
		ok, err := repo.UpdatePaymentStatus(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentCompleted}, map[string]any{"status": enums.PaymentRefunded})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}
		if !ok {
			return errGrantSkipped
		}
		payment.Status = enums.PaymentRefunded
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReversed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentReversedEvent{
				PaymentID: payment.ID,
				UserID:    payment.UserID,
				Provider:  payment.Provider,
				Reference: input.TransactionID,
			},
		})
	})
	if errors.Is(err, errGrantSkipped) {
		return payment, nil
	}
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"payment_id": payment.ID.String(), "provider": payment.Provider})
		s.logg.Warn(logCtx, "payments.reversed")
	}
	return payment, nil
}

func (s *service) ListPayments(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*pagination.Page[models.Payment], error) {
	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPayments(ctx, userID, limit, parsed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	page := pagination.Trim(rows, limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &page, nil
}

func (s *service) Invoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	rows, err := s.repo.ListInvoices(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return rows, nil
}

func (s *service) Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	rows, err := s.repo.ListReceipts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return rows, nil
}
