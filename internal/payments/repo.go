package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// ErrAlreadyGranted reports that the idempotency key for a grant already exists.
var ErrAlreadyGranted = errors.New("payment already granted")

// ErrDuplicateWebhook reports a redelivered provider event.
var ErrDuplicateWebhook = errors.New("webhook already received")

// Repository persists payments, grant keys, invoices and webhook logs.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *Repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.findPayment(ctx, "id = ?", id)
}

func (r *Repository) FindPaymentByReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.Payment, error) {
	return r.findPayment(ctx, "provider = ? AND provider_reference = ?", provider, reference)
}

func (r *Repository) findPayment(ctx context.Context, query string, args ...any) (*models.Payment, error) {
	var payment models.Payment
	if err := r.DB(ctx).Where(query, args...).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus moves a payment out of one of the given states.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, fields map[string]any) (bool, error) {
	res := r.DB(ctx).Model(&models.Payment{}).Where("id = ? AND status IN ?", id, from).Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.DB(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("provider_reference", reference).Error
}

// InsertGrantKey claims the idempotency key for one provider transaction.
func (r *Repository) InsertGrantKey(ctx context.Context, key string, paymentID uuid.UUID) error {
	err := r.DB(ctx).Create(&models.PaymentIdempotencyKey{Key: key, PaymentID: &paymentID}).Error
	if db.IsUniqueViolation(err, "") {
		return ErrAlreadyGranted
	}
	return err
}

func (r *Repository) ListPayments(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payment, error) {
	var rows []models.Payment
	err := repo.Keyset(r.DB(ctx).Model(&models.Payment{}).Where("user_id = ?", userID), cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) InvoiceExists(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Invoice{}).Where("payment_id = ?", paymentID).Count(&count).Error
	return count > 0, err
}

// NextDocumentNumber returns the next sequential number for invoices or receipts in a year.
func (r *Repository) NextDocumentNumber(ctx context.Context, model any, prefix string, year int) (string, error) {
	var count int64
	like := fmt.Sprintf("%s-%d-%%", prefix, year)
	if err := r.DB(ctx).Model(model).Where("number LIKE ?", like).Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, year, count+1), nil
}

func (r *Repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.DB(ctx).Create(invoice).Error
}

func (r *Repository) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	return r.DB(ctx).Create(receipt).Error
}

func (r *Repository) ListInvoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.DB(ctx).Where("user_id = ?", userID).Order("issued_at DESC").Find(&rows).Error
	return rows, err
}

func (r *Repository) ListReceipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	var rows []models.Receipt
	err := r.DB(ctx).Where("user_id = ?", userID).Order("issued_at DESC").Find(&rows).Error
	return rows, err
}

// InsertWebhookEvent stores a delivery; a repeated provider event id yields ErrDuplicateWebhook.
func (r *Repository) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	err := r.DB(ctx).Create(event).Error
	if db.IsUniqueViolation(err, "") {
		return ErrDuplicateWebhook
	}
	return err
}

func (r *Repository) MarkWebhookEvent(ctx context.Context, id uuid.UUID, status enums.WebhookStatus, message *string, at time.Time) error {
	return r.DB(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]any{
		"processing_status": status,
		"error":             message,
		"processed_at":      at,
	}).Error
}

// WebhookFilter narrows the admin webhook log.
type WebhookFilter struct {
	Provider string
	Status   string
	From     *time.Time
	To       *time.Time
}

func (f WebhookFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if f.Status != "" {
		q = q.Where("processing_status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("received_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("received_at < ?", *f.To)
	}
	return q
}

func (r *Repository) ListWebhookEvents(ctx context.Context, filter WebhookFilter, limit int, cursor *pagination.Cursor) ([]models.WebhookEvent, error) {
	var rows []models.WebhookEvent
	q := filter.apply(r.DB(ctx).Model(&models.WebhookEvent{}))
	err := repo.KeysetOn(q, "received_at", cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) ExportWebhookEvents(ctx context.Context, filter WebhookFilter, limit int) ([]models.WebhookEvent, error) {
	var rows []models.WebhookEvent
	err := filter.apply(r.DB(ctx).Model(&models.WebhookEvent{})).
		Order("received_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ReopenWebhook moves a delivery that failed, or arrived with a bad
// signature, back to received so a signed provider retry can process it.
// The stored payload is replaced with the signed one. It returns nil when
// the stored event is in any other state.
func (r *Repository) ReopenWebhook(ctx context.Context, provider enums.PaymentProvider, eventID string, payload json.RawMessage) (*models.WebhookEvent, error) {
	res := r.DB(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ? AND processing_status IN ?", provider, eventID,
			[]enums.WebhookStatus{enums.WebhookFailed, enums.WebhookInvalidSignature}).
		Updates(map[string]any{
			"processing_status": enums.WebhookReceived,
			"signature_valid":   true,
			"payload":           payload,
			"error":             nil,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	var event models.WebhookEvent
	if err := r.DB(ctx).First(&event, "provider = ? AND event_id = ?", provider, eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
