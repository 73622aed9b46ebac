package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
	"github.com/simcheck/simcheck-backend/pkg/xlsx"
)

const webhookExportLimit = 20000

// WebhookRecord is a provider delivery as received.
type WebhookRecord struct {
	Provider       enums.PaymentProvider
	EventID        string
	EventType      string
	Payload        json.RawMessage
	SignatureValid bool
}

// WebhookQuery filters the admin webhook log.
type WebhookQuery struct {
	Provider string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Cursor   string
}

// WebhookLog persists and exposes raw provider deliveries.
type WebhookLog interface {
	RecordWebhook(ctx context.Context, record WebhookRecord) (event *models.WebhookEvent, duplicate bool, err error)
	FinishWebhook(ctx context.Context, id uuid.UUID, status enums.WebhookStatus, cause error) error
	ListWebhooks(ctx context.Context, query WebhookQuery) (*pagination.Page[models.WebhookEvent], error)
	ExportWebhooksXLSX(ctx context.Context, query WebhookQuery) ([]byte, error)
}

// RecordWebhook stores a delivery. A second delivery of the same provider
// event id is reported as a duplicate unless it is signed and the first
// attempt failed or carried a bad signature.
func (s *service) RecordWebhook(ctx context.Context, record WebhookRecord) (*models.WebhookEvent, bool, error) {
	if strings.TrimSpace(record.EventID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	status := enums.WebhookReceived
	if !record.SignatureValid {
		status = enums.WebhookInvalidSignature
	}
	payload := record.Payload
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage(`{}`)
	}
	event := &models.WebhookEvent{
		Provider:         record.Provider,
		EventID:          record.EventID,
		EventType:        record.EventType,
		Payload:          payload,
		SignatureValid:   record.SignatureValid,
		ProcessingStatus: status,
	}
	if err := s.repo.InsertWebhookEvent(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateWebhook) {
			if !record.SignatureValid {
				return nil, true, nil
			}
			retry, reopenErr := s.repo.ReopenWebhook(ctx, record.Provider, record.EventID, payload)
			if reopenErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, reopenErr, "reopen webhook event")
			}
			return retry, retry == nil, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store webhook event")
	}
	return event, false, nil
}

func (s *service) FinishWebhook(ctx context.Context, id uuid.UUID, status enums.WebhookStatus, cause error) error {
	var message *string
	if cause != nil {
		msg := cause.Error()
		message = &msg
	}
	if err := s.repo.MarkWebhookEvent(ctx, id, status, message, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update webhook event")
	}
	return nil
}

func (s *service) ListWebhooks(ctx context.Context, query WebhookQuery) (*pagination.Page[models.WebhookEvent], error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListWebhookEvents(ctx, filter, query.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook events")
	}
	page := pagination.Trim(rows, query.Limit, func(e models.WebhookEvent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.ReceivedAt, ID: e.ID}
	})
	return &page, nil
}

func (s *service) ExportWebhooksXLSX(ctx context.Context, query WebhookQuery) ([]byte, error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ExportWebhookEvents(ctx, filter, webhookExportLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook events")
	}
	sheet := xlsx.Sheet{
		Name: "Webhooks",
		Columns: []xlsx.Column{
			{Header: "Received", Width: 22},
			{Header: "Provider", Width: 10},
			{Header: "Event ID", Width: 40},
			{Header: "Event type", Width: 28},
			{Header: "Signature valid", Width: 14},
			{Header: "Status", Width: 18},
			{Header: "Error", Width: 48},
		},
	}
	for _, row := range rows {
		message := ""
		if row.Error != nil {
			message = *row.Error
		}
		sheet.Rows = append(sheet.Rows, []any{
			row.ReceivedAt.UTC().Format(time.RFC3339),
			string(row.Provider),
			row.EventID,
			row.EventType,
			row.SignatureValid,
			string(row.ProcessingStatus),
			message,
		})
	}
	data, err := xlsx.Render(sheet)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render export")
	}
	return data, nil
}

func (q WebhookQuery) filter() (WebhookFilter, error) {
	filter := WebhookFilter{From: q.From, To: q.To}
	if q.Provider != "" {
		provider, err := enums.ParsePaymentProvider(q.Provider)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider filter")
		}
		filter.Provider = provider.String()
	}
	if q.Status != "" {
		status, err := enums.ParseWebhookStatus(q.Status)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = status.String()
	}
	return filter, nil
}
