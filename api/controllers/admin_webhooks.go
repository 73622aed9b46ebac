package controllers

import (
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

func webhookQuery(r *http.Request) (payments.WebhookQuery, error) {
	page, err := parsePage(r)
	if err != nil {
		return payments.WebhookQuery{}, err
	}
	from, err := queryTime(r, "from")
	if err != nil {
		return payments.WebhookQuery{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return payments.WebhookQuery{}, err
	}
	q := r.URL.Query()
	return payments.WebhookQuery{
		Provider: strings.TrimSpace(q.Get("provider")),
		Status:   strings.TrimSpace(q.Get("status")),
		From:     from,
		To:       to,
		Limit:    page.Limit,
		Cursor:   page.Cursor,
	}, nil
}

func AdminListWebhooks(svc payments.WebhookLog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := webhookQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListWebhooks(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminExportWebhooks(svc payments.WebhookLog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := webhookQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := svc.ExportWebhooksXLSX(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, xlsxContentType, "webhook-events.xlsx", data)
	}
}
