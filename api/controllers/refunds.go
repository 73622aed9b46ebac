package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/refunds"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type refundDecisionRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func RequestRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input refunds.RequestInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Request(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, req)
	}
}

// ListRefunds returns the caller's requests, or every request when all is set.
func ListRefunds(svc refunds.Service, all bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := refunds.ListQuery{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  page.Limit,
			Cursor: page.Cursor,
		}
		var owner *uuid.UUID
		if !all {
			id, err := callerID(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			owner = &id
		}
		result, err := svc.List(r.Context(), owner, query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ApproveRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decideRefund(svc.Approve, logg)
}

func RejectRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decideRefund(svc.Reject, logg)
}

func decideRefund(decide func(ctx context.Context, adminID, id uuid.UUID, note string) (*models.RefundRequest, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundDecisionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		req, err := decide(r.Context(), adminID, id, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, req)
	}
}
