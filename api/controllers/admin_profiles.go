package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type roleChangeRequest struct {
	Role enums.Role `json:"role" validate:"required,oneof=customer staff admin"`
}

type creditAdjustRequest struct {
	UserID     uuid.UUID        `json:"user_id" validate:"required"`
	CreditType enums.CreditType `json:"credit_type" validate:"required,oneof=full similarity"`
	Delta      int              `json:"delta" validate:"required"`
	Reason     string           `json:"reason" validate:"required,max=500"`
}

// AdminListProfiles searches profiles by email or name.
func AdminListProfiles(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(r.Context(), profiles.AdminListParams{
			Search: validators.SanitizeString(q.Get("search"), 200),
			Role:   strings.TrimSpace(q.Get("role")),
			Limit:  page.Limit,
			Cursor: page.Cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminSetRole(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "profileId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body roleChangeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.SetRole(r.Context(), adminID, id, body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// AdminAdjustCredits applies a signed correction to one balance.
func AdminAdjustCredits(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body creditAdjustRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Adjust(r.Context(), credits.AdjustInput{
			ActorID:    adminID,
			UserID:     body.UserID,
			CreditType: body.CreditType,
			Delta:      body.Delta,
			Reason:     body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// AdminCreditHistory pages the ledger across users, optionally filtered by user_id.
func AdminCreditHistory(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := adminHistoryQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminExportCredits(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := adminHistoryQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := svc.ExportXLSX(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, xlsxContentType, "credit-transactions.xlsx", data)
	}
}

func adminHistoryQuery(r *http.Request) (credits.HistoryQuery, error) {
	query, err := historyQuery(r)
	if err != nil {
		return query, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return query, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id")
		}
		query.UserID = &id
	}
	return query, nil
}
