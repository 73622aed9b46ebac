package controllers

import (
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func CreditBalance(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balances, err := svc.Balance(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}

// CreditHistory pages through the caller's own ledger.
func CreditHistory(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query, err := historyQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.UserID = &id
		page, err := svc.History(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func historyQuery(r *http.Request) (credits.HistoryQuery, error) {
	page, err := parsePage(r)
	if err != nil {
		return credits.HistoryQuery{}, err
	}
	from, err := queryTime(r, "from")
	if err != nil {
		return credits.HistoryQuery{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return credits.HistoryQuery{}, err
	}
	return credits.HistoryQuery{
		Type:   strings.TrimSpace(r.URL.Query().Get("type")),
		From:   from,
		To:     to,
		Limit:  page.Limit,
		Cursor: page.Cursor,
	}, nil
}
