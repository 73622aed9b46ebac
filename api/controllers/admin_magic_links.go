package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

// AdminCreateMagicLink returns the plaintext token once.
func AdminCreateMagicLink(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input magiclinks.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), adminID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func AdminListMagicLinks(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")), page.Limit, page.Cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminDisableMagicLink(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return magicLinkToggle(svc.Disable, logg)
}

func AdminEnableMagicLink(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return magicLinkToggle(svc.Enable, logg)
}

func magicLinkToggle(apply func(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "linkId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := apply(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}

func AdminDeleteMagicLink(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "linkId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
