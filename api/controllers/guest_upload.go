package controllers

import (
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

func linkToken(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	return token, nil
}

// MagicLinkInfo shows a guest what a link still allows before uploading.
func MagicLinkInfo(svc magiclinks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := linkToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := svc.Info(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// GuestUpload accepts a document through a magic link without an account.
func GuestUpload(svc documents.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, err := linkToken(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := parseMultipart(w, r, maxUploadBytes+formOverhead); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		file, input, err := formFile(r, "file")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if input == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file is required"))
			return
		}
		defer file.Close()

		doc, err := svc.GuestUpload(ctx, documents.GuestUploadInput{
			Token: token,
			Email: r.FormValue("email"),
			File:  *input,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"id":         doc.ID,
			"file_name":  doc.FileName,
			"status":     doc.Status,
			"scan_type":  doc.ScanType,
			"created_at": doc.CreatedAt,
		})
	}
}
