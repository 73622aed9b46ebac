package controllers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/middleware"
	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/extension"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type leasedDocument struct {
	ID             uuid.UUID      `json:"id"`
	FileName       string         `json:"file_name"`
	ScanType       enums.ScanType `json:"scan_type"`
	LeaseExpiresAt *time.Time     `json:"lease_expires_at"`
}

// ExtensionPending leases the next pending document to the token owner.
func ExtensionPending(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.ClaimNext(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var out *leasedDocument
		if doc != nil {
			out = &leasedDocument{
				ID:             doc.ID,
				FileName:       doc.FileName,
				ScanType:       doc.ScanType,
				LeaseExpiresAt: doc.LeaseExpiresAt,
			}
		}
		responses.WriteSuccess(w, map[string]any{"document": out})
	}
}

// ExtensionDownload returns the leased file inline plus a signed URL.
func ExtensionDownload(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := uuidParam(r, "documentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		doc, body, err := svc.OpenLeased(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer body.Close()
		content, err := io.ReadAll(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read document"))
			return
		}

		signed, err := svc.DownloadURL(ctx, actor, id, documents.FileOriginal)
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "document_id", id.String()), "extension.signed_url_failed")
		}
		responses.WriteSuccess(w, map[string]string{
			"file_name":      doc.FileName,
			"content_base64": base64.StdEncoding.EncodeToString(content),
			"signed_url":     signed,
		})
	}
}

// ExtensionUploadReport stores the reports produced by the extension and
// completes the document.
func ExtensionUploadReport(svc documents.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := parseMultipart(w, r, 2*maxUploadBytes+formOverhead); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := uuid.Parse(strings.TrimSpace(r.FormValue("document_id")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document_id"))
			return
		}
		input, closeFiles, err := reportInput(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer closeFiles()
		if input.Similarity == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "similarity_report is required"))
			return
		}
		input.Complete = true
		input.Source = documents.SourceExtension

		doc, err := svc.AttachReports(ctx, actor, id, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": doc.ID, "status": doc.Status})
	}
}

type heartbeatRequest struct {
	Version string `json:"version" validate:"max=50"`
}

// ExtensionHeartbeat stamps the token and extends the leases the caller holds.
func ExtensionHeartbeat(ext extension.Service, docs documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := middleware.ExtensionTokenFromContext(ctx)
		if token == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "extension token missing"))
			return
		}
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body heartbeatRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		if err := ext.Heartbeat(ctx, token, body.Version); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		renewed, err := docs.RenewLeases(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ok": true, "renewed_leases": renewed})
	}
}

type processingErrorRequest struct {
	DocumentID uuid.UUID `json:"document_id" validate:"required"`
	Message    string    `json:"message" validate:"max=2000"`
}

// ExtensionError records a failed attempt. The document is released or,
// once attempts run out, moved to error.
func ExtensionError(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body processingErrorRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		doc, err := svc.ReportFailure(ctx, actor, body.DocumentID, body.Message)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": doc.ID, "status": doc.Status, "attempts": doc.ProcessingAttempts})
	}
}
