package controllers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const maxBulkReports = 200

// AdminBulkReports matches a batch of similarity reports against waiting documents.
func AdminBulkReports(svc bulkmatch.Service, maxBatchBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := parseMultipart(w, r, maxBatchBytes); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required"))
			return
		}
		if len(headers) > maxBulkReports {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many files in one batch"))
			return
		}

		files := make([]bulkmatch.ReportFile, 0, len(headers))
		opened := make([]multipart.File, 0, len(headers))
		defer func() {
			for _, f := range opened {
				_ = f.Close()
			}
		}()
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open "+header.Filename))
				return
			}
			opened = append(opened, f)
			files = append(files, bulkmatch.ReportFile{Name: header.Filename, Body: f})
		}

		summary, err := svc.MatchBatch(ctx, actor, files)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// AdminMatchLogs lists past match attempts; outcome=unmatched is the review queue.
func AdminMatchLogs(svc bulkmatch.Service, outcome string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := outcome
		if filter == "" {
			filter = strings.TrimSpace(r.URL.Query().Get("outcome"))
		}
		result, err := svc.ListLogs(r.Context(), filter, page.Limit, page.Cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
