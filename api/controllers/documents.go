package controllers

import (
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

// formOverhead leaves room for multipart boundaries and text fields on top of
// the file size limit.
const formOverhead = 1 << 20

// UploadDocument stores a customer upload and spends one credit of the scan type.
func UploadDocument(svc documents.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
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

		doc, err := svc.Upload(ctx, actor, documents.UploadInput{
			ScanType: enums.ScanType(strings.TrimSpace(r.FormValue("scan_type"))),
			File:     *input,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}

// ListDocuments returns the caller's documents, or the processing queue for staff.
func ListDocuments(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := documentActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		mine, err := queryBool(r, "mine")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(ctx, actor, documents.ListQuery{
			Status:   strings.TrimSpace(q.Get("status")),
			ScanType: strings.TrimSpace(q.Get("scan_type")),
			Search:   validators.SanitizeString(q.Get("search"), 200),
			Mine:     mine,
			Limit:    page.Limit,
			Cursor:   page.Cursor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetDocument(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		doc, err := svc.Get(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

func DocumentActivity(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		logs, err := svc.Activity(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, logs)
	}
}

// DocumentDownload returns a short-lived URL for the original upload or one of its reports.
func DocumentDownload(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		kind := documents.FileKind(strings.TrimSpace(r.URL.Query().Get("kind")))
		if kind == "" {
			kind = documents.FileOriginal
		}
		switch kind {
		case documents.FileOriginal, documents.FileSimilarity, documents.FileAI:
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "kind must be original, similarity or ai"))
			return
		}
		url, err := svc.DownloadURL(ctx, actor, id, kind)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

func DeleteDocument(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		if err := svc.Delete(ctx, actor, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// ClaimDocument assigns a pending document to the calling staff member.
func ClaimDocument(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		doc, err := svc.Claim(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

func ChangeDocumentStatus(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
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
		var change documents.StatusChange
		if err := validators.DecodeJSONBody(r, &change); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		doc, err := svc.ChangeStatus(ctx, actor, id, change)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// AttachDocumentReports uploads the similarity and/or AI report for a document.
// complete=true also moves it to completed.
func AttachDocumentReports(svc documents.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
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
		if err := parseMultipart(w, r, 2*maxUploadBytes+formOverhead); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input, closeFiles, err := reportInput(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer closeFiles()
		input.Source = documents.SourceManual

		doc, err := svc.AttachReports(ctx, actor, id, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// reportInput reads the shared report form used by the dashboard and the extension.
func reportInput(r *http.Request) (documents.ReportInput, func(), error) {
	var input documents.ReportInput
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	simFile, sim, err := formFile(r, "similarity_report")
	if err != nil {
		return input, closeAll, err
	}
	if simFile != nil {
		closers = append(closers, simFile.Close)
	}
	aiFile, ai, err := formFile(r, "ai_report")
	if err != nil {
		return input, closeAll, err
	}
	if aiFile != nil {
		closers = append(closers, aiFile.Close)
	}
	input.Similarity = sim
	input.AI = ai

	if input.SimilarityPercentage, err = formFloat(r, "similarity_percentage"); err != nil {
		return input, closeAll, err
	}
	if input.AIPercentage, err = formFloat(r, "ai_percentage"); err != nil {
		return input, closeAll, err
	}
	if raw := strings.TrimSpace(r.FormValue("complete")); raw != "" {
		input.Complete = raw == "true" || raw == "1"
	}
	return input, closeAll, nil
}

// DocumentStats returns document counts per status.
func DocumentStats(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
