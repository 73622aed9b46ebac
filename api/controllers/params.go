package controllers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/middleware"
	"github.com/simcheck/simcheck-backend/api/validators"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// multipartMemory bounds the in-memory part of a parsed form; larger
	// parts spill to temp files.
	multipartMemory = 8 << 20
)

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}

func callerRole(r *http.Request) enums.Role {
	return enums.Role(middleware.RoleFromContext(r.Context()))
}

func documentActor(r *http.Request) (documents.Actor, error) {
	id, err := callerID(r)
	if err != nil {
		return documents.Actor{}, err
	}
	return documents.Actor{UserID: id, Role: callerRole(r)}, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

type pageParams struct {
	Limit  int
	Cursor string
}

func parsePage(r *http.Request) (pageParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return pageParams{}, err
	}
	return pageParams{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key+" value")
	}
	return v, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if d, derr := time.Parse(time.DateOnly, raw); derr == nil {
			t = d
		} else {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key+" timestamp")
		}
	}
	t = t.UTC()
	return &t, nil
}

func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// formFile opens an optional upload. The caller closes the returned file.
func formFile(r *http.Request, field string) (multipart.File, *documents.FileInput, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read "+field)
	}
	return file, fileInput(file, header), nil
}

func fileInput(body io.Reader, header *multipart.FileHeader) *documents.FileInput {
	return &documents.FileInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        body,
	}
}

func formFloat(r *http.Request, field string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil || v < 0 || v > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" must be between 0 and 100").WithDetails(map[string]any{"field": field})
	}
	return &v, nil
}
