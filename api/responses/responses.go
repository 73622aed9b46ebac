// Package responses writes the JSON envelopes every handler returns:
// {"data": ...} on success and {"error": {...}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type Envelope struct {
	Data any `json:"data"`
}

type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ProblemEnvelope struct {
	Error Problem `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError renders err as a problem envelope. Untyped errors become a
// generic 500 so their text never reaches the client. Server-side failures
// log at error level, client mistakes at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.Coerce(err)
	code := typed.Code()

	problem := Problem{Code: string(code), Message: typed.PublicMessage()}
	if code.ExposesDetails() {
		problem.Details = typed.Details()
	}
	if code == pkgerrors.CodeRateLimit {
		w.Header().Set("Retry-After", "60")
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.LogFields(typed))
		if code.HTTPStatus() >= http.StatusInternalServerError {
			logg.Error(logCtx, "request failed", typed)
		} else {
			logg.Warn(logg.WithField(logCtx, "error", typed.Error()), "request rejected")
		}
	}

	writeJSON(w, code.HTTPStatus(), ProblemEnvelope{Error: problem})
}

// WriteFile sends data as a download named fileName.
func WriteFile(w http.ResponseWriter, contentType, fileName string, data []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
