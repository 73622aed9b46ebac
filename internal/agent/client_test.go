package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAPIClientRoundTrip(t *testing.T) {
	id := uuid.New()
	var uploaded map[string]string
	var failure map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/extension-api/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer ext_secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":{"renewed":1}}`)
	})
	mux.HandleFunc("/extension-api/pending", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"document": map[string]any{"id": id, "file_name": "essay.pdf", "scan_type": "full"},
		}})
	})
	mux.HandleFunc("/extension-api/download/"+id.String(), func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"file_name":      "essay.pdf",
			"content_base64": base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")),
		}})
	})
	mux.HandleFunc("/extension-api/upload-report", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("similarity_report")
		require.NoError(t, err)
		require.Equal(t, "similarity-report.pdf", header.Filename)
		_, _, err = r.FormFile("ai_report")
		require.ErrorIs(t, err, http.ErrMissingFile)
		uploaded = map[string]string{
			"document_id":           r.FormValue("document_id"),
			"similarity_percentage": r.FormValue("similarity_percentage"),
		}
		_, _ = io.WriteString(w, `{"data":{}}`)
	})
	mux.HandleFunc("/extension-api/error", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&failure))
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":{"code":"STATE_CONFLICT","message":"document not leased"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewAPIClient(srv.URL+"/", "ext_secret")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.Heartbeat(ctx, "1.0"))
	job, err := client.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	file, err := client.Download(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7"), file.Content)

	require.NoError(t, client.UploadReport(ctx, ReportUpload{DocumentID: id, SimilarityReport: []byte("pdf"), SimilarityPercentage: pct(21.5)}))
	require.Equal(t, id.String(), uploaded["document_id"])
	require.Equal(t, "21.5", uploaded["similarity_percentage"])

	err = client.ReportError(ctx, id, "checker crashed")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "document not leased", apiErr.Message)
	require.Equal(t, "checker crashed", failure["message"])
}

func TestAPIClientEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"document":null}}`)
	}))
	defer srv.Close()
	client, err := NewAPIClient(srv.URL, "t")
	require.NoError(t, err)
	job, err := client.Pending(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestNewAPIClientRequiresSettings(t *testing.T) {
	_, err := NewAPIClient(" ", "t")
	require.ErrorIs(t, err, errBaseURLRequired)
	_, err = NewAPIClient("http://api", "")
	require.ErrorIs(t, err, errTokenRequired)
}

func TestHTTPCheckerDecodesReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "similarity_only", r.FormValue("scan_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"similarity_report_base64": base64.StdEncoding.EncodeToString([]byte("sim")),
			"similarity_percentage":    7.5,
		})
	}))
	defer srv.Close()

	checker, err := NewHTTPChecker(srv.URL)
	require.NoError(t, err)
	reports, err := checker.Check(context.Background(), Job{ID: uuid.New(), ScanType: "similarity_only"}, Download{FileName: "a.pdf", Content: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, []byte("sim"), reports.SimilarityReport)
	require.Nil(t, reports.AIReport)
	require.Equal(t, 7.5, *reports.SimilarityPercentage)
}
