package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

const maxResponseBytes = 64 << 20

var (
	errBaseURLRequired = errors.New("agent api base url is required")
	errTokenRequired   = errors.New("agent extension token is required")
)

// Job is a document leased to this agent.
type Job struct {
	ID             uuid.UUID      `json:"id"`
	FileName       string         `json:"file_name"`
	ScanType       enums.ScanType `json:"scan_type"`
	LeaseExpiresAt *time.Time     `json:"lease_expires_at"`
}

// Download is the original file of a leased document.
type Download struct {
	FileName  string
	Content   []byte
	SignedURL string
}

// ReportUpload carries the checker output back to the API.
type ReportUpload struct {
	DocumentID           uuid.UUID
	SimilarityReport     []byte
	AIReport             []byte
	SimilarityPercentage *float64
	AIPercentage         *float64
}

// APIClient calls the extension REST surface with an extension token.
type APIClient struct {
	http    *http.Client
	baseURL string
}

// NewAPIClient builds a client that sends the token as a bearer credential.
func NewAPIClient(baseURL, token string) (*APIClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(token) == "" {
		return nil, errTokenRequired
	}
	base := &http.Client{Timeout: 60 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(token), TokenType: "Bearer"}))
	return &APIClient{http: httpClient, baseURL: baseURL}, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extension api: status %d: %s %s", e.Status, e.Code, e.Message)
}

// Heartbeat reports liveness and renews the leases this token holds.
func (c *APIClient) Heartbeat(ctx context.Context, version string) error {
	return c.postJSON(ctx, "/extension-api/heartbeat", map[string]string{"version": version}, nil)
}

// Pending claims the next pending document. A nil job means the queue is empty.
func (c *APIClient) Pending(ctx context.Context) (*Job, error) {
	var out struct {
		Document *Job `json:"document"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extension-api/pending", nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Document, nil
}

// Download fetches the original file of a leased document.
func (c *APIClient) Download(ctx context.Context, id uuid.UUID) (*Download, error) {
	var out struct {
		FileName      string `json:"file_name"`
		ContentBase64 string `json:"content_base64"`
		SignedURL     string `json:"signed_url"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extension-api/download/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(out.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("decode document content: %w", err)
	}
	return &Download{FileName: out.FileName, Content: content, SignedURL: out.SignedURL}, nil
}

// UploadReport sends the reports as multipart form data.
func (c *APIClient) UploadReport(ctx context.Context, upload ReportUpload) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("document_id", upload.DocumentID.String()); err != nil {
		return err
	}
	if upload.SimilarityPercentage != nil {
		if err := form.WriteField("similarity_percentage", strconv.FormatFloat(*upload.SimilarityPercentage, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if upload.AIPercentage != nil {
		if err := form.WriteField("ai_percentage", strconv.FormatFloat(*upload.AIPercentage, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if err := writeFile(form, "similarity_report", "similarity-report.pdf", upload.SimilarityReport); err != nil {
		return err
	}
	if err := writeFile(form, "ai_report", "ai-report.pdf", upload.AIReport); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extension-api/upload-report", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, nil)
}

// ReportError records a processing failure for a leased document.
func (c *APIClient) ReportError(ctx context.Context, id uuid.UUID, message string) error {
	return c.postJSON(ctx, "/extension-api/error", map[string]string{
		"document_id": id.String(),
		"message":     message,
	}, nil)
}

func writeFile(form *multipart.Writer, field, name string, content []byte) error {
	if len(content) == 0 {
		return nil
	}
	part, err := form.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}

func (c *APIClient) postJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
