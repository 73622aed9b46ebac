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
	"strings"
	"time"
)

// Reports is what a checker produces for one document.
type Reports struct {
	SimilarityReport     []byte
	AIReport             []byte
	SimilarityPercentage *float64
	AIPercentage         *float64
}

// Checker runs a document through the external checker.
type Checker interface {
	Check(ctx context.Context, job Job, file Download) (*Reports, error)
}

// HTTPChecker hands documents to a browser-automation bridge over HTTP.
// The bridge accepts multipart uploads and answers with base64 report PDFs.
type HTTPChecker struct {
	http *http.Client
	url  string
}

func NewHTTPChecker(url string) (*HTTPChecker, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("checker url is required")
	}
	return &HTTPChecker{http: &http.Client{Timeout: 15 * time.Minute}, url: url}, nil
}

type checkerResponse struct {
	SimilarityReport     string   `json:"similarity_report_base64"`
	AIReport             string   `json:"ai_report_base64"`
	SimilarityPercentage *float64 `json:"similarity_percentage"`
	AIPercentage         *float64 `json:"ai_percentage"`
	Error                string   `json:"error"`
}

func (c *HTTPChecker) Check(ctx context.Context, job Job, file Download) (*Reports, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("document_id", job.ID.String()); err != nil {
		return nil, err
	}
	if err := form.WriteField("scan_type", string(job.ScanType)); err != nil {
		return nil, err
	}
	part, err := form.CreateFormFile("file", file.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read checker response: %w", err)
	}
	var decoded checkerResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode checker response: status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || decoded.Error != "" {
		return nil, fmt.Errorf("checker failed: status %d: %s", resp.StatusCode, decoded.Error)
	}

	out := &Reports{SimilarityPercentage: decoded.SimilarityPercentage, AIPercentage: decoded.AIPercentage}
	if out.SimilarityReport, err = decodeReport(decoded.SimilarityReport); err != nil {
		return nil, fmt.Errorf("similarity report: %w", err)
	}
	if out.AIReport, err = decodeReport(decoded.AIReport); err != nil {
		return nil, fmt.Errorf("ai report: %w", err)
	}
	return out, nil
}

func decodeReport(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
