// Package pdftext extracts per-page text from PDF files with poppler's pdftotext.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/simcheck/simcheck-backend/pkg/config"
)

// Runner shells out to pdftotext.
type Runner struct {
	bin     string
	timeout time.Duration
}

func NewRunner(cfg config.PDFConfig) *Runner {
	bin := strings.TrimSpace(cfg.PDFToTextBin)
	if bin == "" {
		bin = "pdftotext"
	}
	return &Runner{bin: bin, timeout: cfg.Timeout}
}

// Pages returns the text of each page, in order.
func (r *Runner) Pages(ctx context.Context, pdf []byte) ([]string, error) {
	if len(pdf) == 0 {
		return nil, errors.New("empty pdf")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	tmp, err := os.CreateTemp("", "report-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pdf); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return SplitPages(stdout.String()), nil
}

// SplitPages splits pdftotext output on form feeds, dropping the empty tail
// that follows the final page.
func SplitPages(text string) []string {
	pages := strings.Split(text, "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}
