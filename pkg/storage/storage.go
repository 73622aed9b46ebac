package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the blob surface used for documents and reports.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ReportKind identifies a report attached to a document.
type ReportKind string

const (
	ReportSimilarity ReportKind = "similarity"
	ReportAI         ReportKind = "ai"
)

// DocumentKey builds the object key for an uploaded document.
// Guest uploads use "guest" in place of a user id.
func DocumentKey(owner string, id uuid.UUID, fileName string) string {
	if strings.TrimSpace(owner) == "" {
		owner = "guest"
	}
	return path.Join("documents", owner, fmt.Sprintf("%s-%s", id, SafeFileName(fileName)))
}

// ReportKey builds the object key for a report of the given kind.
func ReportKey(documentID uuid.UUID, kind ReportKind, fileName string) string {
	return path.Join("reports", documentID.String(), fmt.Sprintf("%s-%s", kind, SafeFileName(fileName)))
}

// SafeFileName strips directory components and characters unsafe for object keys.
func SafeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file.pdf"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '?' || r == '#' || r == '%' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
