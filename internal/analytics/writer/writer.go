// Package writer streams scan_events rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simcheck/simcheck-backend/internal/analytics/types"
)

type Config struct {
	ScanEventsTable string
	// BatchSize rows are buffered before a flush. One writes every row
	// straight through.
	BatchSize int
	Retry     RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = 2 * time.Second
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer buffers rows and inserts them with bounded retries on transient
// BigQuery errors.
type Writer struct {
	sink  inserter
	table string
	batch int
	retry RetryPolicy

	mu      sync.Mutex
	pending []types.ScanEventRow
	sleep   func(context.Context, time.Duration) error
}

func New(sink inserter, cfg Config) (*Writer, error) {
	if sink == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.ScanEventsTable)
	if table == "" {
		return nil, errors.New("scan events table is required")
	}
	return &Writer{
		sink:  sink,
		table: table,
		batch: max(cfg.BatchSize, 1),
		retry: cfg.Retry.withDefaults(),
		sleep: sleep,
	}, nil
}

func (w *Writer) InsertScanEvent(ctx context.Context, row types.ScanEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batch {
		return nil
	}
	return w.flush(ctx)
}

// Flush writes whatever is buffered. Rows stay buffered when it fails.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, len(w.pending))
	for i, r := range w.pending {
		rows[i] = r
	}

	wait := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.sink.InsertRows(ctx, w.table, rows)
		if err == nil {
			w.pending = w.pending[:0]
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !transient(err) {
			return fmt.Errorf("insert %d rows into %s after %d attempt(s): %w", len(rows), w.table, attempt, err)
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
		wait = min(wait*2, w.retry.MaximumBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transient reports whether every underlying failure is one a retry can fix.
func transient(err error) bool {
	leaves := flatten(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !transientLeaf(leaf) {
			return false
		}
	}
	return true
}

// flatten unpacks the per-row error containers returned by the inserter.
func flatten(err error) []error {
	var (
		multi  cbigquery.MultiError
		perRow cbigquery.PutMultiError
		row    *cbigquery.RowInsertionError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &perRow):
		var out []error
		for i := range perRow {
			out = append(out, flatten(&perRow[i])...)
		}
		return out
	case errors.As(err, &row):
		return flattenAll(row.Errors)
	case errors.As(err, &multi):
		return flattenAll(multi)
	}
	return []error{err}
}

func flattenAll(errs []error) []error {
	var out []error
	for _, e := range errs {
		out = append(out, flatten(e)...)
	}
	return out
}

func transientLeaf(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// EncodeJSON prepares a payload for a JSON column. Raw bytes pass through.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
