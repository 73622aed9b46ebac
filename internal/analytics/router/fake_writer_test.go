package router

import (
	"context"

	"github.com/simcheck/simcheck-backend/internal/analytics/types"
)

type fakeWriter struct {
	inserted []types.ScanEventRow
	err      error
}

func (f *fakeWriter) InsertScanEvent(_ context.Context, row types.ScanEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}
