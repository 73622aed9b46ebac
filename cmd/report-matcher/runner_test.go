package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type fakeMatcher struct {
	seen []string
}

func (f *fakeMatcher) MatchReport(_ context.Context, _ documents.Actor, file bulkmatch.ReportFile) (*bulkmatch.Outcome, error) {
	body, err := io.ReadAll(file.Body)
	if err != nil {
		return nil, err
	}
	f.seen = append(f.seen, file.Name)
	out := &bulkmatch.Outcome{FileName: file.Name, Outcome: enums.MatchUnmatched, Reason: bulkmatch.ReasonNoMatch}
	if strings.Contains(string(body), "match") {
		out.Outcome = enums.MatchMatched
		out.Reason = ""
	}
	return out, nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestRunner(t *testing.T) (*Runner, *fakeMatcher) {
	t.Helper()
	m := &fakeMatcher{}
	r, err := NewRunner(m, documents.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, logger.New(logger.Options{ServiceName: "test"}))
	require.NoError(t, err)
	return r, m
}

func TestProcessDirFilesReportsByOutcome(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "essay.pdf", "match")
	writeFile(t, dir, "thesis.PDF", "nothing")
	writeFile(t, dir, "notes.txt", "match")

	r, m := newTestRunner(t)
	summary, err := r.ProcessDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Matched)
	require.Equal(t, 1, summary.Unmatched)
	require.ElementsMatch(t, []string{"essay.pdf", "thesis.PDF"}, m.seen)

	require.FileExists(t, filepath.Join(dir, matchedDir, "essay.pdf"))
	require.FileExists(t, filepath.Join(dir, unmatchedDir, "thesis.PDF"))
	require.FileExists(t, filepath.Join(dir, "notes.txt"))
	require.NoFileExists(t, filepath.Join(dir, "essay.pdf"))
}

func TestProcessFileIgnoresVanishedFile(t *testing.T) {
	r, m := newTestRunner(t)
	out, err := r.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"))
	require.NoError(t, err)
	require.Nil(t, out)
	require.Empty(t, m.seen)
}

func TestWatchEmitsExistingAndNewReports(t *testing.T) {
	dir := t.TempDir()
	existing := writeFile(t, dir, "first.pdf", "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := Watch(ctx, WatchConfig{Dir: dir, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	require.Equal(t, existing, receive(t, paths))

	created := writeFile(t, dir, "second.pdf", "y")
	writeFile(t, dir, "ignored.txt", "z")
	require.Equal(t, created, receive(t, paths))
}

func TestWatchRequiresDir(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	require.Error(t, err)
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher")
		return ""
	}
}
