package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const (
	matchedDir   = "matched"
	unmatchedDir = "unmatched"
)

type reportMatcher interface {
	MatchReport(ctx context.Context, actor documents.Actor, file bulkmatch.ReportFile) (*bulkmatch.Outcome, error)
}

// Runner feeds report files into the matcher and files them away by outcome
// so a watched inbox never sees the same report twice.
type Runner struct {
	matcher reportMatcher
	actor   documents.Actor
	logg    *logger.Logger
}

func NewRunner(matcher reportMatcher, actor documents.Actor, logg *logger.Logger) (*Runner, error) {
	if matcher == nil {
		return nil, errors.New("matcher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Runner{matcher: matcher, actor: actor, logg: logg}, nil
}

// ProcessDir matches every PDF currently in dir.
func (r *Runner) ProcessDir(ctx context.Context, dir string) (bulkmatch.Summary, error) {
	var summary bulkmatch.Summary
	paths, err := listReports(dir)
	if err != nil {
		return summary, err
	}
	for _, p := range paths {
		out, err := r.ProcessFile(ctx, p)
		if err != nil {
			return summary, err
		}
		if out == nil {
			continue
		}
		summary.Results = append(summary.Results, *out)
		if out.Outcome == enums.MatchMatched {
			summary.Matched++
		} else {
			summary.Unmatched++
		}
	}
	return summary, nil
}

// ProcessFile matches one report. A file that vanished before it could be
// opened yields a nil outcome.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*bulkmatch.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	out, err := r.matcher.MatchReport(ctx, r.actor, bulkmatch.ReportFile{Name: filepath.Base(path), Body: f})
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", path, err)
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"file":    out.FileName,
		"outcome": string(out.Outcome),
		"reason":  out.Reason,
	})
	target := unmatchedDir
	if out.Outcome == enums.MatchMatched {
		target = matchedDir
		r.logg.Info(logCtx, "report matched")
	} else {
		r.logg.Warn(logCtx, "report unmatched")
	}
	if err := moveInto(path, target); err != nil {
		return out, fmt.Errorf("file away %s: %w", path, err)
	}
	return out, nil
}

func moveInto(path, sub string) error {
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
