// Package migrate applies the goose SQL migrations that ship inside every
// binary, so no service depends on its working directory to find them.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

// SourceDir is where new migrations are written, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Files exposes the embedded migrations with the migrations/ prefix stripped.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Applied describes one migration a Runner executed.
type Applied struct {
	Version  int64
	File     string
	Took     time.Duration
	Rollback bool
}

// Pending is one line of Runner.Status.
type Pending struct {
	Version   int64
	File      string
	AppliedAt *time.Time
}

// Runner drives a goose provider over a Postgres handle.
type Runner struct {
	p *goose.Provider
}

func NewRunner(conn *sql.DB, files fs.FS) (*Runner, error) {
	if conn == nil {
		return nil, errors.New("migrate: sql handle required")
	}
	if files == nil {
		files = Files()
	}
	p, err := goose.NewProvider(goose.DialectPostgres, conn, files)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Runner{p: p}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	res, err := r.p.Up(ctx)
	return collect(res), wrap("up", err)
}

// Down rolls back the newest applied migration.
func (r *Runner) Down(ctx context.Context) ([]Applied, error) {
	res, err := r.p.Down(ctx)
	if res == nil {
		return nil, wrap("down", err)
	}
	return collect([]*goose.MigrationResult{res}), wrap("down", err)
}

// To moves the schema up or down until version is the newest applied one.
func (r *Runner) To(ctx context.Context, version int64) ([]Applied, error) {
	current, err := r.p.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}
	var res []*goose.MigrationResult
	switch {
	case version > current:
		res, err = r.p.UpTo(ctx, version)
	case version < current:
		res, err = r.p.DownTo(ctx, version)
	}
	return collect(res), wrap(fmt.Sprintf("to %d", version), err)
}

func (r *Runner) Status(ctx context.Context) ([]Pending, error) {
	rows, err := r.p.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Pending, 0, len(rows))
	for _, s := range rows {
		line := Pending{Version: s.Source.Version, File: s.Source.Path}
		if s.State == goose.StateApplied {
			at := s.AppliedAt
			line.AppliedAt = &at
		}
		out = append(out, line)
	}
	return out, nil
}

func collect(res []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(res))
	for _, r := range res {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:  r.Source.Version,
			File:     r.Source.Path,
			Took:     r.Duration,
			Rollback: r.Direction == "down",
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("migrate %s: %w", op, err)
}

// ApplyInDev runs Up against the service database when the environment is
// dev and the auto-migrate flag is on. Other environments run cmd/migrate.
func ApplyInDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	conn, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: sql handle: %w", err)
	}
	runner, err := NewRunner(conn, nil)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev schema up to date")
	return nil
}
