package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command>

commands:
  up              apply pending migrations
  down            roll back the newest migration
  to <version>    move the schema to version (YYYYMMDDHHMMSS)
  status          list migrations and when they were applied
  check           lint migration files
  new <name>      scaffold a migration in -dir (default %s)
`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() { fmt.Fprintf(os.Stderr, usage, migrate.SourceDir) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "command", args[0])

	files := migrate.Files()
	if *dir != "" {
		files = os.DirFS(*dir)
	}

	switch args[0] {
	case "check":
		exitOn(ctx, logg, "migrations failed lint", migrate.Check(files))
		logg.Info(ctx, "migrations ok")
		return
	case "new":
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.Scaffold(target, argAt(args, 1), time.Now())
		exitOn(ctx, logg, "could not scaffold migration", err)
		fmt.Println(path)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "database", err)
	defer dbClient.Close()
	conn, err := dbClient.DB().DB()
	exitOn(ctx, logg, "database handle", err)

	runner, err := migrate.NewRunner(conn, files)
	exitOn(ctx, logg, "migration runner", err)

	var applied []migrate.Applied
	switch args[0] {
	case "up":
		applied, err = runner.Up(ctx)
	case "down":
		applied, err = runner.Down(ctx)
	case "to":
		version, perr := strconv.ParseInt(argAt(args, 1), 10, 64)
		exitOn(ctx, logg, "version must be YYYYMMDDHHMMSS", perr)
		applied, err = runner.To(ctx, version)
	case "status":
		err = printStatus(ctx, runner)
	default:
		flag.Usage()
		os.Exit(2)
	}
	for _, a := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":  a.Version,
			"file":     a.File,
			"rollback": a.Rollback,
			"took_ms":  a.Took.Milliseconds(),
		}), "migration applied")
	}
	exitOn(ctx, logg, "migration failed", err)
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	rows, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, r := range rows {
		applied := "pending"
		if r.AppliedAt != nil {
			applied = r.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Version, applied, r.File)
	}
	return w.Flush()
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func exitOn(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, what, err)
	os.Exit(1)
}
