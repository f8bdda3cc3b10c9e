// Command filmmigrate copies the film catalogue from a SQLite file into the
// Postgres content schema and reports what was loaded. It takes no flags;
// configuration comes from FILMMIGRATE_* variables, an optional .env file and
// an optional YAML file named by FILMMIGRATE_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"filmmigrate/internal/blob"
	"filmmigrate/internal/config"
	"filmmigrate/internal/copyfmt"
	"filmmigrate/internal/infra/destination/postgres"
	"filmmigrate/internal/infra/source/sqlite"
	"filmmigrate/internal/logging"
	"filmmigrate/internal/metrics"
	"filmmigrate/internal/migrate"
	"filmmigrate/internal/report"

	"github.com/hashicorp/go-hclog"
)

// destinationSession is the part of *postgres.Session the command uses.
type destinationSession interface {
	postgres.Loader
	Close(ctx context.Context) error
}

var (
	exitFunc        = os.Exit
	openDestination = func(ctx context.Context, cfg config.Destination, logger hclog.Logger) (destinationSession, error) {
		s, err := postgres.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func run(ctx context.Context, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "filmmigrate: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.Log, stderr)

	db, err := sqlite.Open(ctx, cfg.Source.Path)
	if err != nil {
		logger.Error("cannot open source", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close source", "error", err)
		}
	}()

	session, err := openDestination(ctx, cfg.Destination, logger)
	if err != nil {
		logger.Error("cannot connect to destination", "error", err)
		return 1
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close destination", "error", err)
		}
	}()

	mode := copyfmt.FlushTail
	if cfg.Batch.DropPartial {
		mode = copyfmt.DropTail
	}
	rec := metrics.New()
	pipeline := &migrate.Pipeline{
		Source:      sqlite.NewReader(db, logger),
		Destination: postgres.NewWriter(session, cfg.Destination.Schema, cfg.Retry, logger, rec),
		BatchSize:   cfg.Batch.Size,
		TailMode:    mode,
		Logger:      logger,
		Metrics:     rec,
	}
	summary, runErr := pipeline.Run(ctx)
	if runErr != nil {
		logger.Error("migration stopped", "run_id", summary.RunID, "error", runErr)
	}
	if err := migrate.WriteTable(stdout, summary); err != nil {
		logger.Warn("write summary", "error", err)
	}

	if err := archive(context.WithoutCancel(ctx), cfg.Report, summary, logger); err != nil {
		logger.Warn("report not archived", "error", err)
	}
	if err := rec.Export(context.WithoutCancel(ctx), cfg.Metrics); err != nil {
		logger.Warn("metrics not exported", "error", err)
	}
	return summary.ExitCode()
}

func archive(ctx context.Context, cfg config.Report, summary migrate.Summary, logger hclog.Logger) error {
	store, err := blob.Open(ctx, cfg)
	if errors.Is(err, blob.ErrDisabled) {
		return nil
	}
	if err != nil {
		return err
	}
	info, err := report.Archive(ctx, store, summary)
	if err != nil {
		return err
	}
	logger.Info("report archived", "driver", store.Driver(), "key", info.Key, "size", info.Size)
	return nil
}
