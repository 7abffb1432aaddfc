package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/virocov/internal/config"
	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/pipeline"
	"github.com/me/virocov/internal/reference"
	"github.com/me/virocov/internal/stages"
	"github.com/me/virocov/internal/staging"
	"github.com/me/virocov/internal/store"
)

func (a *app) runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return fmt.Errorf("%w: create run root: %w", staging.ErrPrecondition, err)
	}

	engine, err := a.newEngine(cfg, logger)
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.Ledger != "" {
		sqlStore, err := openLedger(ctx, cfg.LedgerPath(), logger)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	inv := a.newInvoker(cfg, engine, st, logger, cfgPath)
	logger.Info("starting run", "root", cfg.Root, "samples", len(cfg.Samples), "runtime", cfg.Runtime)
	return inv.Run(ctx, cfg.Samples)
}

func (a *app) newEngine(cfg config.PipelineConfig, logger *slog.Logger) (*execution.Engine, error) {
	registry, err := stages.Load(stages.Embedded(), logger)
	if err != nil {
		return nil, err
	}
	rt, err := execution.NewRuntime(cfg.Runtime)
	if err != nil {
		return nil, err
	}
	return execution.NewEngine(execution.Config{
		Logger:  logger,
		Tools:   registry,
		Runtime: rt,
		Trace:   a.stdout,
		Cores:   cfg.Cores,
	}), nil
}

func (a *app) newInvoker(cfg config.PipelineConfig, engine *execution.Engine, st store.Store, logger *slog.Logger, cfgPath string) *pipeline.Invoker {
	return pipeline.NewInvoker(pipeline.Config{
		Root:       cfg.Root,
		Runner:     engine,
		Fetcher:    newFetcher(cfg, logger),
		ArchiveURL: cfg.ArchiveURL,
		Store:      st,
		Reference: reference.Options{
			FASTA:         cfg.Reference.FASTA,
			List:          cfg.Reference.List,
			IgnoreVersion: cfg.Reference.IgnoreVersion,
		},
		IndexBasename:    cfg.IndexBasename,
		IncludeSecondary: cfg.IncludeSecondary,
		Jobs:             cfg.Jobs,
		Cores:            cfg.Cores,
		ControlAssets:    []string{cfgPath, cfg.LedgerPath()},
		Logger:           logger,
		Trace:            engine.Trace,
	})
}

// newFetcher routes archive locations to the stager for their scheme.
func newFetcher(cfg config.PipelineConfig, logger *slog.Logger) *execution.CompositeStager {
	httpStager := execution.NewHTTPStager(execution.HTTPStagerConfig{
		Timeout:     cfg.HTTP.Timeout,
		MaxRetries:  cfg.HTTP.MaxRetries,
		RetryDelay:  cfg.HTTP.RetryDelay,
		Credentials: cfg.HTTP.Credentials,
		Logger:      logger,
	}, nil)
	s3Stager := execution.NewS3Stager(execution.S3StagerConfig{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
		Anonymous: cfg.S3.Anonymous,
		Logger:    logger,
	})
	return execution.NewCompositeStager(map[string]execution.Stager{
		"http":  httpStager,
		"https": httpStager,
		"s3":    s3Stager,
	}, execution.NewFileStager())
}

func openLedger(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %w", staging.ErrPrecondition, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: migrate ledger: %w", staging.ErrPrecondition, err)
	}
	return st, nil
}
