package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata/companies"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const usage = `usage: odyssey [command]

commands:
  serve                      run the HTTP API (default)
  migrate                    apply pending schema migrations
  integrity [--company N] [--json]
                             check posted debits equal credits per period
  jobs trigger <task> [--company N]
  jobs inspect [--queue Q]
  jobs scheduled [--size N]
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "integrity":
		code = integrity(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LedgerMigrate {
		applied, err := db.Migrate(ctx, pool, db.LedgerMigrations)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("schema migrated", slog.Int("applied", applied))
	}
	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, trial balance cache disabled", slog.Any("error", err))
		rdb = nil
	}
	return pool, rdb, nil
}

func ledgerOptions(cfg *app.Config) accounting.Options {
	return accounting.Options{
		TxTimeout:    cfg.LedgerTxTimeout,
		BatchTimeout: cfg.LedgerBatchTimeout,
		BatchMax:     cfg.LedgerBatchMax,
		CacheTTL:     cfg.LedgerTBCacheTTL,
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, rdb, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	ledgerMetrics := observability.NewLedgerMetrics(metrics.Registerer())
	ledger, _ := accounting.New(pool, rdb, ledgerOptions(cfg), logger, ledgerMetrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	readiness := map[string]app.Pinger{"postgres": pool}
	if rdb != nil {
		readiness["redis"] = app.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, ledger, jobClient),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Readiness:         readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		code = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return code
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool, db.LedgerMigrations)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("schema migrated", slog.Int("applied", applied))
	return 0
}

func integrity(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("integrity", flag.ContinueOnError)
	company := fs.Int64("company", 0, "company id, 0 for all")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, rdb, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if rdb != nil {
		defer rdb.Close()
	}

	_, parts := accounting.New(pool, rdb, ledgerOptions(cfg), logger, nil)
	job := jobs.NewGLIntegrityJob(companies.NewRepository(pool), parts.Periods, parts.Reports, logger, nil)
	return cli.IntegrityCommand(ctx, job, cli.IntegrityOptions{CompanyID: *company, JSONOutput: *asJSON})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer jc.Close()

	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("jobs "+sub, flag.ContinueOnError)
	company := fs.Int64("company", 0, "company id for scoped tasks")
	queue := fs.String("queue", jobs.QueueLedger, "queue to inspect")
	size := fs.Int("size", 10, "page size")

	switch sub {
	case "trigger":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		name := rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return 2
		}
		info, err := jc.Trigger(ctx, name, *company)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "inspect":
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		stats, err := jc.InspectQueue(ctx, *queue)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		tasks, err := jc.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
