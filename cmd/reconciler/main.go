// cmd/reconciler/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"transfer-reconciler/internal/common/config"
	"transfer-reconciler/internal/common/database"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/observability"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/repository"
	"transfer-reconciler/internal/server"

	ima "transfer-reconciler/internal/workers/data-access/index-match-attempt"
	epi "transfer-reconciler/internal/workers/extraction/extract-payment-info"
	mw "transfer-reconciler/internal/workers/ingestion/mailbox-watcher"
	ap "transfer-reconciler/internal/workers/matching/approve-payment"
	mp "transfer-reconciler/internal/workers/matching/match-payment"
	dw "transfer-reconciler/internal/workers/notification/dispatch-webhook"
	rp "transfer-reconciler/internal/workers/scheduling/recheck-payment"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func queueOptions(cfg *config.Config) queue.Options {
	return queue.Options{
		Workers:         cfg.Queue.Workers,
		MaxRetries:      cfg.Queue.MaxRetries,
		StuckAfter:      config.GetDuration(cfg.Queue.StuckAfter),
		SweepInterval:   config.GetDuration(cfg.Queue.SweepInterval),
		PromoteInterval: config.GetDuration(cfg.Scheduler.PollInterval),
		JobTTL:          config.GetDuration(cfg.Queue.JobTTL),
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting transfer reconciler...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(cfg.Database.Postgres.GetURL()); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		zapLog.Info("Migrations applied")
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Optional Elasticsearch audit index ---
	var (
		indexer  mp.AttemptIndexer
		searcher server.AttemptSearcher
	)
	if cfg.Database.Elasticsearch.Enabled() {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err == nil {
			err = esClient.Ping(ctx)
		}
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, audit index disabled", zap.Error(err))
		} else {
			h := ima.NewHandler(ima.ConfigFrom(cfg.Database.Elasticsearch), esClient.Client, log)
			if err := h.EnsureIndex(ctx); err != nil {
				zapLog.Warn("audit index not ready", zap.Error(err))
			}
			indexer, searcher = h, h
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Repositories & queue ---
	payments := repository.NewPostgresPaymentRepository(pg.DB)
	emails := repository.NewPostgresEmailRepository(pg.DB)
	templates := repository.NewPostgresTemplateRepository(pg.DB)
	attempts := repository.NewPostgresAttemptRepository(pg.DB)

	q := queue.NewQueue(rdb.Client, queueOptions(cfg), log, obs)

	// --- Pipeline workers ---
	extractor, err := epi.NewHandler(epi.ConfigFrom(cfg.Extraction), templates, log)
	if err != nil {
		zapLog.Fatal("failed to create extractor", zap.Error(err))
	}

	approver := ap.NewHandler(ap.ConfigFrom(cfg.Charges, cfg.Matching), payments, q, log)

	matcher := mp.NewHandler(mp.ConfigFrom(cfg.Matching), mp.Deps{
		Emails:    emails,
		Payments:  payments,
		Extractor: extractor,
		Approver:  approver,
		Attempts:  attempts,
		Indexer:   indexer,
	}, log)

	dispatcher := dw.NewHandler(dw.ConfigFrom(cfg.Webhook), payments, nil, log)

	forwarder := mw.NewPipelineForwarder(emails, q, rdb.Client, 0, log)
	watchers := mw.NewManager(cfg.Mailboxes, nil, forwarder, log)

	rechecker := rp.NewHandler(rp.ConfigFrom(cfg.Scheduler, cfg.Matching), rp.Deps{
		Payments: payments,
		Emails:   emails,
		Matcher:  matcher,
		Fetcher:  watchers,
		Queue:    q,
	}, log)

	q.Register(queue.JobTypeProcessEmail, matcher.HandleJob)
	q.Register(queue.JobTypeDispatchWebhook, dispatcher.HandleJob)
	q.Register(queue.JobTypeRecheckPayment, rechecker.HandleJob)
	q.Start()
	zapLog.Info("Queue workers started", zap.Int("workers", cfg.Queue.Workers))

	watchers.Start(ctx)

	// --- API, Health & Metrics Server ---
	srv := server.New(cfg.Server, server.Deps{
		Payments:  payments,
		Scheduler: rechecker,
		Extractor: extractor,
		Attempts:  searcher,
		Checks: map[string]server.Checker{
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
		},
	}, log)
	srvErr := srv.Start()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping...")
	case err := <-srvErr:
		zapLog.Error("API server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping API server", zap.Error(err))
	}
	watchers.Stop()
	q.Stop()
	cancel()

	zapLog.Info("Transfer reconciler stopped gracefully")
}
