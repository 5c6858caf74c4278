package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/facilitydesk/facilitydesk/internal/app"
	"github.com/facilitydesk/facilitydesk/internal/billing"
	"github.com/facilitydesk/facilitydesk/internal/billing/events"
	jobmetrics "github.com/facilitydesk/facilitydesk/internal/jobs"
	"github.com/facilitydesk/facilitydesk/internal/observability"
	"github.com/facilitydesk/facilitydesk/internal/platform/cache"
	"github.com/facilitydesk/facilitydesk/internal/shared"
	"github.com/facilitydesk/facilitydesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, jobs and redis events disabled", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	publisher := newPublisher(cfg, redisClient, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("events close", slog.Any("error", err))
		}
	}()

	service := billing.NewInMemory(publisher, metrics, logger)
	if cfg.SeedDemoData {
		if _, err := service.Import(ctx, billing.DemoSources()); err != nil {
			logger.Error("seed demo data", slog.Any("error", err))
		}
	} else if _, err := service.Rebuild(ctx, "startup"); err != nil {
		logger.Error("initial rebuild", slog.Any("error", err))
	}

	var (
		queue     billing.JobQueue
		inspector jobs.QueueInspector
		worker    *jobs.Worker
	)
	if cfg.JobsEnabled && redisClient != nil {
		queueOpt := cache.QueueOpt(redisClient)
		jobClient := jobs.NewClient(queueOpt)
		defer func() { _ = jobClient.Close() }()
		queueInspector := asynq.NewInspector(queueOpt)
		defer func() { _ = queueInspector.Close() }()
		queue, inspector = jobClient, queueInspector

		worker, err = newWorker(cfg, queueOpt, service, logger, jobMetrics)
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
	}

	billingHandler := billing.NewHandler(logger, service, queue)
	if redisClient != nil {
		billingHandler.WithIdempotency(shared.NewIdempotencyStore(redisClient, 24*time.Hour))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billingHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return cache.Check(ctx, redisClient)
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("facilitydesk stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("facilitydesk stopped")
}

func newPublisher(cfg *app.Config, redisClient *redis.Client, logger *slog.Logger) events.Publisher {
	switch cfg.EventsSink {
	case app.EventsSinkKafka:
		logger.Info("publishing ledger events to kafka", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case app.EventsSinkRedis:
		if redisClient != nil {
			return events.NewRedisPublisher(redisClient, "")
		}
	}
	return events.Nop{}
}

func newWorker(cfg *app.Config, queueOpt asynq.RedisClientOpt, service *billing.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) (*jobs.Worker, error) {
	rebuildJob := jobs.NewLedgerRebuildJob(service, logger, metrics)
	exportJob := jobs.NewStatementExportJob(service, cfg.StatementExportDir, logger, metrics)

	var cron []jobs.CronRegistration
	if cfg.LedgerRebuildCron != "" {
		task, err := jobs.NewLedgerRebuildTask("scheduled")
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LedgerRebuildCron, Task: task, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}})
	}

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: queueOpt,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRebuild, Handler: rebuildJob.Handle},
			{Type: jobs.TaskStatementExport, Handler: exportJob.Handle},
		},
		Cron: cron,
	})
}
