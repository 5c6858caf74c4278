package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/facilitydesk/facilitydesk/internal/jobs"
	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Rebuilder recomputes and publishes the ledger.
type Rebuilder interface {
	Rebuild(ctx context.Context, reason string) (*ledger.Snapshot, error)
}

// LedgerRebuildJob reconciles the published ledger with the stored sources.
type LedgerRebuildJob struct {
	Ledger  Rebuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerRebuildJob wires dependencies for the rebuild handler.
func NewLedgerRebuildJob(rebuilder Rebuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRebuildJob {
	return &LedgerRebuildJob{Ledger: rebuilder, Logger: logger, Metrics: metrics}
}

// Handle processes ledger rebuild tasks. Invalid source data is not retried;
// it stays invalid until someone edits the record.
func (j *LedgerRebuildJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger rebuild: handler not configured")
	}
	payload := LedgerRebuildPayload{Reason: "scheduled"}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskLedgerRebuild)
	logger := loggerFor(j.Logger, TaskLedgerRebuild).With(slog.String("reason", payload.Reason))

	snap, err := j.Ledger.Rebuild(ctx, payload.Reason)
	if err != nil {
		logger.Error("ledger rebuild failed", slog.Any("error", err))
		if errors.Is(err, ledger.ErrValidation) {
			return tracker.End(fmt.Errorf("%w: %w", asynq.SkipRetry, err))
		}
		return tracker.End(err)
	}
	logger.Info("ledger rebuild completed", slog.Uint64("version", snap.Version), slog.Int("entries", len(snap.Entries)))
	return tracker.End(nil)
}

func loggerFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
