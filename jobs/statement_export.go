package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/facilitydesk/facilitydesk/internal/billing"
	"github.com/facilitydesk/facilitydesk/internal/billing/export"
	jobmetrics "github.com/facilitydesk/facilitydesk/internal/jobs"
	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

// StatementSource builds party statements from the published ledger.
type StatementSource interface {
	Statement(party string, from, to *time.Time) (ledger.Statement, error)
}

// StatementExportJob renders a statement CSV into Dir.
type StatementExportJob struct {
	Statements StatementSource
	Dir        string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewStatementExportJob wires dependencies for the export handler.
func NewStatementExportJob(statements StatementSource, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatementExportJob {
	return &StatementExportJob{Statements: statements, Dir: dir, Logger: logger, Metrics: metrics}
}

// Handle processes statement export tasks.
func (j *StatementExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Statements == nil {
		return errors.New("statement export: handler not configured")
	}
	var payload StatementExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Party == "" {
		return asynq.SkipRetry
	}
	from, err := optionalDate(payload.From)
	if err != nil {
		return fmt.Errorf("%w: from: %w", asynq.SkipRetry, err)
	}
	to, err := optionalDate(payload.To)
	if err != nil {
		return fmt.Errorf("%w: to: %w", asynq.SkipRetry, err)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskStatementExport)
	logger := loggerFor(j.Logger, TaskStatementExport).With(slog.String("party", payload.Party))

	st, err := j.Statements.Statement(payload.Party, from, to)
	if err != nil {
		logger.Warn("statement unavailable", slog.Any("error", err))
		if errors.Is(err, billing.ErrNotFound) {
			return tracker.End(fmt.Errorf("%w: %w", asynq.SkipRetry, err))
		}
		return tracker.End(err)
	}
	path, err := j.write(st)
	if err != nil {
		logger.Error("write statement export", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("statement exported", slog.String("path", path), slog.Int("entries", len(st.Entries)))
	return tracker.End(nil)
}

// write renders to a temp file and renames it so readers never see a
// partial export.
func (j *StatementExportJob) write(st ledger.Statement) (string, error) {
	dir := j.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".statement-*.csv")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := export.WriteStatementCSV(tmp, st); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, billing.StatementFilename(st.Party, st.From, st.To))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := ledger.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
