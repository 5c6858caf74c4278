package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRebuild recomputes the ledger from the stored sources.
	TaskLedgerRebuild = "billing:ledger_rebuild"
	// TaskStatementExport writes a party statement CSV to the export directory.
	TaskStatementExport = "billing:statement_export"
)

// LedgerRebuildPayload describes why a rebuild was requested.
type LedgerRebuildPayload struct {
	Reason string `json:"reason"`
}

// StatementExportPayload selects the party and optional inclusive window.
type StatementExportPayload struct {
	Party string `json:"party"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// NewLedgerRebuildTask constructs an Asynq task.
func NewLedgerRebuildTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerRebuildPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRebuild, data, asynq.MaxRetry(3), asynq.Timeout(time.Minute)), nil
}

// NewStatementExportTask constructs an Asynq task.
func NewStatementExportTask(payload StatementExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatementExport, data, asynq.MaxRetry(5), asynq.Timeout(2*time.Minute)), nil
}
