package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerAudit is the task type for the ledger drift scan.
	TaskLedgerAudit = "stock:ledger_audit"
)

// NewLedgerAuditTask constructs an Asynq task for the drift scan. The task
// carries no payload; the scan always covers the whole ledger.
func NewLedgerAuditTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerAudit, nil)
}
