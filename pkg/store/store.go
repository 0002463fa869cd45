package store

import (
	"github.com/driftsec/fuzzfleet/pkg/types"
)

// FindingFilter narrows GetFindings. Nil fields match everything.
type FindingFilter struct {
	TaskID  *string
	Checked *bool
}

// Store defines durable persistence for tasks, findings, worker registry
// snapshots and saved scan configurations. Writes are single short
// transactions; reads are snapshot-consistent per call.
type Store interface {
	// Tasks
	SaveTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks(limit int) ([]*types.Task, error)
	UpdateTaskProgress(id string, progress float64) error
	CompleteTask(id string, findingsCount int) error
	FailTask(id string) error

	// Findings
	SaveFinding(finding *types.Finding) error
	GetFindings(filter FindingFilter) ([]*types.Finding, error)
	CountFindings(taskID string) (int, error)
	MarkFindingChecked(id string, checked bool) error
	SecuritySummary() (*types.SecuritySummary, error)

	// Worker snapshots
	UpsertWorker(info *types.WorkerInfo) error
	IncrementWorkerTasksCompleted(workerID string) error
	ListWorkerSnapshots() ([]*types.WorkerInfo, error)

	// Scan configs
	SaveScanConfig(cfg *types.ScanConfig) error
	ListScanConfigs() ([]*types.ScanConfig, error)

	// Utility
	Close() error
}
