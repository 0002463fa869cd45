package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/export"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/registry"
	"github.com/driftsec/fuzzfleet/pkg/store"
	"github.com/driftsec/fuzzfleet/pkg/types"
	"github.com/driftsec/fuzzfleet/pkg/wordlists"
)

// Config holds coordinator policy knobs
type Config struct {
	// CountFailures makes failed worker results count toward a task's
	// progress, so a task whose workers all fail ends up failed instead of
	// sitting in_progress forever. Off by default.
	CountFailures bool
}

// activeTask tracks fan-out accounting for one in-flight task. Owned by the
// result loop; CreateScan inserts under the same lock.
type activeTask struct {
	workers         []string
	totalWorkers    int
	resultsReceived int
	failures        int
}

// Manager is the coordinator core: it creates tasks, fans them out over the
// broker, collects results, classifies findings and answers the public API.
type Manager struct {
	broker    *broker.Client
	store     store.Store
	registry  *registry.Registry
	wordlists *wordlists.Registry
	cfg       Config

	mu          sync.Mutex
	activeTasks map[string]*activeTask

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Manager. Call Start to launch the result and snapshot loops.
func New(b *broker.Client, st store.Store, reg *registry.Registry, wl *wordlists.Registry, cfg Config) *Manager {
	return &Manager{
		broker:      b,
		store:       st,
		registry:    reg,
		wordlists:   wl,
		cfg:         cfg,
		activeTasks: make(map[string]*activeTask),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the result fan-in loop and the worker snapshot loop
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.resultLoop()
	go m.snapshotLoop()
	logger := log.WithComponent("manager")
	logger.Info().Msg("task manager started")
}

// Stop stops both loops and waits for them to finish
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	logger := log.WithComponent("manager")
	logger.Info().Msg("task manager stopped")
}

// CreateScan validates and persists a new scan task, then pushes one task
// message per assigned worker. Duplicate worker ids in the list are sent a
// message each and expected to reply each.
func (m *Manager) CreateScan(ctx context.Context, target, wordlistName string, workerIDs []string, opts *types.ScanOptions) (string, error) {
	wordlistPath, err := m.wordlists.Resolve(wordlistName)
	if err != nil {
		return "", err
	}
	if len(workerIDs) == 0 {
		return "", errdefs.Wrap(errdefs.ErrNoActiveWorkers, "task needs at least one worker")
	}

	taskID := "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	logger := log.WithTaskID(taskID)

	if !strings.Contains(target, "FUZZ") {
		logger.Warn().Str("target", target).Msg("target has no FUZZ placeholder")
	}

	task := &types.Task{
		ID:           taskID,
		Target:       target,
		WordlistName: wordlistName,
		WordlistPath: wordlistPath,
		Options:      opts,
		WorkerIDs:    workerIDs,
		Status:       types.TaskStatusPending,
		CreatedAt:    time.Now(),
	}
	if err := m.store.SaveTask(task); err != nil {
		return "", err
	}

	if err := m.distribute(ctx, task); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.activeTasks[taskID] = &activeTask{
		workers:      append([]string(nil), workerIDs...),
		totalWorkers: len(workerIDs),
	}
	m.mu.Unlock()

	metrics.TasksCreatedTotal.Inc()
	logger.Info().Int("workers", len(workerIDs)).Str("target", target).Msg("task created")
	return taskID, nil
}

// distribute pushes one task message onto each assigned worker's queue.
// Messages are independent: delivery is at-least-once per worker.
func (m *Manager) distribute(ctx context.Context, task *types.Task) error {
	for _, workerID := range task.WorkerIDs {
		msg := &types.TaskMessage{
			TaskID:       task.ID,
			Target:       task.Target,
			WordlistName: task.WordlistName,
			WordlistPath: task.WordlistPath,
			Options:      task.Options,
			WorkerIDs:    task.WorkerIDs,
			WorkerID:     workerID,
			CreatedAt:    task.CreatedAt,
		}
		payload, err := jsonMarshal(msg)
		if err != nil {
			return err
		}
		if err := m.broker.Push(ctx, broker.TaskQueue(workerID), payload); err != nil {
			return err
		}
		logger := log.WithTaskID(task.ID)
		logger.Debug().Str("worker_id", workerID).Msg("task message enqueued")
	}
	return nil
}

// UpdateWorkerThreads pushes a thread-count control message to one worker.
// The count is advisory; no acknowledgment is awaited.
func (m *Manager) UpdateWorkerThreads(ctx context.Context, workerID string, threads int) error {
	if threads < types.MinWorkerThreads || threads > types.MaxWorkerThreads {
		return errdefs.Wrap(errdefs.ErrInvalidInput, "threads %d out of range [%d, %d]",
			threads, types.MinWorkerThreads, types.MaxWorkerThreads)
	}
	return m.pushControl(ctx, workerID, &types.ControlMessage{
		Type:      types.ControlUpdateThreads,
		Threads:   threads,
		Timestamp: time.Now(),
	})
}

// PauseWorker suspends a worker's task loop
func (m *Manager) PauseWorker(ctx context.Context, workerID string) error {
	return m.pushControl(ctx, workerID, &types.ControlMessage{Type: types.ControlPause, Timestamp: time.Now()})
}

// ResumeWorker resumes a paused worker
func (m *Manager) ResumeWorker(ctx context.Context, workerID string) error {
	return m.pushControl(ctx, workerID, &types.ControlMessage{Type: types.ControlResume, Timestamp: time.Now()})
}

// ShutdownWorker asks a worker to stop gracefully
func (m *Manager) ShutdownWorker(ctx context.Context, workerID string) error {
	return m.pushControl(ctx, workerID, &types.ControlMessage{Type: types.ControlShutdown, Timestamp: time.Now()})
}

func (m *Manager) pushControl(ctx context.Context, workerID string, msg *types.ControlMessage) error {
	payload, err := jsonMarshal(msg)
	if err != nil {
		return err
	}
	if err := m.broker.Push(ctx, broker.ControlQueue(workerID), payload); err != nil {
		return err
	}
	logger := log.WithWorkerID(workerID)
	logger.Info().Str("type", string(msg.Type)).Msg("control message enqueued")
	return nil
}

// Workers returns the live registry view
func (m *Manager) Workers(ctx context.Context) ([]*types.WorkerInfo, error) {
	return m.registry.ListWorkers(ctx)
}

// ListTasks returns up to limit tasks, newest first
func (m *Manager) ListTasks(limit int) ([]*types.Task, error) {
	return m.store.ListTasks(limit)
}

// GetTask returns one task by id
func (m *Manager) GetTask(id string) (*types.Task, error) {
	return m.store.GetTask(id)
}

// GetFindings returns findings, optionally filtered by task and checked flag
func (m *Manager) GetFindings(taskID *string, checked *bool) ([]*types.Finding, error) {
	return m.store.GetFindings(store.FindingFilter{TaskID: taskID, Checked: checked})
}

// MarkFindingChecked flips a finding's checked flag
func (m *Manager) MarkFindingChecked(findingID string, checked bool) error {
	return m.store.MarkFindingChecked(findingID, checked)
}

// ExportFindings renders findings in the requested format
func (m *Manager) ExportFindings(format export.Format, taskID *string) (string, error) {
	findings, err := m.store.GetFindings(store.FindingFilter{TaskID: taskID})
	if err != nil {
		return "", err
	}
	return export.Findings(findings, format)
}

// SecuritySummary aggregates the stored findings
func (m *Manager) SecuritySummary() (*types.SecuritySummary, error) {
	return m.store.SecuritySummary()
}

// Wordlists returns the registered wordlist name → path map
func (m *Manager) Wordlists() map[string]string {
	return m.wordlists.List()
}

// AddWordlist registers a wordlist at runtime
func (m *Manager) AddWordlist(name, path string) {
	m.wordlists.Add(name, path)
}

// SaveScanConfig persists a reusable scan configuration and returns its id
func (m *Manager) SaveScanConfig(cfg *types.ScanConfig) (string, error) {
	if cfg.Name == "" {
		return "", errdefs.Wrap(errdefs.ErrInvalidInput, "scan config needs a name")
	}
	if cfg.ID == "" {
		cfg.ID = "config_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if err := m.store.SaveScanConfig(cfg); err != nil {
		return "", err
	}
	return cfg.ID, nil
}

// ListScanConfigs returns saved scan configurations
func (m *Manager) ListScanConfigs() ([]*types.ScanConfig, error) {
	return m.store.ListScanConfigs()
}
