package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/registry"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

const (
	taskPopTimeout   = 1 * time.Second
	controlInterval  = 1 * time.Second
	brokerRetryDelay = 5 * time.Second
)

// Agent is a worker node. It runs three cooperative loops sharing the
// worker identity: the task loop consumes assignments and runs the fuzzer,
// the control loop applies coordinator commands, and the health loop
// publishes heartbeats.
type Agent struct {
	id       string
	hostname string

	broker    *broker.Client
	registry  *registry.Registry
	processor *TaskProcessor
	logger    zerolog.Logger

	mu      sync.Mutex
	threads int
	paused  bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewAgent creates a worker agent from its config
func NewAgent(cfg *Config, b *broker.Client) *Agent {
	return &Agent{
		id:        cfg.WorkerID,
		hostname:  cfg.Hostname,
		broker:    b,
		registry:  registry.New(b),
		processor: NewTaskProcessor(NewFuzzer(cfg.FuzzerPath)),
		logger:    log.WithWorkerID(cfg.WorkerID),
		threads:   cfg.Threads,
		stopCh:    make(chan struct{}),
	}
}

// Run registers the worker, starts the three loops and blocks until the
// agent is stopped (Stop, a shutdown command, or ctx cancellation). The
// worker removes itself from both membership hashes on return.
func (a *Agent) Run(ctx context.Context) error {
	desc := &types.WorkerDescriptor{
		WorkerID:  a.id,
		Hostname:  a.hostname,
		Threads:   a.currentThreads(),
		StartTime: time.Now(),
	}
	if err := a.registry.Register(ctx, desc); err != nil {
		return err
	}
	// First heartbeat immediately so the coordinator sees the worker without
	// waiting a full interval.
	a.publishHealth(ctx)

	a.logger.Info().Str("hostname", a.hostname).Int("threads", a.currentThreads()).Msg("worker started")

	a.wg.Add(3)
	go a.taskLoop(ctx)
	go a.controlLoop(ctx)
	go a.healthLoop(ctx)

	select {
	case <-ctx.Done():
		a.Stop()
	case <-a.stopCh:
	}
	a.wg.Wait()

	// Deregister with a fresh context: the run context may already be done.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.registry.Deregister(cleanupCtx, a.id); err != nil {
		a.logger.Warn().Err(err).Msg("deregistration failed")
	}

	a.logger.Info().Msg("worker stopped")
	return nil
}

// Stop initiates graceful shutdown
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// taskLoop consumes the worker's task queue and emits exactly one result
// per assignment. While paused it stops consuming; queued tasks wait.
func (a *Agent) taskLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if a.isPaused() {
			select {
			case <-time.After(taskPopTimeout):
			case <-a.stopCh:
				return
			}
			continue
		}

		payload, ok, err := a.broker.BlockingPop(ctx, broker.TaskQueue(a.id), taskPopTimeout)
		if err != nil {
			a.logger.Error().Err(err).Msg("task pop failed, retrying")
			select {
			case <-time.After(brokerRetryDelay):
			case <-a.stopCh:
				return
			}
			continue
		}
		if !ok {
			continue
		}

		var task types.TaskMessage
		if err := json.Unmarshal(payload, &task); err != nil {
			a.logger.Error().Err(err).Msg("dropping undecodable task message")
			continue
		}

		result := a.processor.Process(ctx, &task, a.currentThreads())
		a.pushResult(ctx, result)
	}
}

// pushResult delivers a result message, retrying on broker failure so the
// single result per assignment is not lost to a transient outage.
func (a *Agent) pushResult(ctx context.Context, result *types.ResultMessage) {
	payload, err := json.Marshal(result)
	if err != nil {
		a.logger.Error().Err(err).Msg("result encoding failed")
		return
	}

	for {
		err := a.broker.Push(ctx, broker.ResultQueue, payload)
		if err == nil {
			return
		}
		a.logger.Error().Err(err).Msg("result push failed, retrying")
		select {
		case <-time.After(brokerRetryDelay):
		case <-a.stopCh:
			return
		}
	}
}

// controlLoop polls the worker's control inbox once per second
func (a *Agent) controlLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			payload, ok, err := a.broker.Pop(ctx, broker.ControlQueue(a.id))
			if err != nil {
				a.logger.Error().Err(err).Msg("control pop failed")
				continue
			}
			if !ok {
				continue
			}
			var cmd types.ControlMessage
			if err := json.Unmarshal(payload, &cmd); err != nil {
				a.logger.Error().Err(err).Msg("dropping undecodable control message")
				continue
			}
			a.handleControl(&cmd)
		case <-a.stopCh:
			return
		}
	}
}

// handleControl applies one coordinator command
func (a *Agent) handleControl(cmd *types.ControlMessage) {
	switch cmd.Type {
	case types.ControlUpdateThreads:
		threads := cmd.Threads
		if threads < types.MinWorkerThreads {
			threads = types.MinWorkerThreads
		}
		if threads > types.MaxWorkerThreads {
			threads = types.MaxWorkerThreads
		}
		a.mu.Lock()
		a.threads = threads
		a.mu.Unlock()
		a.logger.Info().Int("threads", threads).Msg("thread count updated")

	case types.ControlPause:
		a.mu.Lock()
		a.paused = true
		a.mu.Unlock()
		a.logger.Info().Msg("task loop paused")

	case types.ControlResume:
		a.mu.Lock()
		a.paused = false
		a.mu.Unlock()
		a.logger.Info().Msg("task loop resumed")

	case types.ControlShutdown:
		a.logger.Info().Msg("shutdown command received")
		a.Stop()

	default:
		a.logger.Warn().Str("type", string(cmd.Type)).Msg("unknown control command")
	}
}

// healthLoop writes a heartbeat every 30 seconds
func (a *Agent) healthLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(registry.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.publishHealth(ctx)
		case <-a.stopCh:
			return
		}
	}
}

func (a *Agent) publishHealth(ctx context.Context) {
	hb := &types.Heartbeat{
		WorkerID:        a.id,
		Status:          string(types.WorkerStatusActive),
		Timestamp:       time.Now(),
		CurrentThreads:  a.currentThreads(),
		ProcessorStatus: a.processor.Status(),
	}
	if err := a.registry.Heartbeat(ctx, hb); err != nil {
		a.logger.Error().Err(err).Msg("heartbeat failed")
	}
}

func (a *Agent) currentThreads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threads
}

func (a *Agent) isPaused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}
