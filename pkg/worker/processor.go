package worker

import (
	"context"
	"sync"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

// TaskProcessor executes one task assignment at a time via the fuzzer and
// shapes the outcome into a result message.
type TaskProcessor struct {
	fuzzer *Fuzzer

	mu          sync.Mutex
	currentTask string
}

// NewTaskProcessor creates a processor around a fuzzer wrapper
func NewTaskProcessor(fuzzer *Fuzzer) *TaskProcessor {
	return &TaskProcessor{fuzzer: fuzzer}
}

// Process runs the fuzzer for one task message and returns exactly one
// result message, completed or failed. The thread count passed in overrides
// the task options when the coordinator adjusted the worker at runtime.
func (p *TaskProcessor) Process(ctx context.Context, task *types.TaskMessage, threads int) *types.ResultMessage {
	p.setCurrentTask(task.TaskID)
	defer p.setCurrentTask("")

	logger := log.WithTaskID(task.TaskID)
	logger.Info().Str("target", task.Target).Msg("processing task")

	opts := task.Options
	if opts == nil {
		opts = &types.ScanOptions{}
	}
	if threads > 0 {
		o := *opts
		o.Threads = threads
		opts = &o
	}

	output, err := p.fuzzer.Run(ctx, task.Target, task.WordlistPath, opts)
	if err != nil {
		logger.Error().Err(err).Msg("task failed")
		return &types.ResultMessage{
			TaskID:    task.TaskID,
			WorkerID:  task.WorkerID,
			Status:    types.ResultFailed,
			Error:     err.Error(),
			Timestamp: time.Now(),
		}
	}

	return &types.ResultMessage{
		TaskID:    task.TaskID,
		WorkerID:  task.WorkerID,
		Status:    types.ResultCompleted,
		Results:   output,
		Timestamp: time.Now(),
	}
}

// Status reports what the processor is doing, for heartbeats
func (p *TaskProcessor) Status() types.ProcessorStatus {
	p.mu.Lock()
	current := p.currentTask
	p.mu.Unlock()

	return types.ProcessorStatus{
		CurrentTask:     current,
		FuzzerAvailable: p.fuzzer.Available(),
		Timestamp:       time.Now(),
	}
}

func (p *TaskProcessor) setCurrentTask(taskID string) {
	p.mu.Lock()
	p.currentTask = taskID
	p.mu.Unlock()
}
