package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/classifier"
	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

const (
	resultPopTimeout = 1 * time.Second
	brokerRetryDelay = 5 * time.Second
)

// resultEnvelope decodes the outer result message while deferring the
// fuzzer output payload, so a malformed payload still advances progress
// accounting instead of discarding the whole message.
type resultEnvelope struct {
	TaskID    string             `json:"task_id"`
	WorkerID  string             `json:"worker_id"`
	Status    types.ResultStatus `json:"status"`
	Results   json.RawMessage    `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// resultLoop blocks on the shared results queue and feeds each message
// through result processing. Broker failures are logged and retried after a
// fixed delay; there is no backoff escalation.
func (m *Manager) resultLoop() {
	defer m.wg.Done()

	ctx := context.Background()
	logger := log.WithComponent("results")

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		payload, ok, err := m.broker.BlockingPop(ctx, broker.ResultQueue, resultPopTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("result pop failed, retrying")
			select {
			case <-time.After(brokerRetryDelay):
			case <-m.stopCh:
				return
			}
			continue
		}
		if !ok {
			continue
		}

		if err := m.processResult(payload); err != nil {
			logger.Error().Err(err).Msg("result processing failed")
		}
	}
}

// processResult handles one message from the results queue
func (m *Manager) processResult(payload []byte) error {
	var env resultEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		// Undecodable messages cannot be attributed to a task; drop them.
		return errdefs.Wrap(errdefs.ErrMalformedResult, "undecodable result: %v", err)
	}
	if env.TaskID == "" || env.WorkerID == "" {
		return errdefs.Wrap(errdefs.ErrMalformedResult, "result missing task or worker id")
	}

	logger := log.WithTaskID(env.TaskID)
	metrics.ResultsProcessedTotal.WithLabelValues(string(env.Status)).Inc()

	switch env.Status {
	case types.ResultCompleted:
		saved, err := m.saveFindings(&env)
		if err != nil {
			logger.Error().Err(err).Msg("saving findings failed")
			// The findings are lost but the worker did report; progress still
			// moves so the task is not wedged.
		} else {
			logger.Info().Str("worker_id", env.WorkerID).Int("findings", saved).Msg("worker result processed")
		}
		if err := m.store.IncrementWorkerTasksCompleted(env.WorkerID); err != nil {
			logger.Warn().Err(err).Msg("worker stats update failed")
		}
		m.advance(env.TaskID, false)

	case types.ResultFailed:
		logger.Error().Str("worker_id", env.WorkerID).Str("error", env.Error).Msg("worker reported failure")
		if m.cfg.CountFailures {
			m.advance(env.TaskID, true)
		}

	default:
		return errdefs.Wrap(errdefs.ErrMalformedResult, "unknown result status %q", env.Status)
	}
	return nil
}

// saveFindings classifies every raw record of a completed result and writes
// the surviving findings. A payload that fails to parse counts as zero
// records; the caller still advances progress.
func (m *Manager) saveFindings(env *resultEnvelope) (int, error) {
	if len(env.Results) == 0 {
		return 0, nil
	}

	var output types.FuzzerOutput
	if err := json.Unmarshal(env.Results, &output); err != nil {
		return 0, errdefs.Wrap(errdefs.ErrMalformedResult, "fuzzer output for task %s: %v", env.TaskID, err)
	}

	saved := 0
	for _, rec := range output.Results {
		finding := classifier.Classify(env.TaskID, rec)
		if finding == nil {
			continue
		}
		if err := m.store.SaveFinding(finding); err != nil {
			return saved, err
		}
		metrics.FindingsTotal.WithLabelValues(string(finding.Severity)).Inc()
		saved++
	}
	return saved, nil
}

// advance counts one worker response toward a task and completes the task
// once every assigned worker has reported. Results for unknown (already
// completed or abandoned) tasks only contribute findings, never accounting.
func (m *Manager) advance(taskID string, failed bool) {
	m.mu.Lock()
	rec, ok := m.activeTasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	rec.resultsReceived++
	if failed {
		rec.failures++
	}
	received, total, failures := rec.resultsReceived, rec.totalWorkers, rec.failures
	done := received >= total
	if done {
		delete(m.activeTasks, taskID)
	}
	m.mu.Unlock()

	logger := log.WithTaskID(taskID)

	progress := float64(received) / float64(total) * 100
	if err := m.store.UpdateTaskProgress(taskID, progress); err != nil {
		logger.Error().Err(err).Msg("progress update failed")
	}

	if !done {
		return
	}

	if failures >= total {
		if err := m.store.FailTask(taskID); err != nil {
			logger.Error().Err(err).Msg("marking task failed failed")
		}
		logger.Warn().Msg("task failed: every worker reported failure")
		return
	}

	count, err := m.store.CountFindings(taskID)
	if err != nil {
		logger.Error().Err(err).Msg("findings count failed")
	}
	if err := m.store.CompleteTask(taskID, count); err != nil {
		logger.Error().Err(err).Msg("task completion failed")
		return
	}
	metrics.TasksCompletedTotal.Inc()
	logger.Info().Int("findings", count).Msg("task completed")
}

func jsonMarshal(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return payload, nil
}
