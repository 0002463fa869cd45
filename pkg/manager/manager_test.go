package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/registry"
	"github.com/driftsec/fuzzfleet/pkg/store"
	"github.com/driftsec/fuzzfleet/pkg/types"
	"github.com/driftsec/fuzzfleet/pkg/wordlists"
)

type testHarness struct {
	manager *Manager
	broker  *broker.Client
	store   store.Store
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	client := broker.NewClientFromRedis(rdb)
	t.Cleanup(func() { client.Close() })

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(client)
	wl := wordlists.NewRegistry()

	return &testHarness{
		manager: New(client, st, reg, wl, cfg),
		broker:  client,
		store:   st,
	}
}

func (h *testHarness) createScan(t *testing.T, workerIDs []string) string {
	t.Helper()
	taskID, err := h.manager.CreateScan(context.Background(),
		"https://target.example/FUZZ", "common.txt", workerIDs, &types.ScanOptions{Threads: 10})
	require.NoError(t, err)
	return taskID
}

// resultPayload builds the wire form of a worker result.
func resultPayload(t *testing.T, msg *types.ResultMessage) []byte {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return payload
}

func completedResult(taskID, workerID string, records ...types.RawRecord) *types.ResultMessage {
	return &types.ResultMessage{
		TaskID:    taskID,
		WorkerID:  workerID,
		Status:    types.ResultCompleted,
		Results:   &types.FuzzerOutput{Results: records},
		Timestamp: time.Now(),
	}
}

func TestCreateScanDistributesPerWorker(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	taskID := h.createScan(t, []string{"w1", "w2", "w1"})

	// One message per assignment, duplicates included.
	n, err := h.broker.QueueLen(ctx, broker.TaskQueue("w1"))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	n, err = h.broker.QueueLen(ctx, broker.TaskQueue("w2"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	payload, ok, err := h.broker.Pop(ctx, broker.TaskQueue("w2"))
	require.NoError(t, err)
	require.True(t, ok)
	var msg types.TaskMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Equal(t, taskID, msg.TaskID)
	require.Equal(t, "w2", msg.WorkerID)
	require.Equal(t, "/opt/wordlists/common.txt", msg.WordlistPath)
	require.Equal(t, []string{"w1", "w2", "w1"}, msg.WorkerIDs)

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusPending, task.Status)
}

func TestCreateScanUnknownWordlist(t *testing.T) {
	h := newTestHarness(t, Config{})

	_, err := h.manager.CreateScan(context.Background(),
		"https://target.example/FUZZ", "missing.txt", []string{"w1"}, nil)
	require.ErrorIs(t, err, errdefs.ErrUnknownWordlist)
}

func TestCreateScanNoWorkers(t *testing.T) {
	h := newTestHarness(t, Config{})

	_, err := h.manager.CreateScan(context.Background(),
		"https://target.example/FUZZ", "common.txt", nil, nil)
	require.ErrorIs(t, err, errdefs.ErrNoActiveWorkers)
}

func TestScanLifecycleTwoWorkers(t *testing.T) {
	h := newTestHarness(t, Config{})
	taskID := h.createScan(t, []string{"w1", "w2"})

	// First worker reports one interesting hit.
	err := h.manager.processResult(resultPayload(t, completedResult(taskID, "w1",
		types.RawRecord{URL: "https://target.example/admin", Status: 200, Length: 5000, Words: 100, Lines: 50},
	)))
	require.NoError(t, err)

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusInProgress, task.Status)
	require.Equal(t, 50.0, task.Progress)

	// Second worker reports nothing of interest.
	err = h.manager.processResult(resultPayload(t, completedResult(taskID, "w2")))
	require.NoError(t, err)

	task, err = h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusCompleted, task.Status)
	require.Equal(t, 100.0, task.Progress)
	require.Equal(t, 1, task.FindingsCount)
	require.NotNil(t, task.CompletedAt)

	findings, err := h.manager.GetFindings(&taskID, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, "https://target.example/admin", findings[0].URL)
	require.Equal(t, types.SeverityMedium, findings[0].Severity)
}

func TestReplayedResultDoesNotDuplicate(t *testing.T) {
	h := newTestHarness(t, Config{})
	taskID := h.createScan(t, []string{"w1"})

	msg := resultPayload(t, completedResult(taskID, "w1",
		types.RawRecord{URL: "https://target.example/backup.tar", Status: 200, Length: 900},
	))

	require.NoError(t, h.manager.processResult(msg))

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusCompleted, task.Status)
	require.Equal(t, 1, task.FindingsCount)

	// Redelivery of the same message after completion.
	require.NoError(t, h.manager.processResult(msg))

	task, err = h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusCompleted, task.Status)
	require.Equal(t, 1, task.FindingsCount)
	require.Equal(t, 100.0, task.Progress)

	findings, err := h.manager.GetFindings(&taskID, nil)
	require.NoError(t, err)
	require.Len(t, findings, 1)
}

func TestFailedResultDoesNotAdvanceByDefault(t *testing.T) {
	h := newTestHarness(t, Config{})
	taskID := h.createScan(t, []string{"w1"})

	err := h.manager.processResult(resultPayload(t, &types.ResultMessage{
		TaskID:    taskID,
		WorkerID:  "w1",
		Status:    types.ResultFailed,
		Error:     "fuzzer timed out",
		Timestamp: time.Now(),
	}))
	require.NoError(t, err)

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusPending, task.Status)
	require.Equal(t, 0.0, task.Progress)
}

func TestAllWorkersFailedMarksTaskFailed(t *testing.T) {
	h := newTestHarness(t, Config{CountFailures: true})
	taskID := h.createScan(t, []string{"w1", "w2"})

	for _, workerID := range []string{"w1", "w2"} {
		err := h.manager.processResult(resultPayload(t, &types.ResultMessage{
			TaskID:    taskID,
			WorkerID:  workerID,
			Status:    types.ResultFailed,
			Error:     "connection refused",
			Timestamp: time.Now(),
		}))
		require.NoError(t, err)
	}

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusFailed, task.Status)
}

func TestPartialFailureStillCompletes(t *testing.T) {
	h := newTestHarness(t, Config{CountFailures: true})
	taskID := h.createScan(t, []string{"w1", "w2"})

	require.NoError(t, h.manager.processResult(resultPayload(t, &types.ResultMessage{
		TaskID:    taskID,
		WorkerID:  "w1",
		Status:    types.ResultFailed,
		Error:     "connection refused",
		Timestamp: time.Now(),
	})))
	require.NoError(t, h.manager.processResult(resultPayload(t, completedResult(taskID, "w2"))))

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusCompleted, task.Status)
}

func TestProcessResultRejectsMalformed(t *testing.T) {
	h := newTestHarness(t, Config{})

	err := h.manager.processResult([]byte("not json"))
	require.ErrorIs(t, err, errdefs.ErrMalformedResult)

	err = h.manager.processResult([]byte(`{"status":"completed"}`))
	require.ErrorIs(t, err, errdefs.ErrMalformedResult)

	err = h.manager.processResult([]byte(`{"task_id":"t","worker_id":"w","status":"bogus"}`))
	require.ErrorIs(t, err, errdefs.ErrMalformedResult)
}

func TestMalformedPayloadStillAdvances(t *testing.T) {
	h := newTestHarness(t, Config{})
	taskID := h.createScan(t, []string{"w1"})

	// Decodable envelope, garbage fuzzer output. Progress must still move or
	// the task would hang on one bad payload.
	payload := []byte(`{"task_id":"` + taskID + `","worker_id":"w1","status":"completed","results":{"results":"garbage"}}`)
	require.NoError(t, h.manager.processResult(payload))

	task, err := h.store.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusCompleted, task.Status)
	require.Equal(t, 0, task.FindingsCount)
}

func TestUpdateWorkerThreadsBounds(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	err := h.manager.UpdateWorkerThreads(ctx, "w1", 150)
	require.ErrorIs(t, err, errdefs.ErrInvalidInput)
	err = h.manager.UpdateWorkerThreads(ctx, "w1", 0)
	require.ErrorIs(t, err, errdefs.ErrInvalidInput)

	// Nothing was enqueued for the rejected updates.
	n, err := h.broker.QueueLen(ctx, broker.ControlQueue("w1"))
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	require.NoError(t, h.manager.UpdateWorkerThreads(ctx, "w1", 50))
	payload, ok, err := h.broker.Pop(ctx, broker.ControlQueue("w1"))
	require.NoError(t, err)
	require.True(t, ok)
	var msg types.ControlMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Equal(t, types.ControlUpdateThreads, msg.Type)
	require.Equal(t, 50, msg.Threads)
}

func TestControlMessages(t *testing.T) {
	h := newTestHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.manager.PauseWorker(ctx, "w1"))
	require.NoError(t, h.manager.ResumeWorker(ctx, "w1"))
	require.NoError(t, h.manager.ShutdownWorker(ctx, "w1"))

	var types_ []string
	for {
		payload, ok, err := h.broker.Pop(ctx, broker.ControlQueue("w1"))
		require.NoError(t, err)
		if !ok {
			break
		}
		var msg types.ControlMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		types_ = append(types_, string(msg.Type))
	}
	require.Equal(t, []string{"pause", "resume", "shutdown"}, types_)
}

func TestSaveScanConfig(t *testing.T) {
	h := newTestHarness(t, Config{})

	_, err := h.manager.SaveScanConfig(&types.ScanConfig{Target: "https://t/FUZZ"})
	require.ErrorIs(t, err, errdefs.ErrInvalidInput)

	id, err := h.manager.SaveScanConfig(&types.ScanConfig{
		Name:     "nightly",
		Target:   "https://t/FUZZ",
		Wordlist: "common.txt",
	})
	require.NoError(t, err)
	require.Contains(t, id, "config_")

	configs, err := h.manager.ListScanConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, id, configs[0].ID)
}
