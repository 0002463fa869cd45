package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	client := broker.NewClientFromRedis(rdb)
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func descriptor(id string) *types.WorkerDescriptor {
	return &types.WorkerDescriptor{
		WorkerID:  id,
		Hostname:  "host-" + id,
		Threads:   10,
		StartTime: time.Now(),
	}
}

func heartbeat(id string, at time.Time) *types.Heartbeat {
	return &types.Heartbeat{
		WorkerID:       id,
		Status:         "healthy",
		Timestamp:      at,
		CurrentThreads: 20,
		ProcessorStatus: types.ProcessorStatus{
			CurrentTask:     "task_abc",
			FuzzerAvailable: true,
			Timestamp:       at,
		},
	}
}

func TestListWorkersFreshHeartbeatIsActive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Register(ctx, descriptor("w1")))
	require.NoError(t, r.Heartbeat(ctx, heartbeat("w1", now.Add(-10*time.Second))))

	workers, err := r.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)

	w := workers[0]
	require.Equal(t, "w1", w.ID)
	require.Equal(t, types.WorkerStatusActive, w.Status)
	// Heartbeat fields win over the static descriptor.
	require.Equal(t, 20, w.Threads)
	require.Equal(t, "task_abc", w.CurrentTask)
}

func TestListWorkersStaleHeartbeatIsOffline(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Register(ctx, descriptor("w1")))
	require.NoError(t, r.Heartbeat(ctx, heartbeat("w1", now.Add(-2*time.Minute))))

	workers, err := r.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, types.WorkerStatusOffline, workers[0].Status)
}

func TestListWorkersDescriptorWithoutHealthIsOffline(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, descriptor("w1")))

	workers, err := r.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, types.WorkerStatusOffline, workers[0].Status)
	require.Equal(t, 10, workers[0].Threads)
}

func TestListWorkersSortedByID(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, descriptor("w2")))
	require.NoError(t, r.Register(ctx, descriptor("w1")))

	workers, err := r.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	require.Equal(t, "w1", workers[0].ID)
	require.Equal(t, "w2", workers[1].ID)
}

func TestActiveWorkerIDs(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Register(ctx, descriptor("w1")))
	require.NoError(t, r.Heartbeat(ctx, heartbeat("w1", now)))
	require.NoError(t, r.Register(ctx, descriptor("w2")))
	require.NoError(t, r.Heartbeat(ctx, heartbeat("w2", now.Add(-5*time.Minute))))

	ids, err := r.ActiveWorkerIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"w1"}, ids)
}

func TestDeregisterRemovesWorker(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, descriptor("w1")))
	require.NoError(t, r.Heartbeat(ctx, heartbeat("w1", time.Now())))
	require.NoError(t, r.Deregister(ctx, "w1"))

	workers, err := r.ListWorkers(ctx)
	require.NoError(t, err)
	require.Empty(t, workers)
}
