package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/broker"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

// StalenessThreshold is how old a health entry may be before its worker is
// reported offline: three missed 30-second heartbeats.
const StalenessThreshold = 90 * time.Second

// HeartbeatInterval is how often workers write their health entry
const HeartbeatInterval = 30 * time.Second

// Registry is a view over the broker's two membership hashes:
// workers:active holds the static descriptor each worker writes on start,
// workers:health holds its heartbeats. Workers own their entries; the
// coordinator only reads.
type Registry struct {
	broker *broker.Client

	// now is swappable for staleness tests
	now func() time.Time
}

// New creates a registry over the given broker client
func New(b *broker.Client) *Registry {
	return &Registry{broker: b, now: time.Now}
}

// Register writes a worker's static descriptor. Called by the worker itself
// on start.
func (r *Registry) Register(ctx context.Context, desc *types.WorkerDescriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	return r.broker.HashSet(ctx, broker.ActiveHash, desc.WorkerID, payload)
}

// Deregister removes a worker from both hashes. Called by the worker on
// graceful stop.
func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	if err := r.broker.HashDelete(ctx, broker.ActiveHash, workerID); err != nil {
		return err
	}
	return r.broker.HashDelete(ctx, broker.HealthHash, workerID)
}

// Heartbeat writes a worker's health entry
func (r *Registry) Heartbeat(ctx context.Context, hb *types.Heartbeat) error {
	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	return r.broker.HashSet(ctx, broker.HealthHash, hb.WorkerID, payload)
}

// ListWorkers joins the descriptor and health hashes. A worker is active iff
// its health entry is fresher than the staleness threshold; a descriptor
// without fresh health (including orphans with no health at all) is surfaced
// as offline.
func (r *Registry) ListWorkers(ctx context.Context) ([]*types.WorkerInfo, error) {
	active, err := r.broker.HashGetAll(ctx, broker.ActiveHash)
	if err != nil {
		return nil, err
	}
	health, err := r.broker.HashGetAll(ctx, broker.HealthHash)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("registry")
	now := r.now()

	workers := make([]*types.WorkerInfo, 0, len(active))
	for workerID, descJSON := range active {
		var desc types.WorkerDescriptor
		if err := json.Unmarshal([]byte(descJSON), &desc); err != nil {
			logger.Warn().Str("worker_id", workerID).Err(err).Msg("skipping undecodable worker descriptor")
			continue
		}

		info := &types.WorkerInfo{
			ID:           workerID,
			Hostname:     desc.Hostname,
			Threads:      desc.Threads,
			RegisteredAt: desc.StartTime,
			Status:       types.WorkerStatusOffline,
		}

		if hbJSON, ok := health[workerID]; ok {
			var hb types.Heartbeat
			if err := json.Unmarshal([]byte(hbJSON), &hb); err != nil {
				logger.Warn().Str("worker_id", workerID).Err(err).Msg("skipping undecodable heartbeat")
			} else {
				info.LastSeen = hb.Timestamp
				info.Threads = hb.CurrentThreads
				info.CurrentTask = hb.ProcessorStatus.CurrentTask
				if now.Sub(hb.Timestamp) <= StalenessThreshold {
					info.Status = types.WorkerStatusActive
				}
			}
		}

		workers = append(workers, info)
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers, nil
}

// ActiveWorkerIDs returns the ids of workers with fresh heartbeats
func (r *Registry) ActiveWorkerIDs(ctx context.Context) ([]string, error) {
	workers, err := r.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, w := range workers {
		if w.Status == types.WorkerStatusActive {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}
