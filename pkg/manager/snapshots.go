package manager

import (
	"context"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

const snapshotInterval = 60 * time.Second

// snapshotLoop periodically persists the broker-backed registry view into
// the workers table, so worker history survives broker restarts.
func (m *Manager) snapshotLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.snapshotWorkers()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) snapshotWorkers() {
	logger := log.WithComponent("manager")

	workers, err := m.registry.ListWorkers(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("worker snapshot skipped")
		return
	}

	active := 0
	for _, w := range workers {
		if w.Status == types.WorkerStatusActive {
			active++
		}
		if err := m.store.UpsertWorker(w); err != nil {
			logger.Warn().Err(err).Str("worker_id", w.ID).Msg("worker snapshot write failed")
		}
	}
	metrics.WorkersActive.Set(float64(active))
}
