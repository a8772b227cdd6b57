package store

import (
	"context"
	"sort"
	"sync"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// MemoryStore keeps run history in process. It is safe for concurrent use by
// several runs of a fleet.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]schemas.StepRecord
}

// NewMemoryStore returns an empty in-process history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]schemas.StepRecord)}
}

// SaveStep stores rec. A record for a step that is already stored is ignored,
// matching the Postgres store.
func (m *MemoryStore) SaveStep(_ context.Context, rec schemas.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps := m.runs[rec.RunID]
	for i := range steps {
		if steps[i].Step == rec.Step {
			return nil
		}
	}
	steps = append(steps, rec)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })
	m.runs[rec.RunID] = steps
	return nil
}

// ListSteps returns a copy of the run's records in step order.
func (m *MemoryStore) ListSteps(_ context.Context, runID string) ([]schemas.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps := m.runs[runID]
	out := make([]schemas.StepRecord, len(steps))
	copy(out, steps)
	return out, nil
}
