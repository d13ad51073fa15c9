package history

import (
	"context"
	"sync"

	"github.com/sells-group/pipewarden/internal/model"
)

// MemoryStore implements Store without persistence, for the memory driver
// and for tests. Everything is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions *MemoryLog[model.Decision]
	actions   *MemoryLog[model.ActionResult]
	runs      *MemoryLog[model.OrchestrationRun]
	baselines map[string]model.SchemaBaseline
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		decisions: NewMemoryLog[model.Decision](),
		actions:   NewMemoryLog[model.ActionResult](),
		runs:      NewMemoryLog[model.OrchestrationRun](),
		baselines: make(map[string]model.SchemaBaseline),
	}
}

func (s *MemoryStore) AppendDecision(_ context.Context, d model.Decision) error {
	s.decisions.Append(d)
	return nil
}

func (s *MemoryStore) AppendAction(_ context.Context, a model.ActionResult) error {
	s.actions.Append(a)
	return nil
}

func (s *MemoryStore) AppendRun(_ context.Context, r model.OrchestrationRun) error {
	s.runs.Append(r)
	return nil
}

func (s *MemoryStore) RecentDecisions(_ context.Context, limit int) ([]model.Decision, error) {
	return s.decisions.Recent(limit), nil
}

func (s *MemoryStore) RecentActions(_ context.Context, limit int) ([]model.ActionResult, error) {
	return s.actions.Recent(limit), nil
}

func (s *MemoryStore) RecentRuns(_ context.Context, limit int) ([]model.OrchestrationRun, error) {
	return s.runs.Recent(limit), nil
}

func (s *MemoryStore) SaveBaseline(_ context.Context, b model.SchemaBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[b.Table] = b
	return nil
}

func (s *MemoryStore) LoadBaseline(_ context.Context, table string) (*model.SchemaBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[table]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
