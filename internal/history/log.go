// Package history holds the append-only records the control loop produces:
// in-process logs injected into the decision engine, action executor, and
// orchestrator, plus optional persistent stores that archive the same
// records across restarts.
package history

import (
	"sort"
	"sync"

	"github.com/sells-group/pipewarden/internal/model"
)

// DefaultRecentLimit applies when a Recent caller passes limit <= 0.
const DefaultRecentLimit = 10

// Log is an append-only record sequence. Appends never reorder existing
// entries; Recent sorts by record timestamp descending at read time, so
// out-of-order appends still list newest first.
type Log[T model.Timestamped] interface {
	Append(entry T)
	Recent(limit int) []T
	All() []T
	Len() int
}

// MemoryLog is the in-process Log used by default. Cleared only by
// process restart.
type MemoryLog[T model.Timestamped] struct {
	mu      sync.RWMutex
	entries []T
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog[T model.Timestamped]() *MemoryLog[T] {
	return &MemoryLog[T]{}
}

// Append adds an entry to the end of the log.
func (l *MemoryLog[T]) Append(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Recent returns up to limit entries, newest first by record timestamp.
func (l *MemoryLog[T]) Recent(limit int) []T {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mu.RLock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp().After(out[j].Timestamp())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns a copy of the log in append order.
func (l *MemoryLog[T]) All() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries appended so far.
func (l *MemoryLog[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
