// Package memory implements the Provider interface with in-process maps.
// It is the default backend and the reference semantics for the others.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MemoryProvider)(nil)

// MemoryProvider stores runs and events in process memory.
type MemoryProvider struct {
	mu     sync.Mutex
	runs   map[string]types.Run
	events []types.Event
	locks  map[string]time.Time // key -> expiry
}

// New creates an empty in-memory provider.
func New() *MemoryProvider {
	return &MemoryProvider{
		runs:  make(map[string]types.Run),
		locks: make(map[string]time.Time),
	}
}

// PutRun implements provider.Provider.
func (m *MemoryProvider) PutRun(_ context.Context, run types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

// GetRun implements provider.Provider.
func (m *MemoryProvider) GetRun(_ context.Context, runID string) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return &run, nil
}

// ListRuns implements provider.Provider.
func (m *MemoryProvider) ListRuns(_ context.Context, workflow string, limit int) ([]types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []types.Run
	for _, run := range m.runs {
		if workflow == "" || run.Workflow == workflow {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AppendEvent implements provider.Provider.
func (m *MemoryProvider) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// ListEvents implements provider.Provider.
func (m *MemoryProvider) ListEvents(_ context.Context, workflow string, limit int) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []types.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if workflow == "" || ev.Workflow == workflow {
			result = append(result, ev)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// AcquireLock implements provider.Provider.
func (m *MemoryProvider) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, held := m.locks[key]; held && time.Now().Before(exp) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

// ReleaseLock implements provider.Provider.
func (m *MemoryProvider) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Start implements provider.Provider.
func (m *MemoryProvider) Start(context.Context) error { return nil }

// Stop implements provider.Provider.
func (m *MemoryProvider) Stop(context.Context) error { return nil }

// Ping implements provider.Provider.
func (m *MemoryProvider) Ping(context.Context) error { return nil }
