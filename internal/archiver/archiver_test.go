package archiver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/checkrun/internal/provider/memory"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

type fakeDest struct {
	mu      sync.Mutex
	runs    map[string]types.Run
	events  []types.Event
	seen    map[string]bool
	cursors map[string]string
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		runs:    make(map[string]types.Run),
		seen:    make(map[string]bool),
		cursors: make(map[string]string),
	}
}

func (f *fakeDest) UpsertRun(_ context.Context, run types.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.RunID] = run
	return nil
}

// InsertEvents deduplicates by event identity, matching the postgres store's
// unique index behavior.
func (f *fakeDest) InsertEvents(_ context.Context, events []types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range events {
		key := fmt.Sprintf("%s|%s|%s|%s|%d", ev.Kind, ev.Workflow, ev.RunID, ev.Message, ev.Timestamp.UnixNano())
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		f.events = append(f.events, ev)
	}
	return nil
}

func (f *fakeDest) GetCursor(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[name], nil
}

func (f *fakeDest) SetCursor(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[name] = value
	return nil
}

func (f *fakeDest) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestTickArchivesOnlyTerminalRuns(t *testing.T) {
	src := memory.New()
	dest := newFakeDest()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, src.PutRun(ctx, types.Run{RunID: "done", Workflow: "quality", Status: types.RunPassed, CreatedAt: now}))
	require.NoError(t, src.PutRun(ctx, types.Run{RunID: "failed", Workflow: "quality", Status: types.RunFailed, CreatedAt: now}))
	require.NoError(t, src.PutRun(ctx, types.Run{RunID: "active", Workflow: "quality", Status: types.RunRunning, CreatedAt: now}))

	a := New(src, dest, time.Minute, nil)
	a.Tick(ctx)

	assert.Contains(t, dest.runs, "done")
	assert.Contains(t, dest.runs, "failed")
	assert.NotContains(t, dest.runs, "active")
}

func TestTickRecordsRunArchivedOnce(t *testing.T) {
	src := memory.New()
	dest := newFakeDest()
	ctx := context.Background()

	require.NoError(t, src.PutRun(ctx, types.Run{RunID: "done", Workflow: "quality", Status: types.RunPassed, CreatedAt: time.Now()}))

	a := New(src, dest, time.Minute, nil)
	a.Tick(ctx)
	a.Tick(ctx)

	events, err := src.ListEvents(ctx, "quality", 50)
	require.NoError(t, err)
	archived := 0
	for _, ev := range events {
		if ev.Kind == types.EventRunArchived {
			archived++
		}
	}
	assert.Equal(t, 1, archived)
}

func TestEventCursorPreventsDuplicates(t *testing.T) {
	src := memory.New()
	dest := newFakeDest()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, src.AppendEvent(ctx, types.Event{
			Kind:      types.EventStepCompleted,
			Workflow:  "quality",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	a := New(src, dest, time.Minute, nil)
	a.Tick(ctx)
	first := dest.eventCount()
	assert.Equal(t, 3, first)

	a.Tick(ctx)
	assert.Equal(t, first, dest.eventCount())

	require.NoError(t, src.AppendEvent(ctx, types.Event{
		Kind:      types.EventStepCompleted,
		Workflow:  "quality",
		Timestamp: base.Add(time.Minute),
	}))
	a.Tick(ctx)
	assert.Equal(t, first+1, dest.eventCount())
}

func TestEventAppendedAtCursorTimestampStillArchived(t *testing.T) {
	src := memory.New()
	dest := newFakeDest()
	ctx := context.Background()

	at := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, src.AppendEvent(ctx, types.Event{
		Kind:      types.EventStepCompleted,
		Workflow:  "quality",
		Message:   "first",
		Timestamp: at,
	}))

	a := New(src, dest, time.Minute, nil)
	a.Tick(ctx)
	require.Equal(t, 1, dest.eventCount())

	// A second event lands in the same millisecond the cursor now points at.
	require.NoError(t, src.AppendEvent(ctx, types.Event{
		Kind:      types.EventStepCompleted,
		Workflow:  "quality",
		Message:   "second",
		Timestamp: at,
	}))

	a.Tick(ctx)
	assert.Equal(t, 2, dest.eventCount())

	a.Tick(ctx)
	assert.Equal(t, 2, dest.eventCount())
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := memory.New()
	dest := newFakeDest()

	a := New(src, dest, time.Hour, nil)
	a.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	a.Stop(context.Background())
}
