// Package archiver provides a background process that copies terminal runs and
// audit events from the active provider to Postgres for long-term storage.
package archiver

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dwsmith1983/checkrun/internal/lifecycle"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

const (
	defaultInterval = 5 * time.Minute
	runBatchSize    = 500
	eventBatchSize  = 500

	eventCursorName = "events"
)

// Destination defines the write interface for the archival backend.
// InsertEvents must deduplicate replays: the cursor re-offers events whose
// timestamp ties the archived maximum.
type Destination interface {
	UpsertRun(ctx context.Context, run types.Run) error
	InsertEvents(ctx context.Context, events []types.Event) error
	GetCursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, value string) error
}

// Archiver periodically archives provider data to Postgres.
type Archiver struct {
	source   provider.Provider
	dest     Destination
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// archived tracks runs already copied this process, so RUN_ARCHIVED is
	// recorded once per run. Upserts stay idempotent across restarts.
	archived map[string]bool
}

// New creates a new Archiver.
func New(source provider.Provider, dest Destination, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		source:   source,
		dest:     dest,
		interval: interval,
		logger:   logger,
		archived: make(map[string]bool),
	}
}

// Start begins the archiver background loop.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("archiver started", "interval", a.interval)
}

// Stop signals the archiver to stop and waits for it to finish.
func (a *Archiver) Stop(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("archiver stopped")
}

func (a *Archiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick performs one archival pass.
func (a *Archiver) Tick(ctx context.Context) {
	a.archiveRuns(ctx)
	a.archiveEvents(ctx)
}

func (a *Archiver) archiveRuns(ctx context.Context) {
	runs, err := a.source.ListRuns(ctx, "", runBatchSize)
	if err != nil {
		a.logger.Error("archiver: list runs failed", "error", err)
		return
	}

	for _, run := range runs {
		if ctx.Err() != nil {
			return
		}
		if !lifecycle.IsTerminalRun(run.Status) {
			continue
		}
		if err := a.dest.UpsertRun(ctx, run); err != nil {
			a.logger.Error("archiver: upsert run failed", "run", run.RunID, "error", err)
			continue
		}
		if !a.archived[run.RunID] {
			a.archived[run.RunID] = true
			if err := a.source.AppendEvent(ctx, types.Event{
				Kind:      types.EventRunArchived,
				Workflow:  run.Workflow,
				RunID:     run.RunID,
				Status:    string(run.Status),
				Timestamp: time.Now(),
			}); err != nil {
				a.logger.Warn("archiver: append archived event failed", "run", run.RunID, "error", err)
			}
		}
	}
}

// archiveEvents copies audit events at or after the stored cursor. The cursor
// holds the millisecond timestamp of the newest archived event; events whose
// timestamp ties the cursor are offered again so a late append in the same
// millisecond is never dropped, and the destination deduplicates replays.
func (a *Archiver) archiveEvents(ctx context.Context) {
	cursorStr, err := a.dest.GetCursor(ctx, eventCursorName)
	if err != nil {
		a.logger.Error("archiver: get event cursor failed", "error", err)
		return
	}
	var cursor int64
	if cursorStr != "" {
		cursor, _ = strconv.ParseInt(cursorStr, 10, 64)
	}

	events, err := a.source.ListEvents(ctx, "", eventBatchSize)
	if err != nil {
		a.logger.Error("archiver: list events failed", "error", err)
		return
	}

	var fresh []types.Event
	maxMillis := cursor
	for _, ev := range events {
		millis := ev.Timestamp.UnixMilli()
		if millis < cursor {
			continue
		}
		fresh = append(fresh, ev)
		if millis > maxMillis {
			maxMillis = millis
		}
	}
	if len(fresh) == 0 {
		return
	}

	if err := a.dest.InsertEvents(ctx, fresh); err != nil {
		a.logger.Error("archiver: insert events failed", "count", len(fresh), "error", err)
		return
	}
	if err := a.dest.SetCursor(ctx, eventCursorName, strconv.FormatInt(maxMillis, 10)); err != nil {
		a.logger.Error("archiver: set event cursor failed", "error", err)
	}
	a.logger.Debug("archived events", "count", len(fresh))
}
