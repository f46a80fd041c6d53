// Package provider defines the storage backend interface for checkrun.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Provider is the storage backend for run state and the audit event log.
// Implementations: memory (default), Redis/Valkey, DynamoDB.
type Provider interface {
	// Run state
	PutRun(ctx context.Context, run types.Run) error
	GetRun(ctx context.Context, runID string) (*types.Run, error)
	// ListRuns returns recent runs newest-first; workflow "" means all.
	ListRuns(ctx context.Context, workflow string, limit int) ([]types.Run, error)

	// Append-only audit event log. Trigger mismatches land here even
	// though no run is created for them.
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, workflow string, limit int) ([]types.Event, error)

	// TTL'd locks for ingest deduplication.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
