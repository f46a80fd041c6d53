package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerBackend wraps a remote backend in a circuit breaker so a flapping
// cache service degrades to fast cold runs instead of stalling every job.
// While the circuit is open, Restore reports a miss and Save drops the write.
type BreakerBackend struct {
	inner  Backend
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerBackend wraps inner with the default breaker settings.
func NewBreakerBackend(inner Backend, logger *slog.Logger) *BreakerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BreakerBackend{inner: inner, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return b
}

type restoreResult struct {
	payload []byte
	hit     bool
}

// Restore implements Backend. Breaker-open and backend errors both surface as
// a miss; the cold path is always safe.
func (b *BreakerBackend) Restore(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		payload, hit, err := b.inner.Restore(ctx, key)
		if err != nil {
			return nil, err
		}
		return restoreResult{payload: payload, hit: hit}, nil
	})
	if err != nil {
		b.logger.Debug("cache restore degraded to miss", "key", key, "error", err)
		return nil, false, nil
	}
	r := res.(restoreResult)
	return r.payload, r.hit, nil
}

// Save implements Backend.
func (b *BreakerBackend) Save(ctx context.Context, key string, payload []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Save(ctx, key, payload)
	})
	return err
}
