package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/checkrun/internal/lifecycle"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

var _ provider.Provider = (*RedisProvider)(nil)

// runKeyTTL returns the TTL for a run key based on status. Terminal runs get
// the configured retention TTL; in-flight runs get an extra 24h buffer so a
// stalled run never expires out from under the orchestrator.
func (p *RedisProvider) runKeyTTL(status types.RunStatus) time.Duration {
	if lifecycle.IsTerminalRun(status) {
		return p.retentionTTL
	}
	return p.retentionTTL + 24*time.Hour
}

func (p *RedisProvider) runKey(runID string) string {
	return p.prefix + "run:" + runID
}

func (p *RedisProvider) runIndexKey(workflow string) string {
	if workflow == "" {
		return p.prefix + "runs:all"
	}
	return p.prefix + "runs:wf:" + workflow
}

func (p *RedisProvider) eventKey(workflow string) string {
	if workflow == "" {
		return p.prefix + "events:all"
	}
	return p.prefix + "events:wf:" + workflow
}

func (p *RedisProvider) lockKey(key string) string {
	return p.prefix + "lock:" + key
}

// PutRun persists a run record and updates the newest-first indexes.
func (p *RedisProvider) PutRun(ctx context.Context, run types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	score := float64(run.CreatedAt.UnixMilli())
	ttl := p.runKeyTTL(run.Status)

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.runKey(run.RunID), data, ttl)
	pipe.ZAdd(ctx, p.runIndexKey(""), goredis.Z{Score: score, Member: run.RunID})
	pipe.ZAdd(ctx, p.runIndexKey(run.Workflow), goredis.Z{Score: score, Member: run.RunID})
	pipe.ZRemRangeByRank(ctx, p.runIndexKey(""), 0, -int64(p.runIndexMax+1))
	pipe.ZRemRangeByRank(ctx, p.runIndexKey(run.Workflow), 0, -int64(p.runIndexMax+1))
	_, err = pipe.Exec(ctx)
	return err
}

// GetRun retrieves a run by ID.
func (p *RedisProvider) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	data, err := p.client.Get(ctx, p.runKey(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, provider.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns recent runs newest-first; workflow "" means all workflows.
func (p *RedisProvider) ListRuns(ctx context.Context, workflow string, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := p.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:   p.runIndexKey(workflow),
		Start: 0,
		Stop:  int64(limit - 1),
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.runKey(id)
	}
	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching runs: %w", err)
	}

	runs := make([]types.Run, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Expired run still indexed; the trim will catch up.
			continue
		}
		var run types.Run
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			p.logger.Warn("skipping corrupt run record", "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// AppendEvent appends an audit event to the per-workflow and global indexes.
func (p *RedisProvider) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	score := float64(event.Timestamp.UnixMilli())
	member := string(data)

	pipe := p.client.Pipeline()
	pipe.ZAdd(ctx, p.eventKey(""), goredis.Z{Score: score, Member: member})
	pipe.ZRemRangeByRank(ctx, p.eventKey(""), 0, -(p.eventMax + 1))
	if event.Workflow != "" {
		pipe.ZAdd(ctx, p.eventKey(event.Workflow), goredis.Z{Score: score, Member: member})
		pipe.ZRemRangeByRank(ctx, p.eventKey(event.Workflow), 0, -(p.eventMax + 1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListEvents returns recent audit events newest-first; workflow "" means all.
func (p *RedisProvider) ListEvents(ctx context.Context, workflow string, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	members, err := p.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
		Key:   p.eventKey(workflow),
		Start: 0,
		Stop:  int64(limit - 1),
		Rev:   true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	var events []types.Event
	for _, m := range members {
		var ev types.Event
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			p.logger.Warn("skipping corrupt event record", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// AcquireLock takes a TTL'd lock; returns false if another holder has it.
func (p *RedisProvider) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := p.client.SetNX(ctx, p.lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock drops a lock regardless of holder.
func (p *RedisProvider) ReleaseLock(ctx context.Context, key string) error {
	return p.client.Del(ctx, p.lockKey(key)).Err()
}
