package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Store is a Postgres-backed archival store for terminal runs and audit events.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres Store and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate runs the schema DDL to create tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertRun upserts a run into the runs table.
func (s *Store) UpsertRun(ctx context.Context, run types.Run) error {
	eventJSON, err := json.Marshal(run.Event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	jobsJSON, err := json.Marshal(run.Jobs)
	if err != nil {
		return fmt.Errorf("marshal run jobs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, workflow, status, event, jobs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			status      = EXCLUDED.status,
			jobs        = EXCLUDED.jobs,
			updated_at  = EXCLUDED.updated_at,
			archived_at = NOW()
	`, run.RunID, run.Workflow, string(run.Status), eventJSON, jobsJSON, run.CreatedAt, run.UpdatedAt)
	return err
}

// eventID derives a deterministic identity for an audit event, so replayed
// inserts from the archiver cursor land on the unique index instead of
// duplicating rows.
func eventID(ev types.Event) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d",
		ev.Kind, ev.Workflow, ev.RunID, ev.Job, ev.Status, ev.Message, ev.Timestamp.UnixNano())
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// InsertEvents batch-inserts audit events. Events already archived under the
// same identity are skipped.
func (s *Store) InsertEvents(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ev := range events {
		detailsJSON, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO events (event_id, kind, workflow, run_id, job, status, message, details, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID(ev), string(ev.Kind), ev.Workflow, ev.RunID, ev.Job, ev.Status, ev.Message, detailsJSON, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetCursor returns the stored cursor value, or "" when no cursor exists.
func (s *Store) GetCursor(ctx context.Context, name string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT cursor_value FROM cursors WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %q: %w", name, err)
	}
	return value, nil
}

// SetCursor stores a cursor value.
func (s *Store) SetCursor(ctx context.Context, name, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cursors (name, cursor_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			cursor_value = EXCLUDED.cursor_value,
			updated_at   = NOW()
	`, name, value)
	return err
}
