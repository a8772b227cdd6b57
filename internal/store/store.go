package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/webpilot/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS agent_runs (
            run_id     TEXT PRIMARY KEY,
            started_at TIMESTAMPTZ NOT NULL,
            last_step  INTEGER NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlCreateSteps = `
        CREATE TABLE IF NOT EXISTS agent_steps (
            run_id      TEXT NOT NULL REFERENCES agent_runs (run_id) ON DELETE CASCADE,
            step        INTEGER NOT NULL,
            url         TEXT NOT NULL,
            evaluation  TEXT NOT NULL,
            memory      TEXT NOT NULL,
            next_goal   TEXT NOT NULL,
            actions     JSONB NOT NULL,
            results     JSONB NOT NULL,
            error       TEXT NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL,
            PRIMARY KEY (run_id, step)
        );
    `
	sqlUpsertRun = `
        INSERT INTO agent_runs (run_id, started_at, last_step, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (run_id) DO UPDATE SET
            last_step = GREATEST(agent_runs.last_step, EXCLUDED.last_step),
            updated_at = EXCLUDED.updated_at;
    `
	sqlInsertStep = `
        INSERT INTO agent_steps (run_id, step, url, evaluation, memory, next_goal, actions, results, error, started_at, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id, step) DO NOTHING;
    `
	sqlSelectSteps = `
        SELECT step, url, evaluation, memory, next_goal, actions, results, error, started_at, duration_ms
        FROM agent_steps
        WHERE run_id = $1
        ORDER BY step ASC;
    `
)

// Store keeps run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateRuns, sqlCreateSteps} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return nil
}

// SaveStep records one step and advances its run in a single transaction.
func (s *Store) SaveStep(ctx context.Context, rec schemas.StepRecord) error {
	actions, err := marshalJSON(rec.Actions, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal actions for step %d: %w", rec.Step, err)
	}
	results, err := marshalJSON(rec.Results, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal results for step %d: %w", rec.Step, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	startedAt := rec.StartedAt.UTC()
	batch := &pgx.Batch{}
	batch.Queue(sqlUpsertRun, rec.RunID, startedAt, rec.Step, startedAt.Add(rec.Duration))
	batch.Queue(sqlInsertStep,
		rec.RunID, rec.Step, rec.URL,
		rec.Evaluation, rec.Memory, rec.NextGoal,
		actions, results, rec.Error,
		startedAt, rec.Duration.Milliseconds(),
	)

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i, what := range []string{"run", "step"} {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to write %s row (batch index %d) for run %s: %w", what, i, rec.RunID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSteps returns the recorded steps of a run in step order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]schemas.StepRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.StepRecord
	for rows.Next() {
		rec := schemas.StepRecord{RunID: runID}
		var actions, results []byte
		var durationMs int64

		if err := rows.Scan(
			&rec.Step, &rec.URL,
			&rec.Evaluation, &rec.Memory, &rec.NextGoal,
			&actions, &results, &rec.Error,
			&rec.StartedAt, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if err := json.Unmarshal(actions, &rec.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions of step %d: %w", rec.Step, err)
		}
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of step %d: %w", rec.Step, err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		steps = append(steps, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return steps, nil
}

// marshalJSON encodes v, substituting empty for nil slices so JSONB columns never hold null.
func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}
