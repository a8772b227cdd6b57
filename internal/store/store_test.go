package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/webpilot/api/schemas"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any time.Time argument.
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
})

func sampleRecord(runID string) schemas.StepRecord {
	return schemas.StepRecord{
		RunID:      runID,
		Step:       2,
		URL:        "https://google.com",
		Evaluation: "Success - google is open",
		Memory:     "opened google",
		NextGoal:   "search for laptop",
		Actions: []schemas.ActionCall{
			{Name: "input_text", Params: map[string]any{"index": 0, "text": "laptop"}},
		},
		Results:   []schemas.ActionResult{{ExtractedContent: "Typed laptop into index 0"}},
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())

	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRuns)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateSteps)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveStep(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a step and its run without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		rec := sampleRecord(uuid.NewString())
		actions, err := json.Marshal(rec.Actions)
		require.NoError(t, err)
		results, err := json.Marshal(rec.Results)
		require.NoError(t, err)

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(rec.RunID, anyTime, rec.Step, anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlInsertStep)).
			WithArgs(
				rec.RunID, rec.Step, rec.URL,
				rec.Evaluation, rec.Memory, rec.NextGoal,
				actions, results, "",
				rec.StartedAt, int64(1500),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveStep(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should store empty arrays for a step without actions", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		rec := sampleRecord("run-empty")
		rec.Actions = nil
		rec.Results = nil
		rec.Error = "observation failed"

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(rec.RunID, anyTime, rec.Step, anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlInsertStep)).
			WithArgs(
				rec.RunID, rec.Step, rec.URL,
				rec.Evaluation, rec.Memory, rec.NextGoal,
				[]byte("[]"), []byte("[]"), "observation failed",
				rec.StartedAt, int64(1500),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveStep(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the step insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord("run-fail")
		insertErr := errors.New("constraint violation")

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(rec.RunID, anyTime, rec.Step, anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlInsertStep)).
			WithArgs(
				rec.RunID, rec.Step, rec.URL,
				rec.Evaluation, rec.Memory, rec.NextGoal,
				pgxmock.AnyArg(), pgxmock.AnyArg(), rec.Error,
				anyTime, pgxmock.AnyArg(),
			).
			WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err := s.SaveStep(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.Contains(t, err.Error(), "failed to write step row")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail when the transaction cannot begin", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("connection reset"))

		err := s.SaveStep(ctx, sampleRecord("run-begin"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestListSteps(t *testing.T) {
	ctx := context.Background()

	t.Run("should decode rows in step order", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		rows := pgxmock.NewRows([]string{"step", "url", "evaluation", "memory", "next_goal", "actions", "results", "error", "started_at", "duration_ms"}).
			AddRow(0, "about:blank", "Unknown", "", "open google",
				[]byte(`[{"name":"go_to_url","params":{"url":"https://google.com"}}]`),
				[]byte(`[{"extracted_content":"Navigated to https://google.com"}]`),
				"", started, int64(900)).
			AddRow(1, "https://google.com", "Success", "opened google", "search",
				[]byte(`[]`), []byte(`[]`), "model unavailable", started.Add(time.Second), int64(200))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectSteps)).WithArgs("run-1").WillReturnRows(rows)

		steps, err := s.ListSteps(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, steps, 2)

		assert.Equal(t, "run-1", steps[0].RunID)
		assert.Equal(t, 0, steps[0].Step)
		require.Len(t, steps[0].Actions, 1)
		assert.Equal(t, "go_to_url", steps[0].Actions[0].Name)
		assert.Equal(t, "https://google.com", steps[0].Actions[0].StringParam("url"))
		assert.Equal(t, "Navigated to https://google.com", steps[0].Results[0].ExtractedContent)
		assert.Equal(t, 900*time.Millisecond, steps[0].Duration)

		assert.Equal(t, "model unavailable", steps[1].Error)
		assert.Empty(t, steps[1].Actions)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectSteps)).WithArgs("run-x").WillReturnError(errors.New("boom"))

		_, err := s.ListSteps(ctx, "run-x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query steps")
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	later := sampleRecord("run-a")
	later.Step = 3
	earlier := sampleRecord("run-a")
	earlier.Step = 1

	require.NoError(t, m.SaveStep(ctx, later))
	require.NoError(t, m.SaveStep(ctx, earlier))
	require.NoError(t, m.SaveStep(ctx, sampleRecord("run-b")))

	dup := earlier
	dup.Memory = "overwritten"
	require.NoError(t, m.SaveStep(ctx, dup))

	steps, err := m.ListSteps(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Step)
	assert.Equal(t, 3, steps[1].Step)
	assert.Equal(t, "opened google", steps[0].Memory, "a duplicate step is ignored")

	steps[0].URL = "mutated"
	again, _ := m.ListSteps(ctx, "run-a")
	assert.Equal(t, "https://google.com", again[0].URL, "callers receive a copy")

	none, err := m.ListSteps(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
