package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	json "github.com/json-iterator/go"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
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

// anyTime accepts any value (used for timestamps we can't predict exactly).
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

// jsonArg matches a string argument holding JSON equivalent to want.
func jsonArg(want string) ArgumentMatcherFunc {
	return func(v interface{}) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		var got, exp interface{}
		if json.UnmarshalFromString(s, &got) != nil || json.UnmarshalFromString(want, &exp) != nil {
			return false
		}
		return assert.ObjectsAreEqual(exp, got)
	}
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, *observer.ObservedLogs) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.New(core))
	require.NoError(t, err)
	return s, mockPool, logs
}

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
	s, mockPool, _ := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func sampleEvents() []schemas.HealingEvent {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []schemas.HealingEvent{
		{
			ID: "ev-1", Action: schemas.ActionClick, OriginalSelector: `[data-testid="buy"]`,
			HealedSelector: `[data-testid*="buy"]`, Strategy: "partial-testid", Success: true,
			HealingTimeMs: 42, Attempts: 1, Page: "/shop", Timestamp: ts,
		},
		{
			ID: "ev-2", Action: schemas.ActionNavigate, OriginalSelector: "Pricing",
			Success: false, HealingTimeMs: 80, Attempts: 5, Error: "no candidate matched", Timestamp: ts,
		},
	}
}

func TestSaveEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("should copy events inside a transaction", func(t *testing.T) {
		s, mockPool, logs := newTestStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"healing_events"}, eventColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveEvents(ctx, "session-1", sampleEvents()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "ErrTxClosed on rollback must not be logged")
	})

	t.Run("should be a no-op for no events", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)
		require.NoError(t, s.SaveEvents(ctx, "session-1", nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail on copy count mismatch", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"healing_events"}, eventColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveEvents(ctx, "session-1", sampleEvents())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when copy fails", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		copyErr := errors.New("disk full")
		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"healing_events"}, eventColumns).WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.SaveEvents(ctx, "session-1", sampleEvents())
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report begin failure", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		beginErr := errors.New("too many connections")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveEvents(ctx, "session-1", sampleEvents())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func sampleSnapshot() learning.Snapshot {
	used := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return learning.Snapshot{
		Selectors: []learning.SelectorRecord{{
			Key:               "unknown_4lw85k",
			Selector:          `[data-testid="submit-button"]`,
			Successes:         3,
			Failures:          1,
			Confidence:        0.75,
			AvgResponseTimeMs: 12.5,
			StrategyTally:     map[string]learning.Tally{"direct": {Successes: 3, Failures: 1}},
			LastUsedAt:        used,
		}},
		Patterns: []learning.HealingPattern{{
			OriginalSelector: `[data-testid="submit-button"]`,
			Strategy:         "partial-testid",
			HealedSelectors:  map[string]int{`[data-testid*="submit-button"]`: 2},
			Successes:        2,
			Confidence:       0.7,
		}},
	}
}

func TestSaveSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert selectors and patterns in one batch", func(t *testing.T) {
		s, mockPool, logs := newTestStore(t)

		mockPool.ExpectBegin()
		batch := mockPool.ExpectBatch()
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertSelector)).
			WithArgs("unknown_4lw85k", `[data-testid="submit-button"]`, learning.DefaultPage, 3, 1, 0.75, 12.5,
				jsonArg(`{"direct":{"successes":3,"failures":1}}`), anyTime, "session-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertPattern)).
			WithArgs(`[data-testid="submit-button"]`, "partial-testid",
				jsonArg(`{"[data-testid*=\"submit-button\"]":2}`), 2, 0.7, anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveSnapshot(ctx, "session-1", sampleSnapshot()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	})

	t.Run("should be a no-op for an empty snapshot", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)
		require.NoError(t, s.SaveSnapshot(ctx, "session-1", learning.Snapshot{}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should name the pattern that failed to upsert", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		execErr := errors.New("constraint violation")
		mockPool.ExpectBegin()
		batch := mockPool.ExpectBatch()
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertSelector)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batch.ExpectExec(flexibleSQLMatcher(sqlUpsertPattern)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(execErr)
		mockPool.ExpectRollback()

		err := s.SaveSnapshot(ctx, "session-1", sampleSnapshot())
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
		assert.Contains(t, err.Error(), "healing pattern")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLoadPatterns(t *testing.T) {
	ctx := context.Background()

	t.Run("should decode stored patterns", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		rows := pgxmock.NewRows([]string{"original_selector", "strategy", "healed_selectors", "successes", "confidence"}).
			AddRow("#login", "partial-testid", []byte(`{"[data-testid*=\"login\"]":4}`), 4, 0.9).
			AddRow("#cart", "button-role", []byte(nil), 1, 0.6)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectPatterns)).
			WithArgs(0.5).
			WillReturnRows(rows)

		patterns, err := s.LoadPatterns(ctx, 0.5)
		require.NoError(t, err)
		require.Len(t, patterns, 2)

		assert.Equal(t, "#login", patterns[0].OriginalSelector)
		assert.Equal(t, map[string]int{`[data-testid*="login"]`: 4}, patterns[0].HealedSelectors)
		assert.Equal(t, `[data-testid*="login"]`, patterns[0].MostUsedHealed())
		assert.InDelta(t, 0.9, patterns[0].Confidence, 1e-9)
		assert.Empty(t, patterns[1].HealedSelectors)
		assert.NotNil(t, patterns[1].HealedSelectors)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool, _ := newTestStore(t)

		queryErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectPatterns)).WithArgs(0.8).WillReturnError(queryErr)

		_, err := s.LoadPatterns(ctx, 0.8)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
