// internal/store/store.go
//
// Package store persists healing telemetry and learned patterns to PostgreSQL so a later
// session can start from what earlier sessions learned.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
)

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL persistence for healing sessions.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS healing_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    action TEXT NOT NULL,
    original_selector TEXT NOT NULL,
    healed_selector TEXT NOT NULL DEFAULT '',
    strategy TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    healing_time_ms DOUBLE PRECISION NOT NULL,
    attempts INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    page TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS selector_records (
    key TEXT PRIMARY KEY,
    selector TEXT NOT NULL,
    page TEXT NOT NULL,
    successes INTEGER NOT NULL,
    failures INTEGER NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    avg_response_time_ms DOUBLE PRECISION NOT NULL,
    strategy_tally JSONB NOT NULL DEFAULT '{}',
    last_used_at TIMESTAMPTZ NOT NULL,
    session_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS healing_patterns (
    original_selector TEXT NOT NULL,
    strategy TEXT NOT NULL,
    healed_selectors JSONB NOT NULL DEFAULT '{}',
    successes INTEGER NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (original_selector, strategy)
);
`

var eventColumns = []string{
	"id", "session_id", "action", "original_selector", "healed_selector", "strategy",
	"success", "healing_time_ms", "attempts", "error", "page", "occurred_at",
}

const (
	sqlUpsertSelector = `
        INSERT INTO selector_records (key, selector, page, successes, failures, confidence, avg_response_time_ms, strategy_tally, last_used_at, session_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (key) DO UPDATE SET
            successes = EXCLUDED.successes,
            failures = EXCLUDED.failures,
            confidence = EXCLUDED.confidence,
            avg_response_time_ms = EXCLUDED.avg_response_time_ms,
            strategy_tally = EXCLUDED.strategy_tally,
            last_used_at = EXCLUDED.last_used_at,
            session_id = EXCLUDED.session_id;
    `
	sqlUpsertPattern = `
        INSERT INTO healing_patterns (original_selector, strategy, healed_selectors, successes, confidence, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (original_selector, strategy) DO UPDATE SET
            healed_selectors = EXCLUDED.healed_selectors,
            successes = healing_patterns.successes + EXCLUDED.successes,
            confidence = GREATEST(healing_patterns.confidence, EXCLUDED.confidence),
            updated_at = EXCLUDED.updated_at;
    `
	sqlSelectPatterns = `
        SELECT original_selector, strategy, healed_selectors, successes, confidence
        FROM healing_patterns
        WHERE confidence >= $1
        ORDER BY original_selector, strategy;
    `
)

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveEvents bulk-inserts the healing events of a session.
func (s *Store) SaveEvents(ctx context.Context, sessionID string, events []schemas.HealingEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	rows := make([][]interface{}, len(events))
	for i, ev := range events {
		rows[i] = []interface{}{
			ev.ID, sessionID, string(ev.Action), ev.OriginalSelector, ev.HealedSelector, ev.Strategy,
			ev.Success, ev.HealingTimeMs, ev.Attempts, ev.Error, ev.Page,
			ev.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"healing_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy healing events: %w", err)
	}
	if int(copyCount) != len(events) {
		return fmt.Errorf("mismatch in copied healing events count: expected %d, got %d", len(events), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted healing events.", zap.String("session_id", sessionID), zap.Int("count", len(events)))
	return nil
}

// SaveSnapshot upserts the selector records and healing patterns of a learning snapshot.
// Pattern confidence never decreases across sessions.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, snap learning.Snapshot) error {
	if len(snap.Selectors) == 0 && len(snap.Patterns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, rec := range snap.Selectors {
		tally, err := json.MarshalToString(rec.StrategyTally)
		if err != nil {
			return fmt.Errorf("failed to encode strategy tally for %s: %w", rec.Key, err)
		}
		page := rec.Context.Page
		if page == "" {
			page = learning.DefaultPage
		}
		batch.Queue(sqlUpsertSelector,
			rec.Key, rec.Selector, page, rec.Successes, rec.Failures, rec.Confidence,
			rec.AvgResponseTimeMs, tally, rec.LastUsedAt.UTC(), sessionID)
	}
	for _, p := range snap.Patterns {
		healed, err := json.MarshalToString(p.HealedSelectors)
		if err != nil {
			return fmt.Errorf("failed to encode healed selectors for %s: %w", p.OriginalSelector, err)
		}
		batch.Queue(sqlUpsertPattern, p.OriginalSelector, p.Strategy, healed, p.Successes, p.Confidence, now)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}

	expectedTotal := len(snap.Selectors) + len(snap.Patterns)
	for i := 0; i < expectedTotal; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if i < len(snap.Selectors) {
				return fmt.Errorf("failed to upsert selector record %s (index %d): %w", snap.Selectors[i].Key, i, err)
			}
			idx := i - len(snap.Selectors)
			return fmt.Errorf("failed to upsert healing pattern %s (index %d): %w", snap.Patterns[idx].OriginalSelector, idx, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted learning snapshot.",
		zap.String("session_id", sessionID),
		zap.Int("selectors", len(snap.Selectors)),
		zap.Int("patterns", len(snap.Patterns)))
	return nil
}

// LoadPatterns returns the stored healing patterns with at least minConfidence.
func (s *Store) LoadPatterns(ctx context.Context, minConfidence float64) ([]learning.HealingPattern, error) {
	rows, err := s.pool.Query(ctx, sqlSelectPatterns, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query healing patterns: %w", err)
	}
	defer rows.Close()

	var patterns []learning.HealingPattern
	for rows.Next() {
		var p learning.HealingPattern
		var healed []byte
		if err := rows.Scan(&p.OriginalSelector, &p.Strategy, &healed, &p.Successes, &p.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan healing pattern row: %w", err)
		}
		p.HealedSelectors = make(map[string]int)
		if len(healed) > 0 {
			if err := json.Unmarshal(healed, &p.HealedSelectors); err != nil {
				return nil, fmt.Errorf("failed to decode healed selectors for %s: %w", p.OriginalSelector, err)
			}
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return patterns, nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	// Rollback after Commit returns ErrTxClosed.
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}
