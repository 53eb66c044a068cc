package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool   *pgxpool.Pool
	retain int
}

// NewHistoryStore creates a HistoryStore keeping at most retain rows.
func NewHistoryStore(pool *pgxpool.Pool, retain int) *HistoryStore {
	if retain <= 0 {
		retain = 1000
	}
	return &HistoryStore{pool: pool, retain: retain}
}

const insertHistory = `
	INSERT INTO match_history
		(match_id, sport, home_team, away_team, match_time, match_date, status, removal_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const pruneHistory = `
	DELETE FROM match_history
	WHERE seq <= (
		SELECT seq FROM match_history ORDER BY seq DESC OFFSET $1 LIMIT 1
	)`

// Append inserts entries and trims the table to its retention in one
// transaction.
func (s *HistoryStore) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(insertHistory,
				e.ID, e.Sport, e.Teams.Home, e.Teams.Away, e.Time, e.Date, e.Status, e.RemovalTime)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if _, err := tx.Exec(ctx, pruneHistory, s.retain); err != nil {
			return fmt.Errorf("trim: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: append history: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, oldest first.
func (s *HistoryStore) Recent(ctx context.Context, n int) ([]domain.HistoryEntry, error) {
	if n <= 0 {
		n = domain.DefaultHistoryWindow
	}
	const query = `
		SELECT match_id, sport, home_team, away_team, match_time, match_date, status, removal_time
		FROM (
			SELECT * FROM match_history ORDER BY seq DESC LIMIT $1
		) recent
		ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, n)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Sport, &e.Teams.Home, &e.Teams.Away, &e.Time, &e.Date, &e.Status, &e.RemovalTime); err != nil {
			return nil, fmt.Errorf("postgres: scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list history rows: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest retain rows and reports how many went.
func (s *HistoryStore) Prune(ctx context.Context, retain int) (int64, error) {
	tag, err := s.pool.Exec(ctx, pruneHistory, retain)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}
