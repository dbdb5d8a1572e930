package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists owner preferences in PostgreSQL so they survive
// restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS owner_preferences (
		owner_id BIGINT PRIMARY KEY,
		language TEXT NOT NULL,
		mode TEXT NOT NULL,
		show_stats BOOLEAN NOT NULL,
		timestamps BOOLEAN NOT NULL,
		ui_language TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID int64) (Preferences, error) {
	var p Preferences
	err := s.pool.QueryRow(ctx,
		`SELECT language, mode, show_stats, timestamps, ui_language
		 FROM owner_preferences WHERE owner_id=$1`,
		ownerID,
	).Scan(&p.Language, &p.Mode, &p.ShowStats, &p.Timestamps, &p.UILanguage)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Put(ctx context.Context, ownerID int64, p Preferences) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO owner_preferences (owner_id, language, mode, show_stats, timestamps, ui_language, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (owner_id) DO UPDATE SET
			language = EXCLUDED.language,
			mode = EXCLUDED.mode,
			show_stats = EXCLUDED.show_stats,
			timestamps = EXCLUDED.timestamps,
			ui_language = EXCLUDED.ui_language,
			updated_at = now()`,
		ownerID,
		p.Language,
		string(p.Mode),
		p.ShowStats,
		p.Timestamps,
		p.UILanguage,
	)
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
