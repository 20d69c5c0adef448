package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/sitemonitor/internal/repo"
)

func (s *Store) LoadNextFire(ctx context.Context) (time.Time, error) {
	var ms int64
	err := s.pool.QueryRow(ctx, `SELECT next_fire_millis FROM scheduler_state WHERE id = 1`).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load next fire: %w", err)
	}
	return repo.NextFireFromMillis(ms), nil
}

func (s *Store) SaveNextFire(ctx context.Context, at time.Time) error {
	const q = `
		INSERT INTO scheduler_state (id, next_fire_millis)
		VALUES (1, $1)
		ON CONFLICT (id)
		DO UPDATE SET next_fire_millis = EXCLUDED.next_fire_millis
	`
	if _, err := s.pool.Exec(ctx, q, repo.NextFireToMillis(at)); err != nil {
		return fmt.Errorf("save next fire: %w", err)
	}
	return nil
}
