package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// ---- SiteStore ----

func (s *Store) AddSite(ctx context.Context, site *domain.Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sites (host, name, notifications_enabled, forced_certificate_trust, internal_fallback_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		site.Host, site.Name, site.NotificationsEnabled, site.ForcedCertificateTrust,
		site.InternalFallbackURL, site.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrDuplicate
		}
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

const siteColumns = `host, name, notifications_enabled, forced_certificate_trust, internal_fallback_url, created_at`

func scanSite(row pgx.Row) (domain.Site, error) {
	var site domain.Site
	err := row.Scan(&site.Host, &site.Name, &site.NotificationsEnabled,
		&site.ForcedCertificateTrust, &site.InternalFallbackURL, &site.CreatedAt)
	return site, err
}

func (s *Store) GetSite(ctx context.Context, host string) (*domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE host = $1`, host))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	return &site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at, host`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSite(ctx context.Context, site *domain.Site) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites
		    SET name = $2, notifications_enabled = $3, forced_certificate_trust = $4, internal_fallback_url = $5
		  WHERE host = $1`,
		site.Host, site.Name, site.NotificationsEnabled, site.ForcedCertificateTrust, site.InternalFallbackURL)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// DeleteSite relies on ON DELETE CASCADE for the history rows.
func (s *Store) DeleteSite(ctx context.Context, host string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE host = $1`, host)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) CountSites(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sites: %w", err)
	}
	return n, nil
}

// ---- HistoryStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.ProbeResult) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO probe_results (host, ts, outcome, http_status, elapsed_ms, error_detail)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		r.Host, r.Timestamp, string(r.Outcome), r.HTTPStatus, r.ElapsedMS, r.ErrorDetail,
	).Scan(&r.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const resultColumns = `id, host, ts, outcome, http_status, elapsed_ms, error_detail`

func scanResult(row pgx.Row) (domain.ProbeResult, error) {
	var (
		r       domain.ProbeResult
		outcome string
		status  sql.NullInt32
		elapsed sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Host, &r.Timestamp, &outcome, &status, &elapsed, &r.ErrorDetail); err != nil {
		return domain.ProbeResult{}, err
	}
	r.Outcome = domain.Outcome(outcome)
	if status.Valid {
		v := int(status.Int32)
		r.HTTPStatus = &v
	}
	if elapsed.Valid {
		v := elapsed.Int64
		r.ElapsedMS = &v
	}
	return r, nil
}

func (s *Store) LastResult(ctx context.Context, host string) (*domain.ProbeResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+`
		   FROM probe_results
		  WHERE host = $1
		  ORDER BY ts DESC, id DESC
		  LIMIT 1`, host))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last result: %w", err)
	}
	return &r, nil
}

func (s *Store) ListResults(ctx context.Context, host string) ([]domain.ProbeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM probe_results WHERE host = $1 ORDER BY ts, id`, host)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.ProbeResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM probe_results r
 WHERE r.ts < $1
   AND r.id <> (SELECT q.id FROM probe_results q
                 WHERE q.host = r.host
                 ORDER BY q.ts DESC, q.id DESC
                 LIMIT 1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Info("pg_purged_results", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
	return tag.RowsAffected(), nil
}
