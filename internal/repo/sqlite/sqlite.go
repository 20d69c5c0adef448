package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps sites, probe history and scheduler state in one SQLite file.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	host                     TEXT PRIMARY KEY,
	name                     TEXT NOT NULL DEFAULT '',
	notifications_enabled    INTEGER NOT NULL DEFAULT 1,
	forced_certificate_trust INTEGER NOT NULL DEFAULT 0,
	internal_fallback_url    TEXT NOT NULL DEFAULT '',
	created_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS probe_results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	host         TEXT NOT NULL REFERENCES sites(host) ON DELETE CASCADE,
	ts_nanos     INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	http_status  INTEGER,
	elapsed_ms   INTEGER,
	error_detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_probe_results_host_ts ON probe_results (host, ts_nanos, id);
CREATE INDEX IF NOT EXISTS idx_probe_results_ts ON probe_results (ts_nanos);

CREATE TABLE IF NOT EXISTS scheduler_state (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	next_fire_millis INTEGER NOT NULL
);
`

// New opens (or creates) the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- SiteStore ----

func (s *Store) AddSite(ctx context.Context, site *domain.Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (host, name, notifications_enabled, forced_certificate_trust, internal_fallback_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		site.Host, site.Name, site.NotificationsEnabled, site.ForcedCertificateTrust,
		site.InternalFallbackURL, site.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return repo.ErrDuplicate
		}
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

const siteColumns = `host, name, notifications_enabled, forced_certificate_trust, internal_fallback_url, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(row scanner) (domain.Site, error) {
	var (
		site      domain.Site
		createdAt string
	)
	if err := row.Scan(&site.Host, &site.Name, &site.NotificationsEnabled,
		&site.ForcedCertificateTrust, &site.InternalFallbackURL, &createdAt); err != nil {
		return domain.Site{}, err
	}
	site.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return site, nil
}

func (s *Store) GetSite(ctx context.Context, host string) (*domain.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE host = ?`, host)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	return &site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at, host`)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites
		    SET name = ?, notifications_enabled = ?, forced_certificate_trust = ?, internal_fallback_url = ?
		  WHERE host = ?`,
		site.Name, site.NotificationsEnabled, site.ForcedCertificateTrust, site.InternalFallbackURL, site.Host)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSite(ctx context.Context, host string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM probe_results WHERE host = ?`, host); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE host = ?`, host)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) CountSites(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sites: %w", err)
	}
	return n, nil
}

// ---- HistoryStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.ProbeResult) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	var status, elapsed sql.NullInt64
	if r.HTTPStatus != nil {
		status = sql.NullInt64{Int64: int64(*r.HTTPStatus), Valid: true}
	}
	if r.ElapsedMS != nil {
		elapsed = sql.NullInt64{Int64: *r.ElapsedMS, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO probe_results (host, ts_nanos, outcome, http_status, elapsed_ms, error_detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Host, r.Timestamp.UnixNano(), string(r.Outcome), status, elapsed, r.ErrorDetail)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return repo.ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}
	r.ID = id
	return nil
}

const resultColumns = `id, host, ts_nanos, outcome, http_status, elapsed_ms, error_detail`

func scanResult(row scanner) (domain.ProbeResult, error) {
	var (
		r       domain.ProbeResult
		nanos   int64
		outcome string
		status  sql.NullInt64
		elapsed sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Host, &nanos, &outcome, &status, &elapsed, &r.ErrorDetail); err != nil {
		return domain.ProbeResult{}, err
	}
	r.Timestamp = time.Unix(0, nanos).UTC()
	r.Outcome = domain.Outcome(outcome)
	if status.Valid {
		v := int(status.Int64)
		r.HTTPStatus = &v
	}
	if elapsed.Valid {
		v := elapsed.Int64
		r.ElapsedMS = &v
	}
	return r, nil
}

func (s *Store) LastResult(ctx context.Context, host string) (*domain.ProbeResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM probe_results WHERE host = ? ORDER BY ts_nanos DESC, id DESC LIMIT 1`, host)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last result: %w", err)
	}
	return &r, nil
}

func (s *Store) ListResults(ctx context.Context, host string) ([]domain.ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM probe_results WHERE host = ? ORDER BY ts_nanos, id`, host)
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
	res, err := s.db.ExecContext(ctx, `
DELETE FROM probe_results
 WHERE ts_nanos < ?
   AND id <> (SELECT q.id FROM probe_results q
               WHERE q.host = probe_results.host
               ORDER BY q.ts_nanos DESC, q.id DESC
               LIMIT 1)`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- StateStore ----

func (s *Store) LoadNextFire(ctx context.Context) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT next_fire_millis FROM scheduler_state WHERE id = 1`).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load next fire: %w", err)
	}
	return repo.NextFireFromMillis(ms), nil
}

func (s *Store) SaveNextFire(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduler_state (id, next_fire_millis) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET next_fire_millis = excluded.next_fire_millis`,
		repo.NextFireToMillis(at))
	if err != nil {
		return fmt.Errorf("save next fire: %w", err)
	}
	return nil
}
