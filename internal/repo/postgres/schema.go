package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
  host                     TEXT PRIMARY KEY,
  name                     TEXT NOT NULL DEFAULT '',
  notifications_enabled    BOOLEAN NOT NULL DEFAULT TRUE,
  forced_certificate_trust BOOLEAN NOT NULL DEFAULT FALSE,
  internal_fallback_url    TEXT NOT NULL DEFAULT '',
  created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS probe_results (
  id           BIGSERIAL PRIMARY KEY,
  host         TEXT NOT NULL REFERENCES sites(host) ON DELETE CASCADE,
  ts           TIMESTAMPTZ NOT NULL,
  outcome      TEXT NOT NULL,
  http_status  INTEGER NULL,
  elapsed_ms   BIGINT NULL,
  error_detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_probe_results_host_ts ON probe_results (host, ts DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_probe_results_ts      ON probe_results (ts);

CREATE TABLE IF NOT EXISTS scheduler_state (
  id               SMALLINT PRIMARY KEY CHECK (id = 1),
  next_fire_millis BIGINT NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}
