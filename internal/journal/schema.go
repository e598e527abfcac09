package journal

import (
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS scan_runs (
  profile TEXT NOT NULL,
  generation_id TEXT NOT NULL,
  source_root TEXT NOT NULL,
  ts_utc TEXT NOT NULL,
  file_count INTEGER NOT NULL,
  service_count INTEGER NOT NULL,
  warning_count INTEGER NOT NULL,
  gap_count INTEGER NOT NULL,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  PRIMARY KEY (profile, generation_id)
);
CREATE INDEX IF NOT EXISTS idx_scan_runs_profile ON scan_runs(profile);
CREATE INDEX IF NOT EXISTS idx_scan_runs_ts ON scan_runs(ts_utc);

CREATE TABLE IF NOT EXISTS resolution_gaps (
  profile TEXT NOT NULL,
  generation_id TEXT NOT NULL,
  type_name TEXT NOT NULL,
  referenced_by TEXT NOT NULL,
  file TEXT NOT NULL,
  FOREIGN KEY (profile, generation_id) REFERENCES scan_runs(profile, generation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_resolution_gaps_run ON resolution_gaps(profile, generation_id);
`,
	},
}

func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
