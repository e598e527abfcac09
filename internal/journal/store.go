// Package journal keeps a local history of scan runs and their type
// resolution gaps, so operators can see when a profile last scanned cleanly
// and which types have been degrading to opaque over time.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"factory/internal/typeres"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Run is one recorded scan for a profile.
type Run struct {
	Profile      string
	GenerationID string
	SourceRoot   string
	Timestamp    time.Time
	FileCount    int
	ServiceCount int
	WarningCount int
	GapCount     int
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("journal path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("journal path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when scans overlap.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open scan journal %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping scan journal %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// RecordRun stores one scan run together with its resolution gaps.
func (s *Store) RecordRun(run Run, gaps []typeres.Gap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Profile == "" || run.GenerationID == "" {
		return fmt.Errorf("scan run needs a profile and generation id")
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	run.GapCount = len(gaps)

	return s.withRetry("record scan run", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(`
INSERT INTO scan_runs (
  profile, generation_id, source_root, ts_utc, file_count, service_count, warning_count, gap_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(profile, generation_id) DO UPDATE SET
  source_root=excluded.source_root,
  ts_utc=excluded.ts_utc,
  file_count=excluded.file_count,
  service_count=excluded.service_count,
  warning_count=excluded.warning_count,
  gap_count=excluded.gap_count
`,
			run.Profile,
			run.GenerationID,
			run.SourceRoot,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			run.FileCount,
			run.ServiceCount,
			run.WarningCount,
			run.GapCount,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM resolution_gaps WHERE profile = ? AND generation_id = ?`,
			run.Profile, run.GenerationID); err != nil {
			return err
		}
		for _, gap := range gaps {
			if _, err := tx.Exec(`
INSERT INTO resolution_gaps (profile, generation_id, type_name, referenced_by, file)
VALUES (?, ?, ?, ?, ?)
`, run.Profile, run.GenerationID, gap.TypeName, gap.ReferencedBy, gap.File); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

// Runs lists the recorded scans for one profile, oldest first.
func (s *Store) Runs(profile string) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load scan runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT profile, generation_id, source_root, ts_utc, file_count, service_count, warning_count, gap_count
FROM scan_runs
WHERE profile = ?
ORDER BY ts_utc ASC, generation_id ASC
`, profile)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run   Run
			tsRaw string
		)
		if err := rows.Scan(
			&run.Profile,
			&run.GenerationID,
			&run.SourceRoot,
			&tsRaw,
			&run.FileCount,
			&run.ServiceCount,
			&run.WarningCount,
			&run.GapCount,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// GapsFor lists the resolution gaps recorded for one run.
func (s *Store) GapsFor(profile, generationID string) ([]typeres.Gap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load resolution gaps", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT type_name, referenced_by, file
FROM resolution_gaps
WHERE profile = ? AND generation_id = ?
ORDER BY type_name ASC, referenced_by ASC
`, profile, generationID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gaps := make([]typeres.Gap, 0)
	for rows.Next() {
		var gap typeres.Gap
		if err := rows.Scan(&gap.TypeName, &gap.ReferencedBy, &gap.File); err != nil {
			return nil, fmt.Errorf("scan gap row: %w", err)
		}
		gaps = append(gaps, gap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gap rows: %w", err)
	}
	return gaps, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
