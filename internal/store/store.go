// Package store keeps the export journal: which runs happened, which
// targets each run attempted, how far they got and where the artifacts
// landed. Message content is never stored here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/msgdump/internal/types"
)

// Store handles all journal database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the journal at dbPath
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		mode TEXT NOT NULL,
		targets INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		target_id TEXT NOT NULL,
		target_url TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		artifact TEXT NOT NULL DEFAULT '',
		records INTEGER NOT NULL DEFAULT 0,
		frames INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_exports_run ON exports(run_id);
	CREATE INDEX IF NOT EXISTS idx_exports_target ON exports(target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func statusOf(err error) (string, string) {
	if err != nil {
		return StatusFailed, err.Error()
	}
	return StatusOK, ""
}

// BeginRun records the start of a batch and returns its id
func (s *Store) BeginRun(mode types.Mode, targets int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, mode, targets, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, s.now(), string(mode), targets, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run; a nil runErr marks it ok
func (s *Store) FinishRun(runID string, runErr error) error {
	status, msg := statusOf(runErr)
	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?
	`, s.now(), status, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return expectOne(res, "run "+runID)
}

// BeginExport records that a target is being attempted within a run
func (s *Store) BeginExport(runID string, t types.Target) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO exports (run_id, target_id, target_url, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, runID, t.ID, t.URL, s.now(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to record export of %s: %w", t.ID, err)
	}
	return res.LastInsertId()
}

// FinishExport stores how far an attempt got; a nil exportErr marks it ok
func (s *Store) FinishExport(id int64, out Outcome, exportErr error) error {
	status, msg := statusOf(exportErr)
	res, err := s.db.Exec(`
		UPDATE exports
		SET stage = ?, artifact = ?, records = ?, frames = ?,
			finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`, out.Stage, out.Artifact, out.Records, out.Frames, s.now(), status, msg, id)
	if err != nil {
		return fmt.Errorf("failed to finish export %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("export %d", id))
}

// RecentExports returns up to limit attempts, newest first
func (s *Store) RecentExports(limit int) ([]ExportEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, target_id, target_url, stage, artifact, records, frames,
			started_at, finished_at, status, error
		FROM exports
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var e ExportEntry
		var finished sql.NullTime

		err := rows.Scan(
			&e.ID, &e.RunID, &e.TargetID, &e.TargetURL, &e.Stage, &e.Artifact,
			&e.Records, &e.Frames, &e.StartedAt, &finished, &e.Status, &e.Error,
		)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			e.FinishedAt = finished.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetRun loads a single run
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	var finished sql.NullTime

	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, mode, targets, status, error
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.StartedAt, &finished, &r.Mode, &r.Targets, &r.Status, &r.Error)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", what, sql.ErrNoRows)
	}
	return nil
}
