// Package journal persists the completed-operations log and the trash
// inventory in an embedded libsql database, so operation history and
// restorable trash records survive restarts.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/meridianfm/meridian/mfs/engine/trash"
)

// OperationEntry is one row of the completed-operations log. Only terminal
// operations are journaled; in-flight state lives in memory.
type OperationEntry struct {
	ID          uuid.UUID
	Kind        string
	State       string
	Source      string
	Target      string
	BytesDone   int64
	ItemsDone   int64
	ItemsFailed int64
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Journal wraps the database handle.
type Journal struct {
	db *sql.DB
}

// Open opens or initializes the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create journal directory: %w", err)
	}
	return OpenDSN(fmt.Sprintf("file:%s", path))
}

// OpenDSN opens the journal at an explicit DSN.
func OpenDSN(dsn string) (*Journal, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Journal opened", "dsn", dsn)
	return j, nil
}

// init sets up the journal tables.
func (j *Journal) init() error {
	_, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY UNIQUE,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		source TEXT,
		target TEXT,
		bytes_done INTEGER DEFAULT 0,
		items_done INTEGER DEFAULT 0,
		items_failed INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create operations table: %w", err)
	}

	_, err = j.db.Exec(`CREATE TABLE IF NOT EXISTS trash_records (
		id TEXT PRIMARY KEY UNIQUE,
		operation_id TEXT,
		name TEXT NOT NULL,
		from_path TEXT NOT NULL,
		to_path TEXT NOT NULL,
		is_dir INTEGER NOT NULL,
		trashed_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create trash_records table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOperation appends one terminal operation to the log.
func (j *Journal) RecordOperation(entry OperationEntry) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	result, err := tx.Exec(
		`INSERT INTO operations (id, kind, state, source, target, bytes_done, items_done, items_failed, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.State, entry.Source, entry.Target,
		entry.BytesDone, entry.ItemsDone, entry.ItemsFailed, entry.Error,
		entry.StartedAt.Format(time.RFC3339Nano), entry.FinishedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rowsAffected)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentOperations returns the newest entries, most recent first.
func (j *Journal) RecentOperations(limit int) ([]OperationEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT id, kind, state, source, target, bytes_done, items_done, items_failed, error, started_at, finished_at
		 FROM operations ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var entries []OperationEntry
	for rows.Next() {
		var (
			entry      OperationEntry
			id         string
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&id, &entry.Kind, &entry.State, &entry.Source, &entry.Target,
			&entry.BytesDone, &entry.ItemsDone, &entry.ItemsFailed, &entry.Error,
			&startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		entry.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse operation id %q: %w", id, err)
		}
		entry.StartedAt = parseTime(startedAt)
		entry.FinishedAt = parseTime(finishedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecordTrash stores a restorable trash record, linked to the delete
// operation that produced it.
func (j *Journal) RecordTrash(rec trash.Record, operationID uuid.UUID) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO trash_records (id, operation_id, name, from_path, to_path, is_dir, trashed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, operationID, rec.Name, rec.From, rec.To, rec.IsDir,
		rec.TrashedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert trash record: %w", err)
	}
	return tx.Commit()
}

// TrashRecords lists every restorable record, oldest first.
func (j *Journal) TrashRecords() ([]trash.Record, error) {
	rows, err := j.db.Query(
		`SELECT id, name, from_path, to_path, is_dir, trashed_at
		 FROM trash_records ORDER BY trashed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trash records: %w", err)
	}
	defer rows.Close()

	var records []trash.Record
	for rows.Next() {
		rec, err := scanTrashRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FindTrashRecord looks up one record by ID.
func (j *Journal) FindTrashRecord(id uuid.UUID) (trash.Record, bool, error) {
	rows, err := j.db.Query(
		`SELECT id, name, from_path, to_path, is_dir, trashed_at
		 FROM trash_records WHERE id = ?`, id)
	if err != nil {
		return trash.Record{}, false, fmt.Errorf("failed to query trash record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return trash.Record{}, false, rows.Err()
	}
	rec, err := scanTrashRecord(rows)
	if err != nil {
		return trash.Record{}, false, err
	}
	return rec, true, nil
}

// DeleteTrashRecord removes a record after the entry was restored or
// purged.
func (j *Journal) DeleteTrashRecord(id uuid.UUID) error {
	_, err := j.db.Exec(`DELETE FROM trash_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trash record: %w", err)
	}
	return nil
}

func scanTrashRecord(rows *sql.Rows) (trash.Record, error) {
	var (
		rec       trash.Record
		id        string
		trashedAt string
	)
	if err := rows.Scan(&id, &rec.Name, &rec.From, &rec.To, &rec.IsDir, &trashedAt); err != nil {
		return trash.Record{}, fmt.Errorf("failed to scan trash record: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return trash.Record{}, fmt.Errorf("failed to parse trash record id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.TrashedAt = parseTime(trashedAt)
	return rec, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
