package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/landform-io/landform/internal/ir"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Locker = (*SQLiteStore)(nil)
	_ RunLog = (*SQLiteStore)(nil)
)

// SQLiteStore keeps records in a local SQLite database. One row per
// resource identity; upserts key on (kind, name).
type SQLiteStore struct {
	db   *sql.DB
	path string
	lock *fileLock
}

// NewSQLiteStore creates a store for the database at path. Call Init
// before use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path, lock: newFileLock(path + ".lock")}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s.migrate()
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Lock takes the run lock next to the database file.
func (s *SQLiteStore) Lock(_ context.Context) error {
	return s.lock.Lock()
}

// Unlock releases the run lock.
func (s *SQLiteStore) Unlock(_ context.Context) error {
	return s.lock.Unlock()
}

// Load reads every record.
func (s *SQLiteStore) Load(ctx context.Context) (map[ir.Key]*ir.Record, error) {
	query := `
		SELECT kind, name, provider_id, attrs, outputs, dependencies, hash, status, applied_at
		FROM resources
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	defer rows.Close()

	records := make(map[ir.Key]*ir.Record)
	for rows.Next() {
		var attrs, outputs, deps, appliedAt string
		rec := &ir.Record{}
		err := rows.Scan(
			&rec.Kind,
			&rec.Name,
			&rec.ProviderID,
			&attrs,
			&outputs,
			&deps,
			&rec.Hash,
			&rec.Status,
			&appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attrs); err != nil {
			return nil, fmt.Errorf("corrupt attrs for %s: %w", rec.Key(), err)
		}
		if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
			return nil, fmt.Errorf("corrupt outputs for %s: %w", rec.Key(), err)
		}
		if err := json.Unmarshal([]byte(deps), &rec.Dependencies); err != nil {
			return nil, fmt.Errorf("corrupt dependencies for %s: %w", rec.Key(), err)
		}
		if t, err := time.Parse(time.RFC3339Nano, appliedAt); err == nil {
			rec.AppliedAt = t
		}
		records[rec.Key()] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// CommitOne upserts one record.
func (s *SQLiteStore) CommitOne(ctx context.Context, rec *ir.Record) error {
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attrs: %w", err)
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}
	deps, err := json.Marshal(rec.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}

	query := `
		INSERT INTO resources (kind, name, provider_id, attrs, outputs, dependencies, hash, status, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, name) DO UPDATE SET
			provider_id = excluded.provider_id,
			attrs = excluded.attrs,
			outputs = excluded.outputs,
			dependencies = excluded.dependencies,
			hash = excluded.hash,
			status = excluded.status,
			applied_at = excluded.applied_at
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Kind,
		rec.Name,
		rec.ProviderID,
		string(attrs),
		string(outputs),
		string(deps),
		rec.Hash,
		string(rec.Status),
		rec.AppliedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to commit record %s: %w", rec.Key(), err)
	}
	return nil
}

// RemoveOne deletes the record for key. Absent keys are a no-op.
func (s *SQLiteStore) RemoveOne(ctx context.Context, key ir.Key) error {
	query := `DELETE FROM resources WHERE kind = ? AND name = ?`
	if _, err := s.db.ExecContext(ctx, query, key.Kind, key.Name); err != nil {
		return fmt.Errorf("failed to remove record %s: %w", key, err)
	}
	return nil
}

// SaveRun appends one run to the history.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, op, status, applied, failed, skipped, noop, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Op,
		run.Status,
		run.Applied,
		run.Failed,
		run.Skipped,
		run.Noop,
		run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, op, status, applied, failed, skipped, noop, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		var startedAt, finishedAt string
		err := rows.Scan(
			&run.ID,
			&run.Op,
			&run.Status,
			&run.Applied,
			&run.Failed,
			&run.Skipped,
			&run.Noop,
			&run.Error,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			run.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			run.FinishedAt = t
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
