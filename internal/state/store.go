// Package state persists resource records between runs. The default
// store is a local SQLite database; a remote S3 store with DynamoDB
// locking covers shared setups. Commits are one record at a time and
// durable before they return, so a crashed run leaves records either
// absent or in the exact status they last reached.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/landform-io/landform/internal/ir"
)

// Store is the persistence boundary the engine talks to.
type Store interface {
	// Load returns every record keyed by identity. A store with no
	// persisted records returns an empty map.
	Load(ctx context.Context) (map[ir.Key]*ir.Record, error)

	// CommitOne durably upserts one record.
	CommitOne(ctx context.Context, rec *ir.Record) error

	// RemoveOne durably deletes the record for key. Removing an absent
	// key is not an error.
	RemoveOne(ctx context.Context, key ir.Key) error

	Close() error
}

// Locker serializes runs against a store. Stores that support it hold
// the lock for the whole run.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Run summarizes one plan or apply for the run history.
type Run struct {
	ID         string
	Op         string
	Status     string
	Applied    int
	Failed     int
	Skipped    int
	Noop       int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunLog records run history. The SQLite store implements it; remote
// stores may not.
type RunLog interface {
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
}

// Config selects and configures a store.
type Config struct {
	// Backend is "sqlite" or "s3". Empty means sqlite.
	Backend string

	// Path is the SQLite database path.
	Path string

	// S3 settings.
	Bucket        string
	Key           string
	Region        string
	DynamoDBTable string
	Profile       string
}

// Open builds the configured store and runs any migrations it needs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
