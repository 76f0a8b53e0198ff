// Package index provides the SQLite-backed object index for castore.
// It is the authoritative mapping from content fingerprint to payload
// metadata and reference count. All database access goes through a
// bounded pool of dedicated connections, and every mutating operation
// runs inside a single immediate transaction so that concurrent writers
// racing on the same fingerprint serialize instead of overwriting each
// other.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/castore-io/castore/internal/pool"
)

// schemaVersion is the current index schema version. Opening an index
// written by an unknown version fails with ErrIncompatible.
const schemaVersion = 1

// ErrNotFound is returned when a fingerprint has no object record.
var ErrNotFound = errors.New("object not found")

// ErrIncompatible is returned when the index schema version on disk is
// not one this build understands.
var ErrIncompatible = errors.New("incompatible index schema version")

const schema = `
	-- Object records: one row per distinct content fingerprint.
	-- data holds the stored payload for small objects; NULL means the
	-- payload lives in the sharded blob file area, at a path derived
	-- from the fingerprint.
	CREATE TABLE IF NOT EXISTS objects (
		fingerprint BLOB PRIMARY KEY,
		ref_count   INTEGER NOT NULL,
		size        INTEGER NOT NULL,
		zsize       INTEGER NOT NULL,
		data        BLOB
	);

	-- Store-level properties (uuid, etc.).
	CREATE TABLE IF NOT EXISTS props (
		key   TEXT PRIMARY KEY,
		value TEXT
	);

	-- Schema version tracking.
	CREATE TABLE IF NOT EXISTS castore_schema_version (
		version INTEGER PRIMARY KEY
	);
`

// Index is the persistent fingerprint index.
type Index struct {
	db   *sql.DB
	pool *pool.Pool[*sql.Conn]
}

// New opens (or creates the file for) the index database at path. Up to
// capacity connections are pooled; waitTimeout bounds how long callers
// wait for a free connection, zero meaning an unbounded wait.
//
// _txlock=immediate makes every transaction take the write lock at
// BEGIN, which is what serializes racing mutations on one fingerprint.
func New(path string, capacity int, waitTimeout time.Duration) (*Index, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	db.SetMaxOpenConns(capacity)

	p, err := pool.New(capacity, waitTimeout,
		func() (*sql.Conn, error) {
			conn, err := db.Conn(context.Background())
			if err != nil {
				return nil, fmt.Errorf("open index connection: %w", err)
			}
			return conn, nil
		},
		func(conn *sql.Conn) error { return conn.Close() },
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db, pool: p}, nil
}

// Close drains the connection pool and closes the database. Close
// blocks until every leased connection has been released.
func (ix *Index) Close() error {
	var firstErr error
	if err := ix.pool.Close(); err != nil {
		firstErr = err
	}
	if err := ix.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Initialize creates the schema in a fresh database and records the
// current schema version and a new store uuid.
func (ix *Index) Initialize(ctx context.Context) error {
	return ix.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO castore_schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO props (key, value) VALUES ('uuid', ?)`, uuid.NewString()); err != nil {
			return fmt.Errorf("record store uuid: %w", err)
		}
		return nil
	})
}

// CheckSchema verifies that the database carries a schema version this
// build understands.
func (ix *Index) CheckSchema(ctx context.Context) error {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	var version int
	err = lease.Value().QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM castore_schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrIncompatible, version, schemaVersion)
	}
	return nil
}

// UUID returns the store uuid recorded at initialization.
func (ix *Index) UUID(ctx context.Context) (string, error) {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer lease.Release()

	var id string
	err = lease.Value().QueryRowContext(ctx,
		`SELECT value FROM props WHERE key = 'uuid'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", errors.New("store uuid missing")
	}
	if err != nil {
		return "", fmt.Errorf("read store uuid: %w", err)
	}
	return id, nil
}

// PoolStats reports the connection pool capacity, open connections, and
// free slots.
func (ix *Index) PoolStats() (capacity, open, idle int) {
	return ix.pool.Stats()
}

// withTx runs fn inside one immediate transaction on one pooled
// connection, committing on success and rolling back on error.
func (ix *Index) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	tx, err := lease.Value().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
