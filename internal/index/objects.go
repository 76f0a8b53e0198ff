package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castore-io/castore/internal/fingerprint"
)

// Record is one object's index entry. Inline is the stored payload for
// small objects; nil means the payload lives in the blob file area.
type Record struct {
	Fingerprint fingerprint.Fingerprint
	RefCount    int64
	Size        int64 // uncompressed size
	ZSize       int64 // stored payload size
	Inline      []byte
}

// FileBacked reports whether the payload lives outside the index.
func (r *Record) FileBacked() bool {
	return r.Inline == nil
}

// scanRecord reads one object row. The caller's query must select
// ref_count, size, zsize, data, data IS NULL in that order.
func scanRecord(row *sql.Row, fp fingerprint.Fingerprint) (*Record, error) {
	rec := &Record{Fingerprint: fp}
	var data []byte
	var dataNull int
	err := row.Scan(&rec.RefCount, &rec.Size, &rec.ZSize, &data, &dataNull)
	if err != nil {
		return nil, err
	}
	if dataNull == 0 {
		if data == nil {
			data = []byte{}
		}
		rec.Inline = data
	}
	return rec, nil
}

const selectObject = `
	SELECT ref_count, size, zsize, data, data IS NULL
	FROM objects WHERE fingerprint = ?`

// Lookup returns the record for fp, or nil when the fingerprint is
// unknown. It has no side effects.
func (ix *Index) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (*Record, error) {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rec, err := scanRecord(lease.Value().QueryRowContext(ctx, selectObject, fp.Bytes()), fp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup object: %w", err)
	}
	return rec, nil
}

// Exists reports whether fp has a record.
func (ix *Index) Exists(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer lease.Release()

	var count int
	err = lease.Value().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE fingerprint = ?`, fp.Bytes()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check object: %w", err)
	}
	return count > 0, nil
}

// InsertOrIncrement records a put of fp. If the fingerprint is unknown
// a record with ref_count 1 and the supplied metadata is created, and
// writePayload (when non-nil) runs inside the transaction to place the
// physical bytes; if it fails nothing is committed. If the fingerprint
// is known the reference count is incremented and the supplied metadata
// is ignored, since the physical bytes already exist.
//
// The whole operation is one immediate transaction, so two concurrent
// puts of identical content serialize: exactly one creates the record,
// the other degenerates into an increment.
func (ix *Index) InsertOrIncrement(ctx context.Context, fp fingerprint.Fingerprint, size, zsize int64, inline []byte, writePayload func() error) (created bool, rec *Record, err error) {
	err = ix.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanRecord(tx.QueryRowContext(ctx, selectObject, fp.Bytes()), fp)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("lookup object: %w", err)
		}

		if err == nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE objects SET ref_count = ref_count + 1 WHERE fingerprint = ?`, fp.Bytes()); err != nil {
				return fmt.Errorf("increment ref count: %w", err)
			}
			existing.RefCount++
			rec = existing
			return nil
		}

		if writePayload != nil {
			if err := writePayload(); err != nil {
				return err
			}
		}

		var data interface{}
		if inline != nil {
			data = inline
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objects (fingerprint, ref_count, size, zsize, data) VALUES (?, 1, ?, ?, ?)`,
			fp.Bytes(), size, zsize, data); err != nil {
			return fmt.Errorf("insert object: %w", err)
		}

		created = true
		rec = &Record{Fingerprint: fp, RefCount: 1, Size: size, ZSize: zsize, Inline: inline}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return created, rec, nil
}

// Decrement records a delete of fp and returns the remaining reference
// count. When the count reaches zero the record is removed and reclaim
// (when non-nil) runs inside the transaction, while the write lock is
// still held, so a freed payload location can never race a concurrent
// reader or writer of the same fingerprint. Returns ErrNotFound when fp
// has no record.
func (ix *Index) Decrement(ctx context.Context, fp fingerprint.Fingerprint, reclaim func(Record) error) (remaining int64, err error) {
	err = ix.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, selectObject, fp.Bytes()), fp)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup object: %w", err)
		}

		if rec.RefCount > 1 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE objects SET ref_count = ref_count - 1 WHERE fingerprint = ?`, fp.Bytes()); err != nil {
				return fmt.Errorf("decrement ref count: %w", err)
			}
			remaining = rec.RefCount - 1
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM objects WHERE fingerprint = ?`, fp.Bytes()); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		if reclaim != nil {
			if err := reclaim(*rec); err != nil {
				return err
			}
		}
		remaining = 0
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// List returns every fingerprint in the index in bytewise order.
func (ix *Index) List(ctx context.Context) ([]fingerprint.Fingerprint, error) {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rows, err := lease.Value().QueryContext(ctx,
		`SELECT fingerprint FROM objects ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var fps []fingerprint.Fingerprint
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp, err := fingerprint.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("stored fingerprint: %w", err)
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return fps, nil
}

// Walk calls fn for every object record in fingerprint order. Used by
// the verify and stats paths.
func (ix *Index) Walk(ctx context.Context, fn func(Record) error) error {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	rows, err := lease.Value().QueryContext(ctx, `
		SELECT fingerprint, ref_count, size, zsize, data, data IS NULL
		FROM objects ORDER BY fingerprint`)
	if err != nil {
		return fmt.Errorf("walk objects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw, data []byte
		var dataNull int
		rec := Record{}
		if err := rows.Scan(&raw, &rec.RefCount, &rec.Size, &rec.ZSize, &data, &dataNull); err != nil {
			return fmt.Errorf("scan object: %w", err)
		}
		fp, err := fingerprint.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("stored fingerprint: %w", err)
		}
		rec.Fingerprint = fp
		if dataNull == 0 {
			if data == nil {
				data = []byte{}
			}
			rec.Inline = data
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats returns the object count and the logical and stored byte
// totals across all records.
func (ix *Index) Stats(ctx context.Context) (count, totalSize, totalZSize int64, err error) {
	lease, err := ix.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	defer lease.Release()

	err = lease.Value().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(zsize), 0) FROM objects`).
		Scan(&count, &totalSize, &totalZSize)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("index stats: %w", err)
	}
	return count, totalSize, totalZSize, nil
}
