package store

import (
	"context"
	"fmt"

	"github.com/castore-io/castore/internal/fingerprint"
	"github.com/castore-io/castore/internal/index"
)

// Stats summarizes a store's contents and pool state.
type Stats struct {
	UUID         string
	Objects      int64
	LogicalBytes int64 // sum of uncompressed sizes
	StoredBytes  int64 // sum of stored payload sizes
	PoolCapacity int
	PoolOpen     int
	PoolIdle     int
}

// Stats reports object counts, byte totals, and connection pool usage.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	id, err := s.idx.UUID(ctx)
	if err != nil {
		return nil, err
	}

	count, size, zsize, err := s.idx.Stats(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		UUID:         id,
		Objects:      count,
		LogicalBytes: size,
		StoredBytes:  zsize,
	}
	st.PoolCapacity, st.PoolOpen, st.PoolIdle = s.idx.PoolStats()
	return st, nil
}

// Verify re-reads and re-hashes every stored object and returns the
// fingerprints whose payloads no longer decode to matching content.
// This is the off-hot-path integrity check; Get only validates sizes.
func (s *Store) Verify(ctx context.Context) ([]fingerprint.Fingerprint, error) {
	var bad []fingerprint.Fingerprint

	err := s.idx.Walk(ctx, func(rec index.Record) error {
		payload, err := s.recordPayload(&rec)
		if err != nil {
			bad = append(bad, rec.Fingerprint)
			return nil
		}
		data, err := s.codec.Decode(payload, int(rec.Size))
		if err != nil {
			bad = append(bad, rec.Fingerprint)
			return nil
		}
		if fingerprint.Compute(data) != rec.Fingerprint {
			bad = append(bad, rec.Fingerprint)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify store: %w", err)
	}
	return bad, nil
}
