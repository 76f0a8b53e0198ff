// Package store implements the castore storage engine façade. It
// composes the fingerprint, codec, connection pool, and index layers
// into the put/get/delete/exists surface used by the CLI tools.
//
// Store layout (root = backing path):
//
//	root/castore.toml    configuration
//	root/index.db        SQLite object index
//	root/blobs/ab/cdef…  payloads at or above the inline limit,
//	                     sharded by the first fingerprint byte
//
// Payloads below the inline limit live directly in their index row;
// larger payloads go to a blob file at a path derived from the
// fingerprint, so the index never stores explicit locations.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/castore-io/castore/internal/codec"
	"github.com/castore-io/castore/internal/config"
	"github.com/castore-io/castore/internal/fingerprint"
	"github.com/castore-io/castore/internal/index"
)

// ErrNotFound is returned by Get and Delete for unknown fingerprints.
var ErrNotFound = index.ErrNotFound

// ErrCorrupt is returned when a stored payload fails validation.
var ErrCorrupt = codec.ErrCorrupt

// Store is the content-addressable store.
type Store struct {
	cfg   *config.Config
	idx   *index.Index
	codec *codec.Codec
}

// Create initializes a new store at root and opens it.
func Create(root string) (*Store, error) {
	cfg, err := config.Initialize(root)
	if err != nil {
		return nil, err
	}
	return open(cfg, true)
}

// Open opens an existing store at root.
func Open(root string) (*Store, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return open(cfg, false)
}

func open(cfg *config.Config, create bool) (*Store, error) {
	ctx := context.Background()

	ix, err := index.New(cfg.IndexPath(), cfg.PoolCapacity, cfg.WaitTimeoutDuration())
	if err != nil {
		return nil, err
	}

	if create {
		err = ix.Initialize(ctx)
	} else {
		err = ix.CheckSchema(ctx)
	}
	if err != nil {
		ix.Close()
		return nil, err
	}

	cd, err := codec.New(cfg.CompressionLevel)
	if err != nil {
		ix.Close()
		return nil, err
	}

	return &Store{cfg: cfg, idx: ix, codec: cd}, nil
}

// Close releases the index connections and the codec. It blocks until
// in-flight operations have returned their pooled connections.
func (s *Store) Close() error {
	err := s.idx.Close()
	if cerr := s.codec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.cfg.Root()
}

// Put stores data and returns its fingerprint. Identical content is
// stored physically at most once; repeated puts only raise the
// reference count, so Put is idempotent in every way except the count.
func (s *Store) Put(ctx context.Context, data []byte) (fingerprint.Fingerprint, error) {
	fp := fingerprint.Compute(data)
	payload, size := s.codec.Encode(data)

	var inline []byte
	var writePayload func() error
	wrote := false

	if int64(len(payload)) < s.cfg.InlineLimit {
		inline = payload
		if inline == nil {
			inline = []byte{}
		}
	} else {
		writePayload = func() error {
			wrote = true
			return s.writeBlobFile(fp, payload)
		}
	}

	_, _, err := s.idx.InsertOrIncrement(ctx, fp, int64(size), int64(len(payload)), inline, writePayload)
	if err != nil {
		if wrote {
			os.Remove(s.blobPath(fp))
		}
		return fingerprint.Fingerprint{}, err
	}
	return fp, nil
}

// Get retrieves the blob stored under fp. Returns ErrNotFound for an
// unknown fingerprint and ErrCorrupt when the stored payload fails to
// decode to the recorded size.
func (s *Store) Get(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, error) {
	rec, err := s.idx.Lookup(ctx, fp)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fp)
	}

	payload, err := s.recordPayload(rec)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(payload, int(rec.Size))
}

// Delete drops one reference to fp. When the last reference goes, the
// index record is removed and the physical payload reclaimed. Returns
// ErrNotFound for an unknown fingerprint.
func (s *Store) Delete(ctx context.Context, fp fingerprint.Fingerprint) error {
	_, err := s.idx.Decrement(ctx, fp, func(rec index.Record) error {
		if !rec.FileBacked() {
			return nil
		}
		// Unlinking happens inside the decrement transaction, so a
		// concurrent put of the same content cannot lose its freshly
		// written payload to this reclaim.
		if err := os.Remove(s.blobPath(fp)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reclaim payload file: %w", err)
		}
		return nil
	})
	return err
}

// Exists reports whether fp is stored.
func (s *Store) Exists(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	return s.idx.Exists(ctx, fp)
}

// List returns every stored fingerprint in bytewise order.
func (s *Store) List(ctx context.Context) ([]fingerprint.Fingerprint, error) {
	return s.idx.List(ctx)
}

// recordPayload returns the stored payload bytes for a record, reading
// the blob file for file-backed objects.
func (s *Store) recordPayload(rec *index.Record) ([]byte, error) {
	if !rec.FileBacked() {
		return rec.Inline, nil
	}
	payload, err := os.ReadFile(s.blobPath(rec.Fingerprint))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: payload file missing for %s", ErrCorrupt, rec.Fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return payload, nil
}

// blobPath returns the blob file path for a fingerprint: two hex
// characters of shard directory, the rest as the file name.
func (s *Store) blobPath(fp fingerprint.Fingerprint) string {
	hex := fp.String()
	return filepath.Join(s.cfg.BlobsPath(), hex[:2], hex[2:])
}

// writeBlobFile writes payload to the blob area via a temp file and
// atomic rename.
func (s *Store) writeBlobFile(fp fingerprint.Fingerprint, payload []byte) error {
	path := s.blobPath(fp)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".obj-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename payload file: %w", err)
	}
	return nil
}
