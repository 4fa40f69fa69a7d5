// Package kvstore bridges DBFS-T to the embedded transactional B+-tree
// store (go.etcd.io/bbolt) that backs the metadata region: inode
// records, directory entries, and the superblock. bbolt already gives
// exactly the contract SPEC_FULL.md §4.3 asks for — bucketed
// transactions with an atomic copy-on-write root swap on commit — so
// this package is a thin, general-purpose wrapper rather than a
// reimplementation, in the same spirit as cuemby-warren's
// pkg/storage/boltdb.go (which opens a *bolt.DB and drives
// db.View/db.Update directly).
package kvstore

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Store wraps a *bolt.DB opened over a dedicated metadata file,
// separate from the backing device.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a bbolt database at path. DBFS-T hands bbolt
// a dedicated file — bbolt only speaks *os.File, not the abstract
// blockdevice.Device — and leaves its sizing to bbolt; see
// pkg/dbfs.Mount for how storage is carved up.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx wraps a *bolt.Tx, exposing the bucket operations
// SPEC_FULL.md §4.3 names.
type Tx struct {
	tx *bolt.Tx
}

// Bucket returns the named top-level bucket, or nil if it does not
// exist.
func (t *Tx) Bucket(name []byte) *bolt.Bucket {
	return t.tx.Bucket(name)
}

// CreateBucketIfNotExists returns the named bucket, creating it (and
// any ancestors) if necessary. Only valid inside an Update transaction.
func (t *Tx) CreateBucketIfNotExists(name []byte) (*bolt.Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, fmt.Errorf("kvstore: create bucket %s: %w", name, err)
	}
	return b, nil
}

// DeleteBucket removes the named bucket entirely.
func (t *Tx) DeleteBucket(name []byte) error {
	if err := t.tx.DeleteBucket(name); err != nil {
		return fmt.Errorf("kvstore: delete bucket %s: %w", name, err)
	}
	return nil
}

// Bolt exposes the underlying *bolt.Tx for callers that need bbolt's
// full transaction API beyond the bucket helpers above.
func (t *Tx) Bolt() *bolt.Tx { return t.tx }

// View runs fn in a read-only transaction, concurrent with any writer
// per bbolt's MVCC snapshot semantics.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Update runs fn in a read-write transaction. A return of nil performs
// the atomic root-swap commit; any other return discards every
// mutation made inside fn — this is the single linearization point for
// every single-commit operation (SPEC_FULL.md §4.5, §5).
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}
