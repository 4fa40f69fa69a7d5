// Package inode implements the on-disk inode/extent record format and
// the directory-bucket helpers built on top of pkg/kvstore. Grounded on
// chubaofs's storage/extent.go for the extent-vector/CRC shape and on
// cuemby-warren/pkg/storage/boltdb.go's json.Marshal-into-bucket
// pattern for the record codec — encoding/json is already the
// reference stack's answer to "serialize a struct into a bucket value"
// (see e.g. BoltStore.CreateNode), so the inode record reuses it rather
// than hand-rolling a binary struct layout.
package inode

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

// formatVersion is the leading byte of every encoded inode record,
// kept separate from the JSON body so a future on-disk layout change
// (SPEC_FULL.md §9's "format-version byte") can be distinguished
// without guessing from the JSON shape.
const formatVersion byte = 1

// BucketInodes is the name of the bucket holding inode records, keyed
// by 8 big-endian bytes of inode number.
var BucketInodes = []byte("inodes")

// BucketSuper is the name of the superblock bucket.
var BucketSuper = []byte("super_blk")

// Key returns the big-endian 8-byte key for an inode number.
func Key(ino uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ino)
	return b[:]
}

// Encode serializes an InodeMetadata record as [formatVersion][json body].
func Encode(im *types.InodeMetadata) ([]byte, error) {
	body, err := json.Marshal(im)
	if err != nil {
		return nil, fmt.Errorf("inode: marshal ino %d: %w", im.Ino, err)
	}
	out := make([]byte, 1+len(body))
	out[0] = formatVersion
	copy(out[1:], body)
	return out, nil
}

// Decode parses a record written by Encode.
func Decode(data []byte) (*types.InodeMetadata, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("inode: empty record")
	}
	if data[0] != formatVersion {
		return nil, fmt.Errorf("inode: unsupported format version %d", data[0])
	}
	var im types.InodeMetadata
	if err := json.Unmarshal(data[1:], &im); err != nil {
		return nil, fmt.Errorf("inode: unmarshal: %w", err)
	}
	return &im, nil
}

// Put writes an inode record into the inodes bucket.
func Put(tx *kvstore.Tx, im *types.InodeMetadata) error {
	b, err := tx.CreateBucketIfNotExists(BucketInodes)
	if err != nil {
		return err
	}
	data, err := Encode(im)
	if err != nil {
		return err
	}
	if err := b.Put(Key(im.Ino), data); err != nil {
		return fmt.Errorf("inode: put ino %d: %w", im.Ino, err)
	}
	return nil
}

// Get reads an inode record, returning ErrNotFound-shaped nil,false if
// absent (the caller maps this to the NoEntry error kind).
func Get(tx *kvstore.Tx, ino uint64) (*types.InodeMetadata, bool, error) {
	b := tx.Bucket(BucketInodes)
	if b == nil {
		return nil, false, nil
	}
	data := b.Get(Key(ino))
	if data == nil {
		return nil, false, nil
	}
	// bbolt's Get result is only valid for the transaction's lifetime;
	// Decode copies everything it needs out of it via json.Unmarshal.
	im, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return im, true, nil
}

// Delete removes an inode record.
func Delete(tx *kvstore.Tx, ino uint64) error {
	b := tx.Bucket(BucketInodes)
	if b == nil {
		return nil
	}
	if err := b.Delete(Key(ino)); err != nil {
		return fmt.Errorf("inode: delete ino %d: %w", ino, err)
	}
	return nil
}

// MaxInode scans the inodes bucket for the highest existing inode
// number, used as a fallback when the superblock's ContinueInode
// counter is unavailable (SPEC_FULL.md §4.5 / spec §4.4.4).
func MaxInode(tx *kvstore.Tx) uint64 {
	b := tx.Bucket(BucketInodes)
	if b == nil {
		return 0
	}
	c := b.Cursor()
	k, _ := c.Last()
	if k == nil {
		return 0
	}
	return binary.BigEndian.Uint64(k)
}
