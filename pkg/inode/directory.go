package inode

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cuemby/dbfst/pkg/kvstore"
)

// DirBucketName returns the name of the directory bucket for an inode,
// e.g. "dir_2" (spec §6: name = UTF-8 "dir_" || decimal(ino)).
func DirBucketName(ino uint64) []byte {
	return []byte(fmt.Sprintf("dir_%d", ino))
}

// childValue returns the big-endian 8-byte encoding of a child inode
// number, the value stored under a directory entry's name key.
func childValue(ino uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ino)
	return b[:]
}

// CreateDirBucket creates the directory bucket for ino and seeds it
// with "." (self) and ".." (parent) entries, per spec §4.4.6: "Every
// directory contains '.' (self) and '..' (parent) entries created at
// directory birth."
func CreateDirBucket(tx *kvstore.Tx, ino, parent uint64) error {
	b, err := tx.CreateBucketIfNotExists(DirBucketName(ino))
	if err != nil {
		return err
	}
	if err := b.Put([]byte("."), childValue(ino)); err != nil {
		return fmt.Errorf("inode: seed '.' in dir %d: %w", ino, err)
	}
	if err := b.Put([]byte(".."), childValue(parent)); err != nil {
		return fmt.Errorf("inode: seed '..' in dir %d: %w", ino, err)
	}
	return nil
}

// DirLookup resolves name inside the directory bucket for parent,
// returning the child inode number.
func DirLookup(tx *kvstore.Tx, parent uint64, name string) (uint64, bool) {
	b := tx.Bucket(DirBucketName(parent))
	if b == nil {
		return 0, false
	}
	v := b.Get([]byte(name))
	if v == nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

// DirPut adds or overwrites a name -> child mapping in parent's
// directory bucket.
func DirPut(tx *kvstore.Tx, parent uint64, name string, child uint64) error {
	b, err := tx.CreateBucketIfNotExists(DirBucketName(parent))
	if err != nil {
		return err
	}
	if err := b.Put([]byte(name), childValue(child)); err != nil {
		return fmt.Errorf("inode: put dentry %s in dir %d: %w", name, parent, err)
	}
	return nil
}

// DirDelete removes name from parent's directory bucket.
func DirDelete(tx *kvstore.Tx, parent uint64, name string) error {
	b := tx.Bucket(DirBucketName(parent))
	if b == nil {
		return nil
	}
	if err := b.Delete([]byte(name)); err != nil {
		return fmt.Errorf("inode: delete dentry %s in dir %d: %w", name, parent, err)
	}
	return nil
}

// DirCount returns the number of entries (including "." and "..") in
// parent's directory bucket.
func DirCount(tx *kvstore.Tx, parent uint64) int {
	b := tx.Bucket(DirBucketName(parent))
	if b == nil {
		return 0
	}
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// DirEntryAt returns the (name, child) pair at the given zero-based
// index in key order, or ok=false once index runs past the last
// entry. Cursor position is stable only within a single mount, per
// spec §4.4.6 ("cursors over B+-trees are order-by-key stable").
func DirEntryAt(tx *kvstore.Tx, parent uint64, index int) (name string, child uint64, ok bool) {
	b := tx.Bucket(DirBucketName(parent))
	if b == nil {
		return "", 0, false
	}
	// bbolt cursors already iterate in key order, so walking from the
	// first key to the index'th one is sufficient.
	c := b.Cursor()
	i := 0
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if i == index {
			return string(k), binary.BigEndian.Uint64(v), true
		}
		i++
	}
	return "", 0, false
}

// DirNames returns every entry name in parent's directory bucket,
// sorted, for tests asserting P9 (readdir completeness).
func DirNames(tx *kvstore.Tx, parent uint64) []string {
	b := tx.Bucket(DirBucketName(parent))
	if b == nil {
		return nil
	}
	var names []string
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
