package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

var (
	keyMagic      = []byte("magic")
	keyBlockSize  = []byte("blk_size")
	keyDiskSize   = []byte("disk_size")
	keyContinueNo = []byte("continue_number")
	keyDataCursor = []byte("data_cursor")
)

// PutSuperblock writes every superblock field into the super_blk
// bucket as big-endian fixed-width values, per spec §6.
func PutSuperblock(tx *kvstore.Tx, sb *types.Superblock) error {
	b, err := tx.CreateBucketIfNotExists(BucketSuper)
	if err != nil {
		return err
	}
	var u32 [4]byte
	var u64 [8]byte

	binary.BigEndian.PutUint32(u32[:], sb.Magic)
	if err := b.Put(keyMagic, append([]byte(nil), u32[:]...)); err != nil {
		return fmt.Errorf("inode: put magic: %w", err)
	}
	binary.BigEndian.PutUint32(u32[:], sb.BlockSize)
	if err := b.Put(keyBlockSize, append([]byte(nil), u32[:]...)); err != nil {
		return fmt.Errorf("inode: put blk_size: %w", err)
	}
	binary.BigEndian.PutUint64(u64[:], sb.DiskSize)
	if err := b.Put(keyDiskSize, append([]byte(nil), u64[:]...)); err != nil {
		return fmt.Errorf("inode: put disk_size: %w", err)
	}
	binary.BigEndian.PutUint64(u64[:], sb.ContinueInode)
	if err := b.Put(keyContinueNo, append([]byte(nil), u64[:]...)); err != nil {
		return fmt.Errorf("inode: put continue_number: %w", err)
	}
	binary.BigEndian.PutUint64(u64[:], sb.DataCursor)
	if err := b.Put(keyDataCursor, append([]byte(nil), u64[:]...)); err != nil {
		return fmt.Errorf("inode: put data_cursor: %w", err)
	}
	return nil
}

// GetSuperblock reads the superblock, returning ok=false if the bucket
// or magic key is absent (an unformatted device).
func GetSuperblock(tx *kvstore.Tx) (*types.Superblock, bool, error) {
	b := tx.Bucket(BucketSuper)
	if b == nil {
		return nil, false, nil
	}
	magicBytes := b.Get(keyMagic)
	if magicBytes == nil {
		return nil, false, nil
	}
	sb := &types.Superblock{
		Magic: binary.BigEndian.Uint32(magicBytes),
	}
	if v := b.Get(keyBlockSize); v != nil {
		sb.BlockSize = binary.BigEndian.Uint32(v)
	}
	if v := b.Get(keyDiskSize); v != nil {
		sb.DiskSize = binary.BigEndian.Uint64(v)
	}
	if v := b.Get(keyContinueNo); v != nil {
		sb.ContinueInode = binary.BigEndian.Uint64(v)
	}
	if v := b.Get(keyDataCursor); v != nil {
		sb.DataCursor = binary.BigEndian.Uint64(v)
	}
	if sb.Magic != types.MagicNumber {
		return nil, false, fmt.Errorf("inode: bad superblock magic %#x", sb.Magic)
	}
	return sb, true, nil
}
