package dbfs

import (
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
)

// scanHighWaterMark walks every inode record and reports the highest
// physical extent end (PhysicalPtr+Len) across all of them, the
// mount-time fallback spec §4.2 describes for when the superblock's
// persisted data_cursor field is absent or zero.
func scanHighWaterMark(tx *kvstore.Tx, max *uint64) error {
	b := tx.Bucket(inode.BucketInodes)
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		im, err := inode.Decode(v)
		if err != nil {
			return err
		}
		for _, ext := range im.Extents {
			if end := ext.PhysicalPtr + ext.Len; end > *max {
				*max = end
			}
		}
		return nil
	})
}
