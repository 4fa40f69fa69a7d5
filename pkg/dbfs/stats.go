package dbfs

import (
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

// InodeCounts and DataLogFreeBytes satisfy metrics.StatSource, letting
// a metrics.Collector poll live filesystem state without pkg/metrics
// importing this package.

var fileTypeNames = map[types.FileType]string{
	types.TypeRegular:     "regular",
	types.TypeDirectory:   "directory",
	types.TypeSymlink:     "symlink",
	types.TypeCharDevice:  "chardev",
	types.TypeBlockDevice: "blockdev",
	types.TypeFifo:        "fifo",
	types.TypeSocket:      "socket",
}

func (fc *FsContext) InodeCounts() map[string]uint64 {
	counts := make(map[string]uint64, len(fileTypeNames))
	_ = fc.store.View(func(tx *kvstore.Tx) error {
		b := tx.Bucket(inode.BucketInodes)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			im, err := inode.Decode(v)
			if err != nil {
				return err
			}
			counts[fileTypeNames[im.Mode.Type()]]++
			return nil
		})
	})
	return counts
}

func (fc *FsContext) DataLogFreeBytes() int64 {
	total := fc.dev.Size()
	used := fc.log.Cursor()
	if free := total - used; free > 0 {
		return free
	}
	return 0
}
