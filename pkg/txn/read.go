package txn

import (
	"fmt"

	"github.com/cuemby/dbfst/pkg/ferr"
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

// ReadAt fills buf with ino's logical bytes starting at offset,
// returning the number of bytes actually available (short of
// len(buf) at end-of-file). It holds stateLock's reader side only long
// enough to copy the extent vector out of the KV snapshot (spec §5:
// "reads take the reader side briefly"); the data-log I/O that follows
// runs unlocked, so a slow read never blocks a concurrent multi-commit
// operation's apply step.
func (e *Engine) ReadAt(ino uint64, offset uint64, buf []byte) (int, error) {
	var size uint64
	var extents []types.Extent

	e.stateLock.RLock()
	err := e.store.View(func(tx *kvstore.Tx) error {
		im, found, err := inode.Get(tx, ino)
		if err != nil {
			return err
		}
		if !found {
			return ferr.ErrNoEntry
		}
		if im.Mode.Type() == types.TypeDirectory {
			return ferr.ErrIsDir
		}
		size = im.Size
		extents = append(extents, im.Extents...)
		return nil
	})
	e.stateLock.RUnlock()
	if err != nil {
		return 0, err
	}

	if offset >= size || len(buf) == 0 {
		return 0, nil
	}
	want := uint64(len(buf))
	if offset+want > size {
		want = size - offset
	}

	pos := offset
	end := offset + want
	filled := 0
	for pos < end {
		winIdx := -1
		for i, ex := range extents {
			if pos >= ex.LogicalOff && pos < ex.End() {
				winIdx = i
			}
		}
		if winIdx >= 0 {
			ext := extents[winIdx]
			runEnd := ext.End()
			if runEnd > end {
				runEnd = end
			}
			// A later (newer) extent overlapping the remainder of ext's
			// range supersedes it from its own start onward, the same
			// "newest wins" rule inode.Superseding applies per-byte. Cap
			// the run there instead of serving stale bytes from ext.
			for i := winIdx + 1; i < len(extents); i++ {
				if off := extents[i].LogicalOff; off > pos && off < runEnd {
					runEnd = off
				}
			}
			full := make([]byte, ext.Len)
			if err := e.log.ReadData(int64(ext.PhysicalPtr), full); err != nil {
				return filled, fmt.Errorf("%w: %v", ferr.ErrIO, err)
			}
			if e.VerifyCRC && ext.CRCValid && !inode.VerifyCRC(ext, full) {
				return filled, fmt.Errorf("%w: extent checksum mismatch at logical offset %d", ferr.ErrIO, ext.LogicalOff)
			}
			start := pos - ext.LogicalOff
			length := runEnd - pos
			copy(buf[filled:], full[start:start+length])
			pos = runEnd
			filled += int(length)
			continue
		}

		// Hole: zero-fill up to the next extent start (or end of range).
		nextStart := end
		for _, ex := range extents {
			if ex.LogicalOff > pos && ex.LogicalOff < nextStart {
				nextStart = ex.LogicalOff
			}
		}
		length := nextStart - pos
		for i := uint64(0); i < length; i++ {
			buf[filled+int(i)] = 0
		}
		pos = nextStart
		filled += int(length)
	}
	return filled, nil
}
