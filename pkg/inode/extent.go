package inode

import (
	"hash/crc32"

	"github.com/cuemby/dbfst/pkg/types"
)

// AppendExtent appends a new extent to im's extent vector and bumps
// Size to cover it, implementing spec §4.4.1 step 3
// ("newest-wins" overlap is a property of lookup order, not of how
// extents are stored — the vector stays append-heavy, per spec §3).
func AppendExtent(im *types.InodeMetadata, e types.Extent) {
	im.Extents = append(im.Extents, e)
	if end := e.End(); end > im.Size {
		im.Size = end
	}
}

// Superseding returns the extent that should answer a read of the byte
// at logical offset off, or false if no extent covers it (a hole).
// Later extents in the vector supersede earlier ones on overlap,
// reflecting write ordering (spec §4.4.5 step 3: "newest wins").
func Superseding(extents []types.Extent, off uint64) (types.Extent, bool) {
	var found types.Extent
	ok := false
	for _, e := range extents {
		if off >= e.LogicalOff && off < e.End() {
			found = e
			ok = true
		}
	}
	return found, ok
}

// Truncate shortens im's extent vector to newSize: extents entirely
// beyond newSize are dropped, and an extent straddling the boundary
// has its Len reduced. Per the Open Question resolution in
// SPEC_FULL.md §9, a shortened extent's CRC is left as-is but marked
// CRCValid=false — ReadAt skips CRC verification on it rather than
// recomputing a checksum over a retained prefix the write path never
// validated.
func Truncate(im *types.InodeMetadata, newSize uint64) {
	kept := im.Extents[:0]
	for _, e := range im.Extents {
		switch {
		case e.LogicalOff >= newSize:
			// Entirely beyond the new size: drop.
			continue
		case e.End() > newSize:
			// Straddles the boundary: shrink.
			e.Len = newSize - e.LogicalOff
			e.CRCValid = false
			kept = append(kept, e)
		default:
			kept = append(kept, e)
		}
	}
	im.Extents = kept
	im.Size = newSize
}

// VerifyCRC checks the payload's CRC-32 against the extent's stored
// value, using the IEEE polynomial (0xEDB88320) spec §3 names.
func VerifyCRC(e types.Extent, payload []byte) bool {
	return crc32.ChecksumIEEE(payload) == e.CRC32
}
