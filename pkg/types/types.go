package types

import "time"

// Superblock holds filesystem-wide parameters persisted under the
// reserved super_blk bucket.
type Superblock struct {
	Magic         uint32 // fixed constant, 0x44424653 ("DBFS")
	BlockSize     uint32 // typically 4096
	DiskSize      uint64 // total backing device size in bytes
	ContinueInode uint64 // highest allocated inode number, persisted on sync; the next free number is one above it
	DataCursor    uint64 // next_append_pos in the data log region
}

// MagicNumber is the fixed on-disk identifier for a formatted device.
const MagicNumber uint32 = 0x44424653

// RootIno is the fixed inode number of the filesystem root.
const RootIno uint64 = 1

// Mode packs POSIX-style type and permission bits: the top nibble
// carries the file type, the low 12 bits carry permission bits.
type Mode uint32

// Type extracts the file-type bits from a mode value.
func (m Mode) Type() FileType {
	return FileType(m >> 12)
}

// Perm extracts the permission bits (rwxrwxrwx + setuid/setgid/sticky).
func (m Mode) Perm() uint32 {
	return uint32(m) & 0o7777
}

// NewMode packs a file type and permission bits into a Mode.
func NewMode(t FileType, perm uint32) Mode {
	return Mode(uint32(t)<<12 | (perm & 0o7777))
}

// FileType enumerates the inode types DBFS-T understands.
type FileType uint32

const (
	TypeRegular FileType = iota + 1
	TypeDirectory
	TypeSymlink
	TypeCharDevice
	TypeBlockDevice
	TypeFifo
	TypeSocket
)

// Timespec is a seconds+nanoseconds timestamp, matching the precision
// the on-disk record stores atime/mtime/ctime at.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// FromTime converts a time.Time into the on-disk Timespec representation.
func FromTime(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Extent maps a contiguous logical byte range of a file to a range in
// the append-only data log, carrying a CRC-32 of the payload at
// creation time.
type Extent struct {
	LogicalOff  uint64
	PhysicalPtr uint64
	Len         uint64
	CRC32       uint32

	// CRCValid is false for an extent that was shortened by a truncate
	// past its original length; readers skip CRC verification on such
	// extents rather than recomputing a checksum over a retained prefix
	// the write path never validated (see SPEC_FULL.md §9).
	CRCValid bool
}

// End returns the exclusive end of the extent's logical range.
func (e Extent) End() uint64 {
	return e.LogicalOff + e.Len
}

// InodeMetadata is the versioned, serialized record stored per inode in
// the inodes bucket, keyed by the big-endian inode number.
type InodeMetadata struct {
	Ino   uint64
	Size  uint64
	Mode  Mode
	Nlink uint32
	Uid   uint32
	Gid   uint32

	Atime Timespec
	Mtime Timespec
	Ctime Timespec

	// Extents is populated for regular files only.
	Extents []Extent

	// SymlinkTarget is populated for symlinks only.
	SymlinkTarget string

	// Rdev carries the device number for char/block device inodes.
	Rdev uint64
}

// DirEntry is a single readdir result: a child name, its inode number,
// and the child's file type (read from the child's inode record when
// the entry is returned).
type DirEntry struct {
	Ino  uint64
	Name string
	Type FileType
}

// Attr is the stat-like view of an inode returned by GetAttr and
// accepted by SetAttr.
type Attr struct {
	Ino   uint64
	Size  uint64
	Mode  Mode
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Atime Timespec
	Mtime Timespec
	Ctime Timespec
	Rdev  uint64
}

// AttrFromInode projects the stat-relevant fields of an InodeMetadata
// record into an Attr.
func AttrFromInode(im *InodeMetadata) Attr {
	return Attr{
		Ino:   im.Ino,
		Size:  im.Size,
		Mode:  im.Mode,
		Nlink: im.Nlink,
		Uid:   im.Uid,
		Gid:   im.Gid,
		Atime: im.Atime,
		Mtime: im.Mtime,
		Ctime: im.Ctime,
		Rdev:  im.Rdev,
	}
}

// StatFS is the result of a stat_fs call: block/file accounting as
// presented to the hosting VFS.
type StatFS struct {
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
}
