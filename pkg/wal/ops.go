package wal

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

// Op is a logical operation the WAL can durably log and replay. Each
// op is deterministic and reapplicable given only its recorded
// arguments and the current store state (spec §4.4.2 step 5), so a
// crash mid-replay can simply retry from the top — Apply must treat
// EEXIST/NotFound as "already applied" rather than an error where
// doing so keeps replay idempotent (invariant I6).
//
// Write and Truncate are part of the logical-operation vocabulary
// spec §4.4.3 names but are never logged here: both are single-commit
// operations applied directly against the KV store (SPEC_FULL.md
// §4.5), so they have no Op implementation in this package.
type Op interface {
	Type() string
	Apply(tx *kvstore.Tx) error
}

// CreateOp allocates a new inode of the given type under parent/name.
// It covers create (regular/device/fifo/socket), mkdir (Type =
// TypeDirectory, which additionally bumps the parent's nlink), and
// symlink (Type = TypeSymlink, SymlinkTarget set) — spec §4.4.3 lists
// Create and Mkdir separately, but mkdir's only extra behavior over a
// plain create is the parent nlink bump, which Apply performs whenever
// Type is a directory.
type CreateOp struct {
	Ino           uint64
	Parent        uint64
	Name          string
	Uid           uint32
	Gid           uint32
	Perm          uint32
	Dev           uint64
	Type          types.FileType
	SymlinkTarget string
	Sec           int64
	Nsec          int64
}

func (CreateOp) Type() string { return "create" }

func (op CreateOp) Apply(tx *kvstore.Tx) error {
	if _, exists := inode.DirLookup(tx, op.Parent, op.Name); exists {
		// Already applied by a prior (crashed) replay pass: idempotent no-op.
		return nil
	}
	if _, found, err := inode.Get(tx, op.Ino); err != nil {
		return err
	} else if !found {
		im := &types.InodeMetadata{
			Ino:           op.Ino,
			Mode:          types.NewMode(op.Type, op.Perm),
			Nlink:         1,
			Uid:           op.Uid,
			Gid:           op.Gid,
			Rdev:          op.Dev,
			SymlinkTarget: op.SymlinkTarget,
			Atime:         types.Timespec{Sec: op.Sec, Nsec: op.Nsec},
			Mtime:         types.Timespec{Sec: op.Sec, Nsec: op.Nsec},
			Ctime:         types.Timespec{Sec: op.Sec, Nsec: op.Nsec},
		}
		if op.Type == types.TypeDirectory {
			im.Nlink = 2 // self + "."
			if err := inode.CreateDirBucket(tx, op.Ino, op.Parent); err != nil {
				return err
			}
		}
		if err := inode.Put(tx, im); err != nil {
			return err
		}
		if op.Type == types.TypeDirectory {
			if err := bumpNlink(tx, op.Parent, 1); err != nil {
				return err
			}
		}
	}
	return inode.DirPut(tx, op.Parent, op.Name, op.Ino)
}

// DeleteOp removes a name from a directory, decrementing the target's
// nlink and deleting the inode once its last name is gone. It covers
// both unlink (regular files) and rmdir (the rmdir-specific "directory
// has only '.'/'..' left" guard, spec I5/§4.4.6, is checked by the
// transaction engine before the op is ever logged, not during Apply).
type DeleteOp struct {
	Parent uint64
	Name   string
}

func (DeleteOp) Type() string { return "delete" }

func (op DeleteOp) Apply(tx *kvstore.Tx) error {
	child, exists := inode.DirLookup(tx, op.Parent, op.Name)
	if !exists {
		// Already applied: idempotent no-op (invariant I6).
		return nil
	}
	if err := inode.DirDelete(tx, op.Parent, op.Name); err != nil {
		return err
	}
	im, found, err := inode.Get(tx, child)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if im.Mode.Type() == types.TypeDirectory {
		if err := tx.DeleteBucket(inode.DirBucketName(child)); err != nil {
			return fmt.Errorf("wal: delete dir bucket %d: %w", child, err)
		}
		if err := bumpNlink(tx, op.Parent, -1); err != nil {
			return err
		}
		im.Nlink = 0
	} else if im.Nlink > 0 {
		im.Nlink--
	}
	if im.Nlink == 0 {
		return inode.Delete(tx, child)
	}
	return inode.Put(tx, im)
}

// RenameOp moves (or renames) a directory entry, atomically across
// parents: the destination name is added before the source is removed
// so a crash mid-apply always leaves either the pre- or post-rename
// state reachable by name (spec §4.4.3, scenario 5).
type RenameOp struct {
	OldParent uint64
	Old       string
	NewParent uint64
	New       string
}

func (RenameOp) Type() string { return "rename" }

func (op RenameOp) Apply(tx *kvstore.Tx) error {
	existingNew, newExists := inode.DirLookup(tx, op.NewParent, op.New)
	child, oldExists := inode.DirLookup(tx, op.OldParent, op.Old)

	if !oldExists {
		// Either never applied against this exact source (a racing
		// operation already removed it) or a prior replay pass already
		// finished the move: either way there is nothing left to do.
		return nil
	}
	if newExists && existingNew == child && !(op.OldParent == op.NewParent && op.Old == op.New) {
		// Destination already points at the source: only the unlink
		// of the old name remains.
		if err := inode.DirDelete(tx, op.OldParent, op.Old); err != nil {
			return err
		}
		return adjustRenameDirNlinks(tx, op, false)
	}

	if newExists && existingNew != child {
		// The destination name is being overwritten: the inode it used
		// to name loses one reference, same as an explicit unlink.
		if err := dropDentryTarget(tx, op.NewParent, existingNew); err != nil {
			return err
		}
	}

	if err := inode.DirPut(tx, op.NewParent, op.New, child); err != nil {
		return err
	}
	if err := inode.DirDelete(tx, op.OldParent, op.Old); err != nil {
		return err
	}
	if op.OldParent == op.NewParent && op.Old == op.New {
		return nil
	}
	return adjustRenameDirNlinks(tx, op, true)
}

// dropDentryTarget removes one reference from ino, as if a dentry
// naming it in parent had just been unlinked — used when a rename
// overwrites an existing destination name (spec §4.4.3's rename covers
// "an existing destination is unlinked first").
func dropDentryTarget(tx *kvstore.Tx, parent, ino uint64) error {
	im, found, err := inode.Get(tx, ino)
	if err != nil || !found {
		return err
	}
	if im.Mode.Type() == types.TypeDirectory {
		if err := tx.DeleteBucket(inode.DirBucketName(ino)); err != nil {
			return fmt.Errorf("wal: delete dir bucket %d: %w", ino, err)
		}
		if err := bumpNlink(tx, parent, -1); err != nil {
			return err
		}
		return inode.Delete(tx, ino)
	}
	if im.Nlink > 0 {
		im.Nlink--
	}
	if im.Nlink == 0 {
		return inode.Delete(tx, ino)
	}
	return inode.Put(tx, im)
}

// adjustRenameDirNlinks bumps/decrements parent directory nlinks when
// the renamed entry is itself a directory moving across parents (its
// ".." now points elsewhere), per spec §4.4.3 "across parents
// bumps/decrements dir nlinks".
func adjustRenameDirNlinks(tx *kvstore.Tx, op RenameOp, updateDotDot bool) error {
	if op.OldParent == op.NewParent {
		return nil
	}
	child, exists := inode.DirLookup(tx, op.NewParent, op.New)
	if !exists {
		return nil
	}
	im, found, err := inode.Get(tx, child)
	if err != nil || !found || im.Mode.Type() != types.TypeDirectory {
		return err
	}
	if updateDotDot {
		if b := tx.Bucket(inode.DirBucketName(child)); b != nil {
			var parentVal [8]byte
			putBE(parentVal[:], op.NewParent)
			if err := b.Put([]byte(".."), parentVal[:]); err != nil {
				return fmt.Errorf("wal: update '..' for dir %d: %w", child, err)
			}
		}
	}
	if err := bumpNlink(tx, op.NewParent, 1); err != nil {
		return err
	}
	return bumpNlink(tx, op.OldParent, -1)
}

// LinkOp creates an additional hard link to an existing inode.
type LinkOp struct {
	Parent uint64
	Name   string
	Src    uint64
}

func (LinkOp) Type() string { return "link" }

func (op LinkOp) Apply(tx *kvstore.Tx) error {
	if _, exists := inode.DirLookup(tx, op.Parent, op.Name); exists {
		return nil
	}
	im, found, err := inode.Get(tx, op.Src)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	im.Nlink++
	if err := inode.Put(tx, im); err != nil {
		return err
	}
	return inode.DirPut(tx, op.Parent, op.Name, op.Src)
}

func bumpNlink(tx *kvstore.Tx, ino uint64, delta int32) error {
	im, found, err := inode.Get(tx, ino)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if delta < 0 && im.Nlink < uint32(-delta) {
		im.Nlink = 0
	} else {
		im.Nlink = uint32(int64(im.Nlink) + int64(delta))
	}
	return inode.Put(tx, im)
}

func putBE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func decodeOp(opType string, raw json.RawMessage) (Op, error) {
	switch opType {
	case "create":
		var op CreateOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case "delete":
		var op DeleteOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case "rename":
		var op RenameOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	case "link":
		var op LinkOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return op, nil
	default:
		return nil, fmt.Errorf("wal: unknown op type %q", opType)
	}
}
