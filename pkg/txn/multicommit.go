package txn

import (
	"fmt"

	"github.com/cuemby/dbfst/pkg/ferr"
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
	"github.com/cuemby/dbfst/pkg/wal"
)

// runMultiCommit drives the common spec §4.4.2 sequence for every
// multi-commit operation: append the logged op, flush the WAL, apply
// it inside one kvstore commit, then checkpoint. stateLock is held for
// the whole sequence (not just the apply step) so two concurrent
// mutating operations on the same names can't both pass their
// precondition check before either has applied — the caller performs
// that check inside precheck, under the same lock.
func (e *Engine) runMultiCommit(precheck func(tx *kvstore.Tx) error, op wal.Op) error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if precheck != nil {
		if err := e.store.View(precheck); err != nil {
			return err
		}
	}

	txnID := e.nextTxnID.Add(1)
	if err := e.journal.Append(wal.Entry{TxnID: txnID, Op: op}); err != nil {
		return fmt.Errorf("%w: %v", ferr.ErrIO, err)
	}
	if err := e.journal.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ferr.ErrIO, err)
	}
	if err := e.store.Update(func(tx *kvstore.Tx) error { return op.Apply(tx) }); err != nil {
		return err
	}
	e.journal.ClearTxn(txnID)
	return e.journal.Checkpoint()
}

func requireDir(tx *kvstore.Tx, ino uint64) (*types.InodeMetadata, error) {
	im, found, err := inode.Get(tx, ino)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ferr.ErrNoEntry
	}
	if im.Mode.Type() != types.TypeDirectory {
		return nil, ferr.ErrNotDir
	}
	return im, nil
}

func create(e *Engine, parent uint64, name string, ftype types.FileType, perm, uid, gid uint32, rdev uint64, target string) (uint64, error) {
	if name == "" || name == "." || name == ".." {
		return 0, ferr.ErrInvalid
	}
	var ino uint64
	precheck := func(tx *kvstore.Tx) error {
		if _, err := requireDir(tx, parent); err != nil {
			return err
		}
		if _, exists := inode.DirLookup(tx, parent, name); exists {
			return ferr.ErrExist
		}
		return nil
	}

	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	if err := e.store.View(precheck); err != nil {
		return 0, err
	}
	ino = e.allocateInode()
	sec, nsec := e.clk.Now()
	op := wal.CreateOp{
		Ino: ino, Parent: parent, Name: name,
		Uid: uid, Gid: gid, Perm: perm, Dev: rdev,
		Type: ftype, SymlinkTarget: target,
		Sec: sec, Nsec: nsec,
	}
	txnID := e.nextTxnID.Add(1)
	if err := e.journal.Append(wal.Entry{TxnID: txnID, Op: op}); err != nil {
		return 0, fmt.Errorf("%w: %v", ferr.ErrIO, err)
	}
	if err := e.journal.Flush(); err != nil {
		return 0, fmt.Errorf("%w: %v", ferr.ErrIO, err)
	}
	if err := e.store.Update(func(tx *kvstore.Tx) error { return op.Apply(tx) }); err != nil {
		return 0, err
	}
	e.journal.ClearTxn(txnID)
	return ino, e.journal.Checkpoint()
}

// Create allocates a new regular, device, fifo, or socket inode named
// name under parent.
func (e *Engine) Create(parent uint64, name string, perm, uid, gid uint32, ftype types.FileType, rdev uint64) (uint64, error) {
	if ftype == types.TypeDirectory || ftype == types.TypeSymlink {
		return 0, ferr.ErrInvalid
	}
	return create(e, parent, name, ftype, perm, uid, gid, rdev, "")
}

// Mkdir allocates a new directory inode named name under parent.
func (e *Engine) Mkdir(parent uint64, name string, perm, uid, gid uint32) (uint64, error) {
	return create(e, parent, name, types.TypeDirectory, perm, uid, gid, 0, "")
}

// Symlink allocates a new symlink inode named name under parent,
// pointing at target.
func (e *Engine) Symlink(parent uint64, name, target string, uid, gid uint32) (uint64, error) {
	return create(e, parent, name, types.TypeSymlink, 0o777, uid, gid, 0, target)
}

// Unlink removes a non-directory name from parent, deleting the
// backing inode once its last name is gone.
func (e *Engine) Unlink(parent uint64, name string) error {
	precheck := func(tx *kvstore.Tx) error {
		if _, err := requireDir(tx, parent); err != nil {
			return err
		}
		child, exists := inode.DirLookup(tx, parent, name)
		if !exists {
			return ferr.ErrNoEntry
		}
		cim, found, err := inode.Get(tx, child)
		if err != nil {
			return err
		}
		if found && cim.Mode.Type() == types.TypeDirectory {
			return ferr.ErrIsDir
		}
		return nil
	}
	return e.runMultiCommit(precheck, wal.DeleteOp{Parent: parent, Name: name})
}

// Rmdir removes an empty directory name from parent (spec I5: only
// "." and ".." may remain).
func (e *Engine) Rmdir(parent uint64, name string) error {
	precheck := func(tx *kvstore.Tx) error {
		if _, err := requireDir(tx, parent); err != nil {
			return err
		}
		child, exists := inode.DirLookup(tx, parent, name)
		if !exists {
			return ferr.ErrNoEntry
		}
		if name == "." || name == ".." {
			return ferr.ErrInvalid
		}
		cim, found, err := inode.Get(tx, child)
		if err != nil {
			return err
		}
		if !found || cim.Mode.Type() != types.TypeDirectory {
			return ferr.ErrNotDir
		}
		if inode.DirCount(tx, child) > 2 {
			return ferr.ErrNotEmpty
		}
		return nil
	}
	return e.runMultiCommit(precheck, wal.DeleteOp{Parent: parent, Name: name})
}

// Link creates an additional name for an existing non-directory inode.
func (e *Engine) Link(parent uint64, name string, src uint64) error {
	precheck := func(tx *kvstore.Tx) error {
		if _, err := requireDir(tx, parent); err != nil {
			return err
		}
		if _, exists := inode.DirLookup(tx, parent, name); exists {
			return ferr.ErrExist
		}
		srcIm, found, err := inode.Get(tx, src)
		if err != nil {
			return err
		}
		if !found {
			return ferr.ErrNoEntry
		}
		if srcIm.Mode.Type() == types.TypeDirectory {
			return ferr.ErrIsDir
		}
		return nil
	}
	return e.runMultiCommit(precheck, wal.LinkOp{Parent: parent, Name: name, Src: src})
}

// Rename moves (or renames) oldParent/old to newParent/new, atomically
// replacing any existing entry at the destination (spec §4.4.3,
// scenario 5).
func (e *Engine) Rename(oldParent uint64, old string, newParent uint64, new string) error {
	precheck := func(tx *kvstore.Tx) error {
		if _, err := requireDir(tx, oldParent); err != nil {
			return err
		}
		if _, err := requireDir(tx, newParent); err != nil {
			return err
		}
		srcIno, exists := inode.DirLookup(tx, oldParent, old)
		if !exists {
			return ferr.ErrNoEntry
		}
		dstIno, dstExists := inode.DirLookup(tx, newParent, new)
		if !dstExists || dstIno == srcIno {
			return nil
		}
		srcIm, _, err := inode.Get(tx, srcIno)
		if err != nil {
			return err
		}
		dstIm, found, err := inode.Get(tx, dstIno)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if dstIm.Mode.Type() == types.TypeDirectory {
			if srcIm.Mode.Type() != types.TypeDirectory {
				return ferr.ErrIsDir
			}
			if inode.DirCount(tx, dstIno) > 2 {
				return ferr.ErrNotEmpty
			}
		} else if srcIm.Mode.Type() == types.TypeDirectory {
			return ferr.ErrNotDir
		}
		return nil
	}
	return e.runMultiCommit(precheck, wal.RenameOp{OldParent: oldParent, Old: old, NewParent: newParent, New: new})
}
