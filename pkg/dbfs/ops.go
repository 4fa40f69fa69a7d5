package dbfs

import (
	"strings"
	"time"

	"github.com/cuemby/dbfst/pkg/metrics"
	"github.com/cuemby/dbfst/pkg/txn"
	"github.com/cuemby/dbfst/pkg/types"
)

// The full operation table from spec §6, implemented one-to-one as
// FsContext methods delegating to txn.Engine. Every method records its
// outcome through metrics.RecordOp, the same way cuemby-warren's
// reconciler loop timed and labeled controller passes.

// Lookup resolves name inside parent and also primes the attribute
// cache for the result, since a FUSE-style lookup caller almost always
// issues a GetAttr on the same inode immediately afterward.
func (fc *FsContext) Lookup(parent uint64, name string) (uint64, error) {
	start := time.Now()
	ino, err := fc.engine.Lookup(parent, name)
	if err == nil {
		if attr, aerr := fc.engine.GetAttr(ino); aerr == nil {
			fc.fill(ino, attr)
		}
	}
	metrics.RecordOp("lookup", start, err)
	return ino, err
}

func (fc *FsContext) GetAttr(ino uint64) (types.Attr, error) {
	start := time.Now()
	if attr, ok := fc.cached(ino); ok {
		metrics.RecordOp("getattr", start, nil)
		return attr, nil
	}
	attr, err := fc.engine.GetAttr(ino)
	if err == nil {
		fc.fill(ino, attr)
	}
	metrics.RecordOp("getattr", start, err)
	return attr, err
}

func (fc *FsContext) cached(ino uint64) (types.Attr, bool) {
	fc.cacheMu.Lock()
	defer fc.cacheMu.Unlock()
	attr, ok := fc.cache[ino]
	return attr, ok
}

func (fc *FsContext) fill(ino uint64, attr types.Attr) {
	fc.cacheMu.Lock()
	defer fc.cacheMu.Unlock()
	fc.cache[ino] = attr
}

func (fc *FsContext) SetAttr(ino uint64, req txn.SetAttrReq) (types.Attr, error) {
	start := time.Now()
	attr, err := fc.engine.SetAttr(ino, req)
	if err == nil {
		fc.invalidate(ino)
	}
	metrics.RecordOp("setattr", start, err)
	return attr, err
}

func (fc *FsContext) Readlink(ino uint64) (string, error) {
	start := time.Now()
	target, err := fc.engine.Readlink(ino)
	metrics.RecordOp("readlink", start, err)
	return target, err
}

func (fc *FsContext) Readdir(parent uint64, index int) (types.DirEntry, bool, error) {
	start := time.Now()
	entry, ok, err := fc.engine.Readdir(parent, index)
	metrics.RecordOp("readdir", start, err)
	return entry, ok, err
}

func (fc *FsContext) StatFS() (types.StatFS, error) {
	start := time.Now()
	sb, err := fc.engine.StatFS()
	metrics.RecordOp("statfs", start, err)
	return sb, err
}

func (fc *FsContext) ReadAt(ino uint64, offset uint64, buf []byte) (int, error) {
	start := time.Now()
	n, err := fc.engine.ReadAt(ino, offset, buf)
	if err != nil && strings.Contains(err.Error(), "checksum mismatch") {
		metrics.CRCMismatchesTotal.Inc()
	}
	metrics.RecordOp("read", start, err)
	return n, err
}

func (fc *FsContext) WriteAt(ino uint64, offset uint64, data []byte) (int, error) {
	start := time.Now()
	n, err := fc.engine.WriteAt(ino, offset, data)
	if err == nil {
		fc.invalidate(ino)
		metrics.LogBytesWrittenTotal.Add(float64(len(data)))
	}
	metrics.RecordOp("write", start, err)
	return n, err
}

func (fc *FsContext) Truncate(ino uint64, newSize uint64) error {
	start := time.Now()
	err := fc.engine.Truncate(ino, newSize)
	if err == nil {
		fc.invalidate(ino)
	}
	metrics.RecordOp("truncate", start, err)
	return err
}

func (fc *FsContext) Create(parent uint64, name string, perm, uid, gid uint32, ftype types.FileType, rdev uint64) (uint64, error) {
	start := time.Now()
	ino, err := fc.engine.Create(parent, name, perm, uid, gid, ftype, rdev)
	if err == nil {
		fc.invalidate(parent)
	}
	metrics.RecordOp("create", start, err)
	return ino, err
}

func (fc *FsContext) Mkdir(parent uint64, name string, perm, uid, gid uint32) (uint64, error) {
	start := time.Now()
	ino, err := fc.engine.Mkdir(parent, name, perm, uid, gid)
	if err == nil {
		fc.invalidate(parent)
	}
	metrics.RecordOp("mkdir", start, err)
	return ino, err
}

func (fc *FsContext) Symlink(parent uint64, name, target string, uid, gid uint32) (uint64, error) {
	start := time.Now()
	ino, err := fc.engine.Symlink(parent, name, target, uid, gid)
	if err == nil {
		fc.invalidate(parent)
	}
	metrics.RecordOp("symlink", start, err)
	return ino, err
}

func (fc *FsContext) Unlink(parent uint64, name string) error {
	start := time.Now()
	child, _ := fc.engine.Lookup(parent, name)
	err := fc.engine.Unlink(parent, name)
	if err == nil {
		fc.invalidate(parent, child)
	}
	metrics.RecordOp("unlink", start, err)
	return err
}

func (fc *FsContext) Rmdir(parent uint64, name string) error {
	start := time.Now()
	child, _ := fc.engine.Lookup(parent, name)
	err := fc.engine.Rmdir(parent, name)
	if err == nil {
		fc.invalidate(parent, child)
	}
	metrics.RecordOp("rmdir", start, err)
	return err
}

func (fc *FsContext) Link(parent uint64, name string, src uint64) error {
	start := time.Now()
	err := fc.engine.Link(parent, name, src)
	if err == nil {
		fc.invalidate(parent, src)
	}
	metrics.RecordOp("link", start, err)
	return err
}

func (fc *FsContext) Rename(oldParent uint64, old string, newParent uint64, new string) error {
	start := time.Now()
	overwritten, _ := fc.engine.Lookup(newParent, new)
	err := fc.engine.Rename(oldParent, old, newParent, new)
	if err == nil {
		fc.invalidate(oldParent, newParent, overwritten)
	}
	metrics.RecordOp("rename", start, err)
	return err
}
