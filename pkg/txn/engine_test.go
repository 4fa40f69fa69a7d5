package txn

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/dbfst/pkg/blockdevice"
	"github.com/cuemby/dbfst/pkg/clock"
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/logmgr"
	"github.com/cuemby/dbfst/pkg/types"
	"github.com/cuemby/dbfst/pkg/wal"
)

// newTestEngine wires up a fresh Engine over an in-memory device and a
// scratch bbolt file, with a root inode and directory bucket already
// seeded — mirroring the baseline pkg/dbfs.format leaves a mount in.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dev := blockdevice.NewMemDevice(4 << 20)
	reserved := int64(64 << 10)

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	walStorage, err := wal.NewDeviceStorage(dev, 0, reserved)
	if err != nil {
		t.Fatalf("NewDeviceStorage: %v", err)
	}
	journal, entries, err := wal.Open(walStorage)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no pending WAL entries on a fresh device")
	}

	logMgr, err := logmgr.New(dev, reserved, reserved)
	if err != nil {
		t.Fatalf("logmgr.New: %v", err)
	}

	err = store.Update(func(tx *kvstore.Tx) error {
		root := &types.InodeMetadata{
			Ino:   types.RootIno,
			Mode:  types.NewMode(types.TypeDirectory, 0o755),
			Nlink: 2,
		}
		if err := inode.Put(tx, root); err != nil {
			return err
		}
		return inode.CreateDirBucket(tx, types.RootIno, types.RootIno)
	})
	if err != nil {
		t.Fatalf("seed root: %v", err)
	}

	clk := &clock.Fake{Sec: 1000}
	return New(dev, store, logMgr, journal, clk, types.RootIno)
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	ino, err := e.Create(types.RootIno, "hello.txt", 0o644, 0, 0, types.TypeRegular, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte("hello, dbfs")
	n, err := e.WriteAt(ino, 0, payload)
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("WriteAt n = %d, want %d", n, len(payload))
	}

	got := make([]byte, len(payload))
	n, err = e.ReadAt(ino, 0, got)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(payload) || string(got) != string(payload) {
		t.Fatalf("ReadAt = %q, want %q", got[:n], payload)
	}

	looked, err := e.Lookup(types.RootIno, "hello.txt")
	if err != nil || looked != ino {
		t.Fatalf("Lookup = %d, %v, want %d, nil", looked, err, ino)
	}
}

func TestMkdirAndReaddir(t *testing.T) {
	e := newTestEngine(t)

	sub, err := e.Mkdir(types.RootIno, "sub", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := e.Create(sub, "file", 0o644, 0, 0, types.TypeRegular, 0); err != nil {
		t.Fatalf("Create in subdir: %v", err)
	}

	names := map[string]bool{}
	for i := 0; ; i++ {
		entry, ok, err := e.Readdir(sub, i)
		if err != nil {
			t.Fatalf("Readdir: %v", err)
		}
		if !ok {
			break
		}
		names[entry.Name] = true
	}
	for _, want := range []string{".", "..", "file"} {
		if !names[want] {
			t.Fatalf("Readdir missing entry %q: got %v", want, names)
		}
	}

	attr, err := e.GetAttr(sub)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attr.Nlink != 2 {
		t.Fatalf("sub Nlink = %d, want 2 (self + '.')", attr.Nlink)
	}
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	e := newTestEngine(t)
	sub, err := e.Mkdir(types.RootIno, "sub", 0o755, 0, 0)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := e.Create(sub, "file", 0o644, 0, 0, types.TypeRegular, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Rmdir(types.RootIno, "sub"); err == nil {
		t.Fatal("expected Rmdir on a non-empty directory to fail")
	}
	if err := e.Unlink(sub, "file"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := e.Rmdir(types.RootIno, "sub"); err != nil {
		t.Fatalf("Rmdir after emptying directory: %v", err)
	}
}

func TestRenameOverwriteDropsDestinationLink(t *testing.T) {
	e := newTestEngine(t)

	src, err := e.Create(types.RootIno, "src", 0o644, 0, 0, types.TypeRegular, 0)
	if err != nil {
		t.Fatalf("Create src: %v", err)
	}
	dst, err := e.Create(types.RootIno, "dst", 0o644, 0, 0, types.TypeRegular, 0)
	if err != nil {
		t.Fatalf("Create dst: %v", err)
	}
	// Give dst a second link so it survives the rename-overwrite with
	// Nlink 1 remaining, proving the overwritten name's reference was
	// actually dropped rather than the inode being deleted outright.
	if err := e.Link(types.RootIno, "dst2", dst); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if err := e.Rename(types.RootIno, "src", types.RootIno, "dst"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := e.Lookup(types.RootIno, "src"); err == nil {
		t.Fatal("expected old name to be gone after rename")
	}
	renamed, err := e.Lookup(types.RootIno, "dst")
	if err != nil || renamed != src {
		t.Fatalf("Lookup(dst) = %d, %v, want %d, nil", renamed, err, src)
	}

	attr, err := e.GetAttr(dst)
	if err != nil {
		t.Fatalf("GetAttr(dst): %v", err)
	}
	if attr.Nlink != 1 {
		t.Fatalf("overwritten inode Nlink = %d, want 1 (only dst2 left)", attr.Nlink)
	}
}

func TestReadAtServesNewestOverlappingExtent(t *testing.T) {
	e := newTestEngine(t)
	ino, err := e.Create(types.RootIno, "f", 0o644, 0, 0, types.TypeRegular, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.WriteAt(ino, 0, []byte("AAAA")); err != nil {
		t.Fatalf("WriteAt 1: %v", err)
	}
	if _, err := e.WriteAt(ino, 2, []byte("BB")); err != nil {
		t.Fatalf("WriteAt 2: %v", err)
	}

	buf := make([]byte, 4)
	n, err := e.ReadAt(ino, 0, buf)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 4 || string(buf) != "AABB" {
		t.Fatalf("ReadAt = %q (n=%d), want %q", buf[:n], n, "AABB")
	}
}

func TestReadAtDetectsCRCMismatch(t *testing.T) {
	e := newTestEngine(t)
	ino, err := e.Create(types.RootIno, "f", 0o644, 0, 0, types.TypeRegular, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("integrity matters")
	if _, err := e.WriteAt(ino, 0, payload); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Corrupt the data-log bytes directly on the backing device,
	// bypassing the engine, to simulate on-disk bitrot.
	corrupt := []byte("INTEGRITY MATTERS")
	if _, err := e.dev.WriteAt(corrupt, int64(64<<10)); err != nil {
		t.Fatalf("corrupt device: %v", err)
	}

	buf := make([]byte, len(payload))
	if _, err := e.ReadAt(ino, 0, buf); err == nil {
		t.Fatal("expected CRC mismatch to surface as an error")
	}
}
