package inode

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

func openTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	im := &types.InodeMetadata{
		Ino:   7,
		Size:  4096,
		Mode:  types.NewMode(types.TypeRegular, 0o644),
		Nlink: 1,
		Uid:   1000,
		Gid:   1000,
		Extents: []types.Extent{
			{LogicalOff: 0, PhysicalPtr: 128, Len: 4096, CRC32: 0xdeadbeef, CRCValid: true},
		},
	}
	data, err := Encode(im)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Ino != im.Ino || got.Size != im.Size || got.Mode != im.Mode {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, im)
	}
	if len(got.Extents) != 1 || got.Extents[0].CRC32 != im.Extents[0].CRC32 {
		t.Fatalf("extent round trip mismatch: %+v", got.Extents)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	if _, err := Decode([]byte{99, '{', '}'}); err == nil {
		t.Fatal("expected unsupported format version to error")
	}
}

func TestPutGetDelete(t *testing.T) {
	store := openTestStore(t)
	im := &types.InodeMetadata{Ino: 42, Mode: types.NewMode(types.TypeRegular, 0o600), Nlink: 1}

	if err := store.Update(func(tx *kvstore.Tx) error { return Put(tx, im) }); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got *types.InodeMetadata
	var found bool
	if err := store.View(func(tx *kvstore.Tx) error {
		var err error
		got, found, err = Get(tx, 42)
		return err
	}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || got.Ino != 42 {
		t.Fatalf("Get = %+v, found=%v", got, found)
	}

	if err := store.Update(func(tx *kvstore.Tx) error { return Delete(tx, 42) }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.View(func(tx *kvstore.Tx) error {
		_, found, err := Get(tx, 42)
		if found {
			t.Fatal("expected inode to be gone after Delete")
		}
		return err
	}); err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
}

func TestMaxInode(t *testing.T) {
	store := openTestStore(t)
	if err := store.Update(func(tx *kvstore.Tx) error {
		for _, ino := range []uint64{1, 5, 3} {
			if err := Put(tx, &types.InodeMetadata{Ino: ino}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var max uint64
	if err := store.View(func(tx *kvstore.Tx) error {
		max = MaxInode(tx)
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
	if max != 5 {
		t.Fatalf("MaxInode = %d, want 5", max)
	}
}
