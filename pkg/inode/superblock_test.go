package inode

import (
	"testing"

	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/types"
)

func TestSuperblockRoundTrip(t *testing.T) {
	store := openTestStore(t)
	want := &types.Superblock{
		Magic:         types.MagicNumber,
		BlockSize:     4096,
		DiskSize:      1 << 30,
		ContinueInode: 17,
		DataCursor:    1 << 20,
	}
	if err := store.Update(func(tx *kvstore.Tx) error { return PutSuperblock(tx, want) }); err != nil {
		t.Fatalf("PutSuperblock: %v", err)
	}

	var got *types.Superblock
	var found bool
	if err := store.View(func(tx *kvstore.Tx) error {
		var err error
		got, found, err = GetSuperblock(tx)
		return err
	}); err != nil {
		t.Fatalf("GetSuperblock: %v", err)
	}
	if !found {
		t.Fatal("expected superblock to be found")
	}
	if *got != *want {
		t.Fatalf("GetSuperblock = %+v, want %+v", got, want)
	}
}

func TestGetSuperblockAbsent(t *testing.T) {
	store := openTestStore(t)
	var found bool
	if err := store.View(func(tx *kvstore.Tx) error {
		var err error
		_, found, err = GetSuperblock(tx)
		return err
	}); err != nil {
		t.Fatalf("GetSuperblock: %v", err)
	}
	if found {
		t.Fatal("expected no superblock on a fresh store")
	}
}
