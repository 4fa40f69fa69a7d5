package wal

import (
	"testing"

	"github.com/cuemby/dbfst/pkg/blockdevice"
)

func newTestStorage(t *testing.T, size int64) *DeviceStorage {
	t.Helper()
	dev := blockdevice.NewMemDevice(size)
	s, err := NewDeviceStorage(dev, 0, size)
	if err != nil {
		t.Fatalf("NewDeviceStorage: %v", err)
	}
	return s
}

func TestAppendFlushRecoverRoundTrip(t *testing.T) {
	storage := newTestStorage(t, 64<<10)
	log, entries, err := Open(storage)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries on a fresh storage, got %d", len(entries))
	}

	e1 := Entry{TxnID: 1, Op: CreateOp{Ino: 2, Parent: 1, Name: "a", Type: 1, Perm: 0o644}}
	e2 := Entry{TxnID: 2, Op: DeleteOp{Parent: 1, Name: "a"}}
	if err := log.Append(e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := log.Append(e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := log.Entries(); len(got) != 2 {
		t.Fatalf("Entries() = %d, want 2", len(got))
	}

	// Reopening the same storage recovers both pending frames.
	log2, recovered, err := Open(storage)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(recovered) != 2 {
		t.Fatalf("recovered = %d entries, want 2", len(recovered))
	}
	if recovered[0].TxnID != 1 || recovered[1].TxnID != 2 {
		t.Fatalf("recovered out of order: %+v", recovered)
	}
	if _, ok := recovered[0].Op.(CreateOp); !ok {
		t.Fatalf("recovered[0].Op = %T, want CreateOp", recovered[0].Op)
	}
	if _, ok := recovered[1].Op.(DeleteOp); !ok {
		t.Fatalf("recovered[1].Op = %T, want DeleteOp", recovered[1].Op)
	}
	_ = log2
}

func TestClearTxnThenCheckpointTruncates(t *testing.T) {
	storage := newTestStorage(t, 64<<10)
	log, _, err := Open(storage)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append(Entry{TxnID: 1, Op: DeleteOp{Parent: 1, Name: "a"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Checkpoint is a no-op while entries remain pending.
	if err := log.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if _, entries, err := Open(storage); err != nil || len(entries) != 1 {
		t.Fatalf("expected entry to survive a checkpoint attempt while pending, got %d entries, err=%v", len(entries), err)
	}

	log.ClearTxn(1)
	if got := log.Entries(); len(got) != 0 {
		t.Fatalf("Entries() after ClearTxn = %d, want 0", len(got))
	}
	if err := log.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	if _, entries, err := Open(storage); err != nil || len(entries) != 0 {
		t.Fatalf("expected storage to be empty after checkpoint, got %d entries, err=%v", len(entries), err)
	}
}

func TestRecoverStopsAtCorruptTrailingFrame(t *testing.T) {
	storage := newTestStorage(t, 64<<10)
	log, _, err := Open(storage)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append(Entry{TxnID: 1, Op: LinkOp{Parent: 1, Name: "a", Src: 2}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Simulate a torn trailing write: append a bogus oversized length
	// prefix directly through the underlying storage, bypassing Log.
	if err := storage.Write([]byte{0xff, 0xff, 0xff, 0x7f}); err != nil {
		t.Fatalf("write torn frame: %v", err)
	}

	_, entries, err := Open(storage)
	if err != nil {
		t.Fatalf("Open after torn write: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected recovery to stop at the corrupt frame, got %d entries", len(entries))
	}
}

func TestDeviceStorageExhaustion(t *testing.T) {
	storage := newTestStorage(t, headerSize+8)
	if err := storage.Write(make([]byte, 16)); err == nil {
		t.Fatal("expected write exceeding region size to fail")
	}
}
