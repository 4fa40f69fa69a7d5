package logmgr

import (
	"testing"

	"github.com/cuemby/dbfst/pkg/blockdevice"
)

func TestAppendDataAndReadData(t *testing.T) {
	dev := blockdevice.NewMemDevice(1 << 20)
	mgr, err := New(dev, 4096, 4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte("extent payload bytes")
	ptr, crc, err := mgr.AppendData(payload)
	if err != nil {
		t.Fatalf("AppendData: %v", err)
	}
	if ptr != 4096 {
		t.Fatalf("first append ptr = %d, want 4096", ptr)
	}
	if crc == 0 {
		t.Fatal("expected non-zero CRC")
	}

	got := make([]byte, len(payload))
	if err := mgr.ReadData(ptr, got); err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadData = %q, want %q", got, payload)
	}

	if mgr.Cursor() != 4096+int64(len(payload)) {
		t.Fatalf("Cursor() = %d, want %d", mgr.Cursor(), 4096+int64(len(payload)))
	}

	// A second append lands immediately after the first.
	ptr2, _, err := mgr.AppendData([]byte("more"))
	if err != nil {
		t.Fatalf("second AppendData: %v", err)
	}
	if ptr2 != ptr+int64(len(payload)) {
		t.Fatalf("second ptr = %d, want %d", ptr2, ptr+int64(len(payload)))
	}
}

func TestAppendDataExhaustsDevice(t *testing.T) {
	dev := blockdevice.NewMemDevice(4096 + 8)
	mgr, err := New(dev, 4096, 4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := mgr.AppendData(make([]byte, 16)); err == nil {
		t.Fatal("expected append exceeding device size to fail")
	}
}

func TestNewRejectsStartBeyondDeviceSize(t *testing.T) {
	dev := blockdevice.NewMemDevice(4096)
	if _, err := New(dev, 4096, 8192); err == nil {
		t.Fatal("expected start beyond device size to error")
	}
}

func TestScanHighWaterMark(t *testing.T) {
	got := ScanHighWaterMark(4096, []int64{100, 9000, 500})
	if got != 9000 {
		t.Fatalf("ScanHighWaterMark = %d, want 9000", got)
	}
	// With no extents, the reserved region itself is the high-water mark.
	if got := ScanHighWaterMark(4096, nil); got != 4096 {
		t.Fatalf("ScanHighWaterMark(empty) = %d, want 4096", got)
	}
}
