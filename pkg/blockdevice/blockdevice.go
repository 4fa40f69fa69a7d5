// Package blockdevice provides the abstract byte-addressable medium
// DBFS-T's other components are built on: read_at/write_at/size/flush,
// with no torn writes smaller than or equal to a single sector assumed
// by the KV store's root-page swap (see SPEC_FULL.md §4.1).
package blockdevice

import (
	"fmt"
	"os"
	"sync"
)

// Device is the capability set the core consumes. Implementations may
// buffer internally, but Flush must achieve durability before it
// returns.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	Flush() error
}

// FileDevice is a Device backed by a fixed-size regular file, opened
// for direct offset I/O the way fluxor's appendlog.fsStore and
// novusdb's WAL both drive *os.File.
type FileDevice struct {
	f    *os.File
	size int64
}

// OpenFile opens (creating if necessary) path as a fixed-size
// FileDevice of exactly size bytes. An existing file shorter than size
// is extended; the contents of any newly extended range are zero.
func OpenFile(path string, size int64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blockdevice: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdevice: stat %s: %w", path, err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdevice: truncate %s: %w", path, err)
		}
	}
	return &FileDevice{f: f, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) Flush() error { return d.f.Sync() }

// Close releases the underlying file handle.
func (d *FileDevice) Close() error { return d.f.Close() }

// File exposes the underlying *os.File for callers that need the raw
// file handle rather than the Device interface.
func (d *FileDevice) File() *os.File { return d.f }

// MemDevice is an in-memory Device for unit tests and the fault
// injection scenarios spec §8 P6 calls for. Writes are mutex-guarded
// the way pkg/logmgr guards its append cursor.
type MemDevice struct {
	mu     sync.Mutex
	buf    []byte
	frozen bool
}

// NewMemDevice returns a zero-filled MemDevice of the given size.
func NewMemDevice(size int64) *MemDevice {
	return &MemDevice{buf: make([]byte, size)}
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off > int64(len(d.buf)) {
		return 0, fmt.Errorf("blockdevice: read offset %d out of range", off)
	}
	n := copy(p, d.buf[off:])
	if n < len(p) {
		return n, fmt.Errorf("blockdevice: short read at %d", off)
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return 0, fmt.Errorf("blockdevice: device frozen (simulated crash)")
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, fmt.Errorf("blockdevice: write range [%d,%d) out of range", off, off+int64(len(p)))
	}
	return copy(d.buf[off:], p), nil
}

func (d *MemDevice) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.buf))
}

func (d *MemDevice) Flush() error { return nil }

// Freeze makes all subsequent writes fail, simulating a crash at this
// point in time. Reads still succeed, so a test can reopen a fresh
// FsContext over a Snapshot of the same bytes and assert pre-crash
// state without the frozen device itself being reused.
func (d *MemDevice) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Snapshot returns a copy of the device's current bytes, suitable for
// handing to a fresh MemDevice via NewMemDeviceFromBytes to simulate
// remounting after a crash.
func (d *MemDevice) Snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.buf))
	copy(out, d.buf)
	return out
}

// NewMemDeviceFromBytes wraps an existing byte slice as a MemDevice,
// used to "remount" a snapshot taken before a simulated crash.
func NewMemDeviceFromBytes(b []byte) *MemDevice {
	return &MemDevice{buf: b}
}
