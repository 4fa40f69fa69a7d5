// Package logmgr implements the append-only data log: the region of
// the backing device where file payload bytes are persisted before any
// index entry references them (SPEC_FULL.md §4.2). Grounded on
// fluxor's appendlog.fsStore (mutex-guarded append cursor, os.File
// ReadAt/WriteAt) and chubaofs's storage/extent.go (CRC-carrying
// extents).
package logmgr

import (
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/cuemby/dbfst/pkg/blockdevice"
)

// DefaultReserved is the default size of the WAL region that precedes
// the data log on the backing device. The KV store itself lives in a
// wholly separate dedicated file (bbolt only drives *os.File directly;
// see pkg/kvstore and pkg/dbfs.Mount), so this reservation is purely
// for the WAL frames pkg/wal.DeviceStorage carves out of the same
// device the data log uses.
const DefaultReserved int64 = 4 << 20 // 4 MiB

// Manager owns the data log's append cursor. AppendData is safe for
// concurrent callers; the cursor is advanced atomically under mu, the
// same way the reference stack guards shared counters
// (cuemby-warren/pkg/scheduler's mu-guarded fields).
type Manager struct {
	dev      blockdevice.Device
	reserved int64

	mu            sync.Mutex
	nextAppendPos int64
}

// New creates a Manager over dev, with the data log starting at
// reserved and the append cursor initialized to start (typically
// recovered from the superblock's DataCursor field, or reserved for a
// freshly formatted device).
func New(dev blockdevice.Device, reserved int64, start int64) (*Manager, error) {
	if reserved <= 0 {
		reserved = DefaultReserved
	}
	if start < reserved {
		start = reserved
	}
	if start > dev.Size() {
		return nil, fmt.Errorf("logmgr: start offset %d exceeds device size %d", start, dev.Size())
	}
	return &Manager{dev: dev, reserved: reserved, nextAppendPos: start}, nil
}

// Reserved returns the byte offset at which the data log region
// begins (the WAL region occupies [0, Reserved)).
func (m *Manager) Reserved() int64 { return m.reserved }

// Cursor returns the current append position, for persisting into the
// superblock's DataCursor field on sync.
func (m *Manager) Cursor() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextAppendPos
}

// AppendData writes payload at the current append position, advances
// the cursor, and returns the pre-advance physical offset along with
// the CRC-32 (polynomial 0xEDB88320, i.e. the standard IEEE table) of
// the payload. It does not flush the device — the transaction engine
// decides when the data-before-index flush barrier fires (SPEC_FULL.md
// §4.2), so the same Manager can back both the single-commit and
// multi-commit protocols without double-flushing.
func (m *Manager) AppendData(payload []byte) (physicalPtr int64, crc uint32, err error) {
	if len(payload) == 0 {
		return 0, 0, fmt.Errorf("logmgr: empty payload")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ptr := m.nextAppendPos
	if ptr+int64(len(payload)) > m.dev.Size() {
		return 0, 0, fmt.Errorf("logmgr: data log exhausted: need [%d,%d), device size %d", ptr, ptr+int64(len(payload)), m.dev.Size())
	}
	if _, err := m.dev.WriteAt(payload, ptr); err != nil {
		return 0, 0, fmt.Errorf("logmgr: append at %d: %w", ptr, err)
	}
	m.nextAppendPos = ptr + int64(len(payload))
	return ptr, crc32.ChecksumIEEE(payload), nil
}

// ReadData reads len(buf) bytes at the given absolute physical offset.
func (m *Manager) ReadData(ptr int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := m.dev.ReadAt(buf, ptr); err != nil {
		return fmt.Errorf("logmgr: read at %d: %w", ptr, err)
	}
	return nil
}

// ScanHighWaterMark reconstructs the append cursor by scanning the
// highest physical_ptr+len across the supplied extents, used as a
// mount-time fallback when the superblock's persisted DataCursor field
// is absent or predates this field (SPEC_FULL.md §4.2).
func ScanHighWaterMark(reserved int64, extentEnds []int64) int64 {
	max := reserved
	for _, end := range extentEnds {
		if end > max {
			max = end
		}
	}
	return max
}
