// Package wal implements the durable logical-operation log that gives
// multi-step filesystem operations (create, mkdir, unlink, rmdir,
// rename, symlink, link) atomicity across multiple KV commits
// (SPEC_FULL.md §4.6). Frame format and recovery scan are grounded on
// novusdb's storage/wal.go (length-prefixed records, stop-at-corrupt-
// tail scan) and ClusterCockpit's walCheckpoint.go (checkpoint/
// truncate flow).
package wal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
)

// maxFrameLen is the sanity bound spec §4.5 names: a length prefix
// above this is treated as corruption rather than a legitimate
// frame, stopping recovery at that point.
const maxFrameLen = 1 << 20 // 1 MiB

// Storage is the durability capability the WAL's backing bytes are
// written through — a dedicated inode, or (as DBFS-T supplies it) a
// reserved byte range of the same backing device image.
type Storage interface {
	// Write appends p at the current end of the storage.
	Write(p []byte) error
	// ReadAll returns every byte currently written.
	ReadAll() ([]byte, error)
	// Truncate resets the storage to empty.
	Truncate() error
	// Flush durably persists everything written so far.
	Flush() error
}

// Entry is a single logged logical operation.
type Entry struct {
	TxnID uint64
	Op    Op
}

// frameEnvelope is the JSON shape an Entry is serialized as: a tagged
// union over the concrete Op type, so Log.Recover can decode without
// knowing the op ahead of time.
type frameEnvelope struct {
	TxnID uint64          `json:"txn_id"`
	Type  string          `json:"type"`
	Op    json.RawMessage `json:"op"`
}

// Log is the in-memory WAL: entries awaiting checkpoint, plus the
// Storage capability their on-disk frames are written through. The
// entry list is guarded by mu; its append-flush-clear sequence is
// expected to run under the transaction engine's apply-lock writer
// side (SPEC_FULL.md §5), but Log itself still serializes its own
// state for safety.
type Log struct {
	storage Storage

	mu      sync.Mutex
	entries []Entry
}

// Open wraps storage as a Log and recovers any frames already written
// to it (e.g. from a prior process that crashed before checkpointing).
func Open(storage Storage) (*Log, []Entry, error) {
	l := &Log{storage: storage}
	entries, err := l.recover()
	if err != nil {
		return nil, nil, err
	}
	l.entries = entries
	return l, entries, nil
}

// Append serializes and writes a new frame for entry, without flushing.
func (l *Log) Append(e Entry) error {
	frame, err := encodeFrame(e)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.storage.Write(frame); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	l.entries = append(l.entries, e)
	return nil
}

// Flush is the durability barrier spec §4.4.2 step 3 requires between
// appending an operation's logical steps and applying them.
func (l *Log) Flush() error {
	if err := l.storage.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	return nil
}

// Entries returns a snapshot of the entries currently pending
// checkpoint, in WAL write order (FIFO across transactions, per spec
// §4.4.3).
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ClearTxn removes every entry belonging to txnID from the in-memory
// list (spec §4.4.2 step 6). It does not touch on-disk storage; call
// Checkpoint once every applied transaction has been cleared.
func (l *Log) ClearTxn(txnID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.TxnID != txnID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Checkpoint truncates the backing storage to empty once the
// in-memory entry list has drained, resetting the append cursor (spec
// §4.4.2 step 6, §4.5 "checkpoint() truncates backing storage to 0").
// It is a no-op while entries remain pending.
func (l *Log) Checkpoint() error {
	l.mu.Lock()
	empty := len(l.entries) == 0
	l.mu.Unlock()
	if !empty {
		return nil
	}
	if err := l.storage.Truncate(); err != nil {
		return fmt.Errorf("wal: checkpoint truncate: %w", err)
	}
	return nil
}

// recover scans storage frame-by-frame, decoding each payload into an
// Entry. A frame whose length prefix is zero or exceeds maxFrameLen,
// or whose payload fails to deserialize, stops recovery at that point
// — per spec §4.5, a partially-written last frame is safely treated as
// absent, because the operation it belongs to never returned success
// to its caller.
func (l *Log) recover() ([]Entry, error) {
	data, err := l.storage.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("wal: read storage: %w", err)
	}

	var entries []Entry
	off := 0
	for off+4 <= len(data) {
		size := binary.LittleEndian.Uint32(data[off : off+4])
		if size == 0 || size > maxFrameLen {
			break
		}
		start := off + 4
		end := start + int(size)
		if end > len(data) {
			break
		}
		e, err := decodeFrame(data[start:end])
		if err != nil {
			break
		}
		entries = append(entries, e)
		off = end
	}
	return entries, nil
}

func encodeFrame(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e.Op)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal op: %w", err)
	}
	env := frameEnvelope{TxnID: e.TxnID, Type: e.Op.Type(), Op: raw}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal envelope: %w", err)
	}
	var buf bytes.Buffer
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	buf.Write(sizeBuf[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeFrame(payload []byte) (Entry, error) {
	var env frameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Entry{}, err
	}
	op, err := decodeOp(env.Type, env.Op)
	if err != nil {
		return Entry{}, err
	}
	return Entry{TxnID: env.TxnID, Op: op}, nil
}
