// Package dbfs assembles the blockdevice, kvstore, logmgr, wal, and
// txn layers into a single mountable filesystem context (SPEC_FULL.md
// §4.7). FsContext is the explicit, ambient-state-free handle every
// exported operation hangs off of — there is no package-level global
// holding "the" mounted filesystem, unlike the reference implementation's
// static database handle.
package dbfs

import (
	"fmt"
	"sync"

	"github.com/cuemby/dbfst/pkg/blockdevice"
	"github.com/cuemby/dbfst/pkg/clock"
	"github.com/cuemby/dbfst/pkg/inode"
	"github.com/cuemby/dbfst/pkg/kvstore"
	"github.com/cuemby/dbfst/pkg/log"
	"github.com/cuemby/dbfst/pkg/logmgr"
	"github.com/cuemby/dbfst/pkg/metrics"
	"github.com/cuemby/dbfst/pkg/txn"
	"github.com/cuemby/dbfst/pkg/types"
	"github.com/cuemby/dbfst/pkg/wal"
)

// MountOptions configures how Mount carves up the backing storage.
type MountOptions struct {
	// MetaPath is the dedicated file bbolt opens for the KV store. Bbolt
	// only drives an *os.File directly, so this is always a separate
	// file from dev — never a byte range carved out of it.
	MetaPath string

	// WALSize is the size in bytes of the WAL region reserved at the
	// front of dev, before the data log. Defaults to logmgr.DefaultReserved.
	WALSize int64

	// BlockSize is recorded in the superblock on a fresh Format.
	// Defaults to 4096.
	BlockSize uint32
}

func (o MountOptions) walSize() int64 {
	if o.WALSize <= 0 {
		return logmgr.DefaultReserved
	}
	return o.WALSize
}

func (o MountOptions) blockSize() uint32 {
	if o.BlockSize == 0 {
		return 4096
	}
	return o.BlockSize
}

// FsContext is a mounted filesystem: the owning handle for every
// component spec §9 asks to be reachable through an explicit context
// rather than ambient globals.
type FsContext struct {
	dev   blockdevice.Device
	store *kvstore.Store
	log   *logmgr.Manager
	journal *wal.Log
	engine  *txn.Engine
	clk     clock.Clock

	// cache is a read-through cache of attribute lookups, populated on
	// GetAttr/Lookup misses and invalidated on any mutation to that
	// inode (SPEC_FULL.md §4.5's "[NEW] inode cache"; eviction is
	// unbounded since correctness never depends on it).
	cacheMu sync.Mutex
	cache   map[uint64]types.Attr
}

// Mount opens (or formats) a filesystem over dev, using opts.MetaPath
// as bbolt's dedicated backing file. It implements the state machine
// of SPEC_FULL.md §4.7: read the superblock magic; format if absent,
// recover if present.
func Mount(dev blockdevice.Device, clk clock.Clock, opts MountOptions) (fc *FsContext, err error) {
	outcome := "failed"
	defer func() {
		metrics.MountsTotal.WithLabelValues(outcome).Inc()
	}()

	store, err := kvstore.Open(opts.MetaPath)
	if err != nil {
		return nil, fmt.Errorf("dbfs: open meta store: %w", err)
	}
	defer func() {
		if err != nil {
			store.Close()
		}
	}()

	walSize := opts.walSize()
	if walSize >= dev.Size() {
		return nil, fmt.Errorf("dbfs: wal size %d exceeds device size %d", walSize, dev.Size())
	}
	walStorage, err := wal.NewDeviceStorage(dev, 0, walSize)
	if err != nil {
		return nil, fmt.Errorf("dbfs: init wal storage: %w", err)
	}

	var formatted bool
	err = store.View(func(tx *kvstore.Tx) error {
		_, found, err := inode.GetSuperblock(tx)
		formatted = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dbfs: read superblock: %w", err)
	}

	if !formatted {
		fc, err = format(dev, store, walStorage, clk, walSize, opts.blockSize())
		if err != nil {
			return nil, err
		}
		outcome = "fresh"
		return fc, nil
	}

	fc, err = recoverExisting(dev, store, walStorage, clk, walSize)
	if err != nil {
		return nil, err
	}
	outcome = "recovered"
	return fc, nil
}

// format initializes a brand-new device: superblock, inodes/super_blk
// buckets, and the root directory (ino 1, "." and ".." both pointing
// at itself).
func format(dev blockdevice.Device, store *kvstore.Store, walStorage wal.Storage, clk clock.Clock, walSize int64, blockSize uint32) (*FsContext, error) {
	journal, entries, err := wal.Open(walStorage)
	if err != nil {
		return nil, fmt.Errorf("dbfs: open wal: %w", err)
	}
	if len(entries) != 0 {
		return nil, fmt.Errorf("dbfs: unformatted device carries a non-empty wal")
	}

	logMgr, err := logmgr.New(dev, walSize, walSize)
	if err != nil {
		return nil, fmt.Errorf("dbfs: init log manager: %w", err)
	}

	sec, nsec := clk.Now()
	now := types.Timespec{Sec: sec, Nsec: nsec}

	err = store.Update(func(tx *kvstore.Tx) error {
		root := &types.InodeMetadata{
			Ino:   types.RootIno,
			Mode:  types.NewMode(types.TypeDirectory, 0o755),
			Nlink: 2,
			Atime: now, Mtime: now, Ctime: now,
		}
		if err := inode.Put(tx, root); err != nil {
			return err
		}
		if err := inode.CreateDirBucket(tx, types.RootIno, types.RootIno); err != nil {
			return err
		}
		sb := &types.Superblock{
			Magic:         types.MagicNumber,
			BlockSize:     blockSize,
			DiskSize:      uint64(dev.Size()),
			ContinueInode: types.RootIno,
			DataCursor:    uint64(walSize),
		}
		return inode.PutSuperblock(tx, sb)
	})
	if err != nil {
		return nil, fmt.Errorf("dbfs: format: %w", err)
	}
	if err := dev.Flush(); err != nil {
		return nil, fmt.Errorf("dbfs: format flush: %w", err)
	}

	engine := txn.New(dev, store, logMgr, journal, clk, types.RootIno)
	log.Info("dbfs: formatted fresh device")

	return &FsContext{
		dev: dev, store: store, log: logMgr, journal: journal, engine: engine, clk: clk,
		cache: make(map[uint64]types.Attr),
	}, nil
}

// recoverExisting opens an already-formatted device, replays any
// pending WAL entries, and checkpoints before declaring the mount
// ready (SPEC_FULL.md §4.6 / §7: a corrupt trailing frame must not
// abort mount).
func recoverExisting(dev blockdevice.Device, store *kvstore.Store, walStorage wal.Storage, clk clock.Clock, walSize int64) (*FsContext, error) {
	journal, entries, err := wal.Open(walStorage)
	if err != nil {
		return nil, fmt.Errorf("dbfs: open wal: %w", err)
	}

	var sb *types.Superblock
	var maxExtentEnd uint64
	err = store.View(func(tx *kvstore.Tx) error {
		s, found, err := inode.GetSuperblock(tx)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("dbfs: superblock disappeared between format check and recover")
		}
		sb = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	start := int64(sb.DataCursor)
	if start == 0 {
		// Pre-existing device or corrupted field: fall back to scanning
		// the highest extent end recorded across every inode (spec §4.2).
		if err := store.View(func(tx *kvstore.Tx) error {
			return scanHighWaterMark(tx, &maxExtentEnd)
		}); err != nil {
			return nil, err
		}
		start = logmgr.ScanHighWaterMark(walSize, []int64{int64(maxExtentEnd)})
	}
	logMgr, err := logmgr.New(dev, walSize, start)
	if err != nil {
		return nil, fmt.Errorf("dbfs: init log manager: %w", err)
	}

	logger := log.WithComponent("wal_replay")
	if len(entries) > 0 {
		replayed := 0
		for _, e := range entries {
			// Each entry replays in its own commit: a corrupt or
			// no-longer-applicable entry must not roll back entries that
			// already replayed successfully, and must not abort the mount
			// itself (spec §7: recovery lands in Ready_with_partial, not
			// a failed mount, on one bad entry).
			err := store.Update(func(tx *kvstore.Tx) error {
				return e.Op.Apply(tx)
			})
			if err != nil {
				logger.Error().Err(err).Uint64("txn_id", e.TxnID).Str("op", e.Op.Type()).
					Msg("skipping wal entry that failed to replay")
				continue
			}
			replayed++
			metrics.WALEntriesReplayedTotal.Inc()
		}
		// Skipped entries are cleared along with replayed ones, so the
		// checkpoint below can truncate the WAL.
		for _, e := range entries {
			journal.ClearTxn(e.TxnID)
		}
		if err := journal.Checkpoint(); err != nil {
			logger.Warn().Err(err).Msg("wal checkpoint after replay failed; continuing mount")
		} else {
			metrics.WALCheckpointsTotal.Inc()
		}
		logger.Info().Int("entries", len(entries)).Int("replayed", replayed).Msg("replayed pending wal entries")
	}

	var startInode uint64
	if err := store.View(func(tx *kvstore.Tx) error {
		startInode = sb.ContinueInode
		if m := inode.MaxInode(tx); m > startInode {
			startInode = m
		}
		return nil
	}); err != nil {
		return nil, err
	}

	engine := txn.New(dev, store, logMgr, journal, clk, startInode)
	log.Info("dbfs: recovered existing device")

	return &FsContext{
		dev: dev, store: store, log: logMgr, journal: journal, engine: engine, clk: clk,
		cache: make(map[uint64]types.Attr),
	}, nil
}

// Unmount flushes the device and closes the KV store's backing file.
// Callers should call SyncFS first if they want the superblock's
// high-water marks persisted.
func (fc *FsContext) Unmount() error {
	if err := fc.dev.Flush(); err != nil {
		return err
	}
	return fc.store.Close()
}

// SyncFS persists the inode high-water mark and data-log cursor into
// the superblock (spec §4.4.4's "next_free on sync").
func (fc *FsContext) SyncFS() error {
	err := fc.store.Update(func(tx *kvstore.Tx) error {
		sb, found, err := inode.GetSuperblock(tx)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("dbfs: sync: superblock missing")
		}
		sb.ContinueInode = fc.engine.NextInode()
		sb.DataCursor = uint64(fc.log.Cursor())
		return inode.PutSuperblock(tx, sb)
	})
	if err != nil {
		return err
	}
	return fc.dev.Flush()
}

// RootIno returns the fixed root inode number.
func (fc *FsContext) RootIno() uint64 { return types.RootIno }

func (fc *FsContext) invalidate(inos ...uint64) {
	fc.cacheMu.Lock()
	defer fc.cacheMu.Unlock()
	for _, ino := range inos {
		delete(fc.cache, ino)
	}
}
