/*
Package log provides structured logging for DBFS-T using zerolog.

The log package wraps zerolog to give JSON-structured logging with
component-specific child loggers, a configurable level, and a small
set of helper functions for the common cases (txn engine, WAL replay,
mount/recovery).

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("dbfs")                    │          │
	│  │  - WithOp("rename")                         │          │
	│  │  - WithIno(42)                              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  {"level":"info","component":"dbfs",        │          │
	│  │   "op":"mount","message":"replayed 3 WAL    │          │
	│  │   entries"}                                  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	mountLog := log.WithComponent("dbfs")
	mountLog.Info().Int("replayed", len(entries)).Msg("mount recovery complete")

	txnLog := log.WithOp("rename").With().Uint64("ino", srcIno).Logger()
	txnLog.Error().Err(err).Msg("rename apply failed")

# Integration Points

This package is used by:

  - pkg/dbfs: mount/recovery, WAL replay outcomes

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup.

Context Logger Pattern:
  - WithComponent/WithOp/WithIno return child loggers carrying fields,
    avoiding repetitive field specification at every call site.
*/
package log
