package dbfs

import "github.com/cuemby/dbfst/pkg/ferr"

// Re-exported sentinel errors (spec §6 "ErrorKind"), so callers only
// ever need to import pkg/dbfs to match on error.Is against the
// results of any FsContext method.
var (
	ErrNoEntry  = ferr.ErrNoEntry
	ErrExist    = ferr.ErrExist
	ErrNotDir   = ferr.ErrNotDir
	ErrIsDir    = ferr.ErrIsDir
	ErrNotEmpty = ferr.ErrNotEmpty
	ErrInvalid  = ferr.ErrInvalid
	ErrIO       = ferr.ErrIO
	ErrNoSys    = ferr.ErrNoSys
)
