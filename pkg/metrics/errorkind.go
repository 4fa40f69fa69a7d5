package metrics

import (
	"errors"

	"github.com/cuemby/dbfst/pkg/ferr"
)

// errorKind maps an error returned by pkg/dbfs/pkg/txn to the label
// value RecordOp reports it under, falling back to "io_error" for
// anything that isn't one of the known sentinels (e.g. a wrapped
// *os.PathError from the underlying device).
func errorKind(err error) string {
	switch {
	case errors.Is(err, ferr.ErrNoEntry):
		return "no_entry"
	case errors.Is(err, ferr.ErrExist):
		return "exist"
	case errors.Is(err, ferr.ErrNotDir):
		return "not_dir"
	case errors.Is(err, ferr.ErrIsDir):
		return "is_dir"
	case errors.Is(err, ferr.ErrNotEmpty):
		return "not_empty"
	case errors.Is(err, ferr.ErrInvalid):
		return "invalid"
	case errors.Is(err, ferr.ErrNoSys):
		return "no_sys"
	case errors.Is(err, ferr.ErrIO):
		return "io_error"
	default:
		return "io_error"
	}
}
