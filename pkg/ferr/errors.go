// Package ferr defines the DBFS-T error taxonomy (spec §7) as a small
// set of sentinel errors any layer can wrap with fmt.Errorf("...: %w",
// ...) and any caller can test with errors.Is. It exists as its own
// package (rather than living in pkg/dbfs) so pkg/txn can return these
// errors without importing the package that imports pkg/txn.
package ferr

import "errors"

// Sentinel errors matching spec §7's taxonomy.
var (
	ErrNoEntry  = errors.New("no such entry")
	ErrExist    = errors.New("entry already exists")
	ErrNotDir   = errors.New("not a directory")
	ErrIsDir    = errors.New("is a directory")
	ErrNotEmpty = errors.New("directory not empty")
	ErrInvalid  = errors.New("invalid argument")
	ErrIO       = errors.New("i/o error")
	ErrNoSys    = errors.New("operation not supported")
)
