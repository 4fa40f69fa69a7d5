/*
Package types defines the on-disk and in-memory data structures shared
across DBFS-T's components.

It holds the superblock, inode, extent, directory-entry, and attribute
records described by the filesystem's data model, plus the small
FileType/Mode bit-packing helpers every other package builds on. None
of these types know how to read or write themselves — pkg/inode and
pkg/kvstore own serialization and bucket layout; pkg/types only defines
the shapes.
*/
package types
