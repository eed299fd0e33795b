// Package blobstore implements the shared blob store spec.md treats as an
// external collaborator: a passive, addressable-by-string-path holder of
// input splits, intermediate partitions, and final outputs. Two backends
// are provided: a local filesystem (the default, matching spec.md's "on-disk
// shared filesystem") and a Redis-backed store for workers and the
// scheduler that don't share a disk.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a read targets a path that does not exist.
var ErrNotFound = errors.New("blobstore: not found")

// Store is the minimal read/write/list/rename contract spec.md 6 requires
// of the blob store. Rename must be atomic within the store: readers of
// the destination path never observe a partial write (spec.md 4.3's
// tmp-then-rename commit discipline depends on this).
type Store interface {
	// Write stores data at path, overwriting any existing blob.
	Write(ctx context.Context, path string, data io.Reader) error

	// Read returns the contents at path, or ErrNotFound.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns all paths with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Rename atomically moves src to dst. If src does not exist,
	// ErrNotFound is returned and dst is left untouched.
	Rename(ctx context.Context, src, dst string) error

	// Delete removes a blob. Deleting a missing path is not an error
	// (CancelTask's tmp cleanup must be idempotent, spec.md 8).
	Delete(ctx context.Context, path string) error

	// ModTime returns the age-relevant modification time, used by the tmp
	// GC janitor (spec.md 6, tmp_gc_age). Returns ErrNotFound if missing.
	ModTime(ctx context.Context, path string) (int64, error)
}
