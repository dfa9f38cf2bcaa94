// Package blobstore abstracts access to immutable data blobs, used for
// out-of-core acquisition metadata that is fetched once and then cached in
// memory. Backends exist for memory (tests), the local file system and
// S3-compatible object stores (see the minio subpackage).
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is an abstraction over immutable named blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get reads the full content of a blob.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
