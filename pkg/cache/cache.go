// Package cache defines the content-addressed upload cache: a map from the
// digest of a completed upload to the last known location of a file with
// that content.
//
// The cache is the only engine state that outlives a single request. It is
// shared by every peer session, so implementations must be safe for
// concurrent use. Entries are not validated here; callers check that the
// referenced file still exists (and is still inside a mount) and Evict
// stale entries lazily.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("upload cache is closed")

// Entry records where content with a given digest was last stored.
type Entry struct {
	// Path is the canonical absolute path of the uploaded file.
	Path string `cbor:"path" json:"path"`

	// Size is the file size in bytes at store time. A file whose size no
	// longer matches has been modified and the entry is stale.
	Size int64 `cbor:"size" json:"size"`

	// ModTime is the file's modification time at store time. Content
	// rewritten in place at the same size only shows up here.
	ModTime time.Time `cbor:"mod_time" json:"mod_time"`

	// StoredAt is when the upload completed.
	StoredAt time.Time `cbor:"stored_at" json:"stored_at"`
}

// Cache maps content digests to entries.
//
// Digests are opaque lowercase hex strings; two uploads with identical
// content share one entry regardless of the filenames they were given.
type Cache interface {
	// Lookup returns the entry for digest. ok is false on a miss.
	Lookup(ctx context.Context, digest string) (entry Entry, ok bool, err error)

	// Put records entry under digest, replacing any previous entry.
	Put(ctx context.Context, digest string, entry Entry) error

	// Evict removes digest. Evicting a missing digest is not an error.
	Evict(ctx context.Context, digest string) error

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)

	// Close releases resources held by the cache.
	Close() error
}
