// Package store provides the key-value persistence used by meetingd for the
// session history, the remote metadata cache and the pipe catalog.
package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeySessions = "sessions"
	KeyPipeURLs = "pipe_urls"

	// CachePrefix prefixes every remote metadata cache entry.
	CachePrefix = "cache_"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// KV is a byte-oriented key-value store. Get reports absence with ok=false
// rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate keys by prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// Entry describes a stored key for listing.
type Entry struct {
	Key       string
	Size      int
	UpdatedAt int64
}
