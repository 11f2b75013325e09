package blobstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object as reported by List.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the byte-storage abstraction used by the commit coordinator.
// Keys are chosen by the caller.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List calls fn for every object whose key starts with prefix.
	List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error
}

// Observer receives per-operation outcomes. Implemented by the metrics package.
type Observer interface {
	ObjectStoreOp(op, result string)
	ObjectStoreRetry(op string)
}

const (
	OpPut    = "put"
	OpOpen   = "open"
	OpDelete = "delete"
	OpList   = "list"
)
