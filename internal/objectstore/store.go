// Package objectstore provides a pluggable object-store abstraction
// (S3/disk/memory) that the write buffer itself never requires for
// correctness; internal/wal.Archiver uses it to optionally mirror
// each synced WAL frame off-box.
package objectstore

import "context"

// Store is the minimal interface the WAL archiver needs: put, get,
// delete, and list by key prefix.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
