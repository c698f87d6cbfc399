package wal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/malbeclabs/writebuf/internal/objectstore"
)

// Archiver best-effort mirrors synced WAL frames to an objectstore.Store.
// Archival is strictly additional and never affects WriteAndSync's
// success or failure; WAL I/O errors are reported only for the local
// segment file.
type Archiver struct {
	store  objectstore.Store
	prefix string
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewArchiver returns an Archiver that writes each archived frame under
// prefix in store, keyed by a monotonically increasing sequence number.
func NewArchiver(store objectstore.Store, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{store: store, prefix: prefix, logger: logger}
}

func (a *Archiver) archive(ctx context.Context, frame []byte) {
	if ctx == nil {
		ctx = context.Background()
	}
	n := a.seq.Add(1)
	key := fmt.Sprintf("%s/frame-%012d.bin", a.prefix, n)
	if err := a.store.Put(ctx, key, frame); err != nil {
		a.logger.Warn("wal segment archival failed", "key", key, "error", err)
	}
}
