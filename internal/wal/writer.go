package wal

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/malbeclabs/writebuf/internal/wberrors"
)

const segmentFileName = "segment-0.wal"

// Writer owns the WAL's single append-only segment file. A background
// goroutine serializes every WriteAndSync call through reqCh so that
// concurrent callers are strictly ordered: the call returns only once
// bytes are written and fsynced.
type Writer struct {
	logger   *slog.Logger
	file     *os.File
	archiver *Archiver
	reqCh    chan writeRequest
	doneCh   chan struct{}
}

type writeRequest struct {
	ctx     context.Context
	payload []byte
	result  chan error
}

// Open creates (or appends to) the WAL segment in dir and writes a
// leading metadata frame if the segment is new. The returned Writer's
// background goroutine must be stopped with Close.
func Open(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wberrors.WalIO("mkdir", err)
	}

	path := filepath.Join(dir, segmentFileName)
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, wberrors.WalIO("open", err)
	}

	if fresh {
		meta := encodeFrame(frameKindMetadata, encodeMetadata(time.Now()))
		if _, err := f.Write(meta); err != nil {
			f.Close()
			return nil, wberrors.WalIO("write metadata frame", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, wberrors.WalIO("sync metadata frame", err)
		}
	}

	w := &Writer{
		logger: logger,
		file:   f,
		reqCh:  make(chan writeRequest),
		doneCh: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// SetArchiver attaches an optional best-effort archiver that uploads
// each frame once it is synced. Archival
// failures are logged and never affect WriteAndSync's result.
func (w *Writer) SetArchiver(a *Archiver) { w.archiver = a }

func (w *Writer) run() {
	defer close(w.doneCh)
	for req := range w.reqCh {
		frame := encodeFrame(frameKindBatch, req.payload)
		_, err := w.file.Write(frame)
		if err == nil {
			err = w.file.Sync()
		}
		if err != nil {
			w.logger.Error("wal write_and_sync failed", "bytes", len(frame), "error", err)
			req.result <- wberrors.WalIO("write_and_sync", err)
			continue
		}
		w.logger.Debug("wal frame synced", "bytes", len(frame))
		if w.archiver != nil {
			w.archiver.archive(req.ctx, frame)
		}
		req.result <- nil
	}
}

// WriteAndSync encodes batch and durably appends it to the WAL segment,
// returning only after the write and an fsync-equivalent flush have been
// acknowledged. Concurrent callers are serialized by the background
// goroutine; acknowledgement order matches call-return order.
func (w *Writer) WriteAndSync(ctx context.Context, batch Batch) error {
	payload := EncodeBatch(batch)
	result := make(chan error, 1)

	select {
	case w.reqCh <- writeRequest{ctx: ctx, payload: payload, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the background goroutine and closes the segment file. No
// further WriteAndSync calls may be made afterward.
func (w *Writer) Close() error {
	close(w.reqCh)
	<-w.doneCh
	if err := w.file.Close(); err != nil {
		return wberrors.WalIO("close", err)
	}
	return nil
}

func encodeMetadata(createdAt time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(createdAt.UnixNano()))
	return buf[:]
}
