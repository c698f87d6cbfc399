package wal

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/malbeclabs/writebuf/internal/partition"
	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// ErrNoSegment is returned by OpenReader when the database directory has
// no WAL segment yet — a fresh database, not a failure.
var ErrNoSegment = errors.New("wal: no segment file")

// Reader sequentially iterates the frames of one WAL segment.
type Reader struct {
	file *os.File
}

// OpenReader opens the segment file in dir for reading.
func OpenReader(dir string) (*Reader, error) {
	path := filepath.Join(dir, segmentFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSegment
		}
		return nil, wberrors.WalIO("open", err)
	}
	return &Reader{file: f}, nil
}

// Close closes the underlying segment file.
func (r *Reader) Close() error { return r.file.Close() }

// Batches reads every batch frame in the segment, in order, skipping the
// leading metadata frame. A truncated or absent tail frame stops
// iteration without error, since a writer crash between the length
// prefix and a synced payload is expected and recoverable; a
// fully-present-but-corrupt frame (bad magic, version, or checksum)
// fails with ErrWalRecover instead.
func (r *Reader) Batches() ([]Batch, error) {
	var batches []Batch
	sawMetadata := false

	for {
		kind, payload, err := decodeFrame(r.file)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}

		if !sawMetadata {
			sawMetadata = true
			if kind != frameKindMetadata {
				return nil, wberrors.WalRecover("wal segment missing leading metadata frame")
			}
			continue
		}

		if kind != frameKindBatch {
			return nil, wberrors.WalRecoverf("unexpected frame kind %d after metadata", kind)
		}

		batch, err := DecodeBatch(payload)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// Stats summarizes a WAL replay: total rows applied and the distinct
// table names observed, for a restore-complete log line.
type Stats struct {
	RowCount int
	Tables   map[string]struct{}
}

// RestorePartitionsFromWAL replays every batch in dir's WAL segment,
// reconstructing partitions in the order their keys were first seen. An
// absent segment (fresh database) yields an empty result, not an error.
func RestorePartitionsFromWAL(dir string) ([]*partition.Partition, Stats, error) {
	reader, err := OpenReader(dir)
	if err != nil {
		if errors.Is(err, ErrNoSegment) {
			return nil, Stats{Tables: make(map[string]struct{})}, nil
		}
		return nil, Stats{}, err
	}
	defer reader.Close()

	batches, err := reader.Batches()
	if err != nil {
		return nil, Stats{}, err
	}
	return RestorePartitions(batches)
}

// RestorePartitions replays a batch sequence into fresh partitions.
// Replay is deterministic: the same sequence always yields the same
// dictionary id assignments, column order and null patterns, and
// partition order as the writes that produced it.
func RestorePartitions(batches []Batch) ([]*partition.Partition, Stats, error) {
	stats := Stats{Tables: make(map[string]struct{})}

	var partitions []*partition.Partition
	byKey := make(map[string]*partition.Partition)

	for _, batch := range batches {
		for _, entry := range batch.Entries {
			p, ok := byKey[entry.PartitionKey]
			if !ok {
				p = partition.New(entry.PartitionKey)
				byKey[entry.PartitionKey] = p
				partitions = append(partitions, p)
			}
			if err := p.WriteEntry(entry); err != nil {
				return nil, Stats{}, err
			}
			for _, tb := range entry.TableBatches {
				stats.Tables[tb.Table] = struct{}{}
				stats.RowCount += len(tb.Rows)
			}
		}
	}

	return partitions, stats, nil
}
