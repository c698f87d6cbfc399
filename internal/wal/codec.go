// Package wal implements the write-ahead log: a binary frame format for
// write batches, an fsync-coupled writer, and a sequential
// reader/replayer. The frame encoding is a length-prefixed,
// CRC32-checked format that is fully self-describing: a reader needs
// no external schema to reconstruct a batch.
package wal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"

	"github.com/malbeclabs/writebuf/internal/partition"
	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// Batch is one WriteBufferBatch: the unit encoded into a single frame,
// produced by one write_lines call.
type Batch struct {
	Entries []partition.Entry
}

type frameKind byte

const (
	frameKindMetadata frameKind = 0
	frameKindBatch    frameKind = 1
)

const (
	frameMagic       uint32 = 0x57425731 // "WBW1"
	frameVersion     uint16 = 1
	frameHeaderBytes        = 4 + 2 + 1 + 4 + 4 // magic + version + kind + length + crc32
)

// EncodeBatch serializes a Batch to its wire payload (without frame
// header). The encoding is length-prefixed throughout: every string and
// every repeated section is preceded by a uvarint count, so decoding
// never needs an external schema.
func EncodeBatch(b Batch) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(b.Entries)))
	for _, e := range b.Entries {
		putString(&buf, e.PartitionKey)
		putUvarint(&buf, uint64(len(e.TableBatches)))
		for _, tb := range e.TableBatches {
			putString(&buf, tb.Table)
			putUvarint(&buf, uint64(len(tb.Rows)))
			for _, row := range tb.Rows {
				putUvarint(&buf, uint64(len(row.Values)))
				for _, fv := range row.Values {
					putString(&buf, fv.Name)
					buf.WriteByte(byte(fv.Kind))
					switch fv.Kind {
					case partition.FieldTag, partition.FieldString:
						putString(&buf, fv.Str)
					case partition.FieldI64, partition.FieldTime:
						putInt64(&buf, fv.I64)
					case partition.FieldF64:
						putFloat64(&buf, fv.F64)
					case partition.FieldBool:
						putBool(&buf, fv.Bool)
					}
				}
			}
		}
	}
	return buf.Bytes()
}

// DecodeBatch deserializes a Batch from a payload produced by EncodeBatch.
// Any short read or malformed field kind fails with ErrWalRecover.
func DecodeBatch(payload []byte) (Batch, error) {
	r := bytes.NewReader(payload)

	numEntries, err := binary.ReadUvarint(r)
	if err != nil {
		return Batch{}, wberrors.WalRecoverf("decode entry count: %v", err)
	}
	entries := make([]partition.Entry, 0, numEntries)

	for i := uint64(0); i < numEntries; i++ {
		key, err := getString(r)
		if err != nil {
			return Batch{}, wberrors.WalRecoverf("decode partition key: %v", err)
		}
		numTB, err := binary.ReadUvarint(r)
		if err != nil {
			return Batch{}, wberrors.WalRecoverf("decode table batch count: %v", err)
		}
		tbs := make([]partition.TableBatch, 0, numTB)

		for j := uint64(0); j < numTB; j++ {
			name, err := getString(r)
			if err != nil {
				return Batch{}, wberrors.WalRecoverf("decode table name: %v", err)
			}
			numRows, err := binary.ReadUvarint(r)
			if err != nil {
				return Batch{}, wberrors.WalRecoverf("decode row count: %v", err)
			}
			rows := make([]partition.Row, 0, numRows)

			for k := uint64(0); k < numRows; k++ {
				numVals, err := binary.ReadUvarint(r)
				if err != nil {
					return Batch{}, wberrors.WalRecoverf("decode field value count: %v", err)
				}
				vals := make([]partition.FieldValue, 0, numVals)

				for m := uint64(0); m < numVals; m++ {
					fvName, err := getString(r)
					if err != nil {
						return Batch{}, wberrors.WalRecoverf("decode field name: %v", err)
					}
					kindByte, err := r.ReadByte()
					if err != nil {
						return Batch{}, wberrors.WalRecoverf("decode field kind: %v", err)
					}
					fv := partition.FieldValue{Name: fvName, Kind: partition.FieldKind(kindByte)}
					switch fv.Kind {
					case partition.FieldTag, partition.FieldString:
						fv.Str, err = getString(r)
					case partition.FieldI64, partition.FieldTime:
						fv.I64, err = getInt64(r)
					case partition.FieldF64:
						fv.F64, err = getFloat64(r)
					case partition.FieldBool:
						fv.Bool, err = getBool(r)
					default:
						return Batch{}, wberrors.WalRecoverf("unrecognized field kind %d", kindByte)
					}
					if err != nil {
						return Batch{}, wberrors.WalRecoverf("decode field value: %v", err)
					}
					vals = append(vals, fv)
				}
				rows = append(rows, partition.Row{Values: vals})
			}
			tbs = append(tbs, partition.TableBatch{Table: name, Rows: rows})
		}
		entries = append(entries, partition.Entry{PartitionKey: key, TableBatches: tbs})
	}
	return Batch{Entries: entries}, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func putInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func getInt64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

func putFloat64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

func getFloat64(r *bytes.Reader) (float64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(tmp[:])), nil
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func getBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// encodeFrame wraps payload with the versioned, CRC32-checked frame
// header. kind distinguishes the leading metadata frame from batch
// frames.
func encodeFrame(kind frameKind, payload []byte) []byte {
	hdr := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(hdr[0:4], frameMagic)
	binary.BigEndian.PutUint16(hdr[4:6], frameVersion)
	hdr[6] = byte(kind)
	binary.BigEndian.PutUint32(hdr[7:11], uint32(len(payload)))
	binary.BigEndian.PutUint32(hdr[11:15], crc32.ChecksumIEEE(payload))

	out := make([]byte, 0, len(hdr)+len(payload))
	out = append(out, hdr...)
	out = append(out, payload...)
	return out
}

// decodeFrame reads one frame from r. A short read on the header or
// payload (io.EOF or io.ErrUnexpectedEOF) signals a missing or truncated
// tail frame; callers treat that as end-of-log, not a decode error. Any
// other failure (bad magic, unsupported version, CRC mismatch) is a
// genuine WalRecoverError: the frame's length bytes were fully present,
// so its content is corrupt, not merely incomplete.
func decodeFrame(r io.Reader) (frameKind, []byte, error) {
	hdr := make([]byte, frameHeaderBytes)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != frameMagic {
		return 0, nil, wberrors.WalRecoverf("bad frame magic %#x", magic)
	}
	version := binary.BigEndian.Uint16(hdr[4:6])
	if version != frameVersion {
		return 0, nil, wberrors.WalRecoverf("unsupported frame version %d", version)
	}
	kind := frameKind(hdr[6])
	length := binary.BigEndian.Uint32(hdr[7:11])
	wantCRC := binary.BigEndian.Uint32(hdr[11:15])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	if gotCRC := crc32.ChecksumIEEE(payload); gotCRC != wantCRC {
		return 0, nil, wberrors.WalRecoverf("frame crc mismatch: want %#x got %#x", wantCRC, gotCRC)
	}
	return kind, payload, nil
}
