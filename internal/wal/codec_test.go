package wal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/writebuf/internal/partition"
)

func sampleBatch() Batch {
	return Batch{Entries: []partition.Entry{
		{
			PartitionKey: "2020-09-14T18",
			TableBatches: []partition.TableBatch{
				{
					Table: "cpu",
					Rows: []partition.Row{
						{Values: []partition.FieldValue{
							{Name: "time", Kind: partition.FieldTime, I64: 10},
							{Name: "region", Kind: partition.FieldTag, Str: "west"},
							{Name: "user", Kind: partition.FieldF64, F64: 23.2},
						}},
					},
				},
				{
					Table: "disk",
					Rows: []partition.Row{
						{Values: []partition.FieldValue{
							{Name: "time", Kind: partition.FieldTime, I64: 11},
							{Name: "bytes", Kind: partition.FieldI64, I64: 99},
							{Name: "ok", Kind: partition.FieldBool, Bool: true},
						}},
					},
				},
			},
		},
	}}
}

func TestEncodeDecodeBatch_RoundTrips(t *testing.T) {
	t.Parallel()

	batch := sampleBatch()
	payload := EncodeBatch(batch)

	got, err := DecodeBatch(payload)
	require.NoError(t, err)
	require.Equal(t, batch, got)
}

func TestDecodeBatch_FailsOnTruncatedPayload(t *testing.T) {
	t.Parallel()

	payload := EncodeBatch(sampleBatch())
	_, err := DecodeBatch(payload[:len(payload)-3])
	require.Error(t, err)
}

func TestEncodeDecodeFrame_DetectsCorruption(t *testing.T) {
	t.Parallel()

	payload := EncodeBatch(sampleBatch())
	frame := encodeFrame(frameKindBatch, payload)

	corrupt := append([]byte(nil), frame...)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, _, err := decodeFrame(bytes.NewReader(corrupt))
	require.Error(t, err)
}

func TestDecodeFrame_RejectsBadMagic(t *testing.T) {
	t.Parallel()

	payload := EncodeBatch(sampleBatch())
	frame := encodeFrame(frameKindBatch, payload)
	frame[0] ^= 0xFF

	_, _, err := decodeFrame(bytes.NewReader(frame))
	require.Error(t, err)
}
