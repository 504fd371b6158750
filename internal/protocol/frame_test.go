package protocol

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCountFor(t *testing.T) {
	tests := []struct {
		total uint64
		size  uint32
		want  uint64
	}{
		{0, 4096, 0},
		{1, 4096, 1},
		{4096, 4096, 1},
		{4097, 4096, 2},
		{10000, 4096, 3},
		{8192, 4096, 2},
		{10, 0, 0},
		{math.MaxUint64, 4096, math.MaxUint64/4096 + 1},
		{math.MaxUint64, 1, math.MaxUint64},
		{math.MaxUint64 - 4095, 4096, (math.MaxUint64 - 4095) / 4096},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCountFor(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}

func TestManifestExpectedChunkLen(t *testing.T) {
	m := Manifest{TransferID: "t", FileName: "f", TotalBytes: 10000, ChunkSize: 4096, ChunkCount: 3}
	assert.Equal(t, uint64(4096), m.ExpectedChunkLen(0))
	assert.Equal(t, uint64(4096), m.ExpectedChunkLen(1))
	assert.Equal(t, uint64(1808), m.ExpectedChunkLen(2))

	even := Manifest{TransferID: "t", FileName: "f", TotalBytes: 8192, ChunkSize: 4096, ChunkCount: 2}
	assert.Equal(t, uint64(4096), even.ExpectedChunkLen(1))
}

func TestManifestValidate(t *testing.T) {
	good := Manifest{TransferID: "t", FileName: "f", TotalBytes: 10000, ChunkSize: 4096, ChunkCount: 3}
	require.NoError(t, good.Validate())

	bad := good
	bad.ChunkCount = 2
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFrame)

	bad = good
	bad.ChunkSize = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFrame)

	bad = good
	bad.TransferID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidFrame)
}

func TestManifestNearMaxSizeKeepsFullChunks(t *testing.T) {
	huge := Manifest{TransferID: "t", FileName: "f", TotalBytes: math.MaxUint64, ChunkSize: 4096}
	assert.ErrorIs(t, huge.Validate(), ErrInvalidFrame, "a zero chunk count must not validate")

	huge.ChunkCount = ChunkCountFor(huge.TotalBytes, huge.ChunkSize)
	require.NoError(t, huge.Validate())
	assert.Equal(t, uint64(4096), huge.ExpectedChunkLen(0))
	assert.Equal(t, uint64(4096), huge.ExpectedChunkLen(5))
	assert.Equal(t, uint64(4095), huge.ExpectedChunkLen(huge.ChunkCount-1))
}

func TestDecodeLegacyChatMessage(t *testing.T) {
	f, err := Decode([]byte(`{"content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeChat, f.Type)
	assert.Equal(t, "hello", f.Content)
	assert.Equal(t, Version, f.V)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Decode([]byte(`{"v":2,"type":"chat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte(`{"v":1,"type":"manifest"}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Decode([]byte(`{"v":1,"type":"chunk","chunk":{"index":0}}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Decode([]byte(`{"v":1,"type":"bogus"}`))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestChunkPayloadSurvivesEncoding(t *testing.T) {
	payload := []byte{0x00, 0xff, '\n', 0x10}
	data, err := Encode(NewChunkFrame(Chunk{TransferID: "abc", FileName: "a.bin", Index: 7, Payload: payload}))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, []byte{'\n'}), "encoded frames must stay on one line")

	f, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, f.Chunk)
	assert.Equal(t, payload, f.Chunk.Payload)
	assert.Equal(t, uint64(7), f.Chunk.Index)
	assert.Equal(t, "abc", f.TransferID())
	assert.True(t, f.IsTransfer())
}

func TestDecodeBatch(t *testing.T) {
	first, err := Encode(NewChat("one"))
	require.NoError(t, err)
	second, err := Encode(NewManifestFrame(Manifest{TransferID: "t", FileName: "f", TotalBytes: 1, ChunkSize: 4096, ChunkCount: 1}))
	require.NoError(t, err)

	batch := append(append(append([]byte{}, first...), '\n'), second...)
	frames, err := DecodeBatch(batch)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, TypeChat, frames[0].Type)
	assert.Equal(t, TypeManifest, frames[1].Type)

	frames, err = DecodeBatch(append(append([]byte{}, first...), []byte("\n{oops")...))
	assert.ErrorIs(t, err, ErrInvalidFrame)
	assert.Len(t, frames, 1)
}
