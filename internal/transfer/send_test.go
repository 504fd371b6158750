package transfer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

func TestSendTenThousandBytes(t *testing.T) {
	path, data := writeSource(t, 10000)
	conn := &recordingConn{}
	events := &eventLog{}

	s := NewSession(testConfig(t), WithObserver(events.observer()))
	id, err := s.BeginSend(path, conn)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	waitDone(t, s)

	require.Equal(t, StateComplete, s.State())
	frames := conn.Frames()
	require.Len(t, frames, 4)

	require.Equal(t, protocol.TypeManifest, frames[0].Type)
	m := *frames[0].Manifest
	assert.Equal(t, id, m.TransferID)
	assert.Equal(t, "source.bin", m.FileName)
	assert.Equal(t, uint64(10000), m.TotalBytes)
	assert.Equal(t, uint32(4096), m.ChunkSize)
	assert.Equal(t, uint64(3), m.ChunkCount)

	assert.Equal(t, []int{4096, 4096, 1808}, chunkLengths(frames))

	var joined []byte
	for i, f := range frames[1:] {
		assert.Equal(t, uint64(i), f.Chunk.Index)
		assert.Equal(t, id, f.Chunk.TransferID)
		joined = append(joined, f.Chunk.Payload...)
	}
	assert.Equal(t, data, joined)

	progress, completed, failed := events.counts()
	assert.Equal(t, 3, progress)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, uint64(10000), s.BytesProcessed())
	assert.Equal(t, uint64(10000), events.progress[2].BytesDone)
	assert.Equal(t, uint64(10000), events.progress[2].BytesTotal)
}

func TestSendChunkCountMatchesSize(t *testing.T) {
	for _, size := range []int{0, 1, 4095, 4096, 4097, 12288, 50001} {
		path, _ := writeSource(t, size)
		conn := &recordingConn{}
		s := NewSession(testConfig(t))
		_, err := s.BeginSend(path, conn)
		require.NoError(t, err)
		waitDone(t, s)

		lens := chunkLengths(conn.Frames())
		assert.Len(t, lens, int(protocol.ChunkCountFor(uint64(size), DefaultChunkSize)), "size %d", size)

		total := 0
		for i, n := range lens {
			total += n
			if i < len(lens)-1 {
				assert.Equal(t, int(DefaultChunkSize), n)
			}
		}
		assert.Equal(t, size, total, "size %d", size)
	}
}

func TestSendRejectsConcurrentUse(t *testing.T) {
	path, _ := writeSource(t, 9000)
	conn := &recordingConn{gate: make(chan struct{})}

	s := NewSession(testConfig(t))
	_, err := s.BeginSend(path, conn)
	require.NoError(t, err)
	assert.Equal(t, StateActive, s.State())

	_, err = s.BeginSend(path, conn)
	assert.ErrorIs(t, err, ErrConcurrentUse)

	close(conn.gate)
	waitDone(t, s)
	assert.Equal(t, StateComplete, s.State())

	_, err = s.BeginSend(path, conn)
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestSendFailsOnConnectionError(t *testing.T) {
	path, _ := writeSource(t, 20000)
	conn := &recordingConn{failAt: 2}
	events := &eventLog{}

	s := NewSession(testConfig(t), WithObserver(events.observer()))
	_, err := s.BeginSend(path, conn)
	require.NoError(t, err)
	waitDone(t, s)

	assert.Equal(t, StateFailed, s.State())
	var ioErr *IOError
	require.True(t, errors.As(s.Err(), &ioErr))
	assert.Equal(t, "send chunk", ioErr.Op)
	assert.ErrorIs(t, s.Err(), errConnClosed)

	progress, completed, failed := events.counts()
	assert.Equal(t, 1, progress)
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, failed)
	assert.Len(t, conn.Frames(), 2)
}

func TestSendMissingFile(t *testing.T) {
	events := &eventLog{}
	s := NewSession(testConfig(t), WithObserver(events.observer()))

	_, err := s.BeginSend(filepath.Join(t.TempDir(), "nope.bin"), &recordingConn{})
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "open", ioErr.Op)
	assert.Equal(t, StateFailed, s.State())

	_, _, failed := events.counts()
	assert.Equal(t, 1, failed)
}
