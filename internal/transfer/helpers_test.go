package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

var errConnClosed = errors.New("connection closed")

// recordingConn captures frames and optionally fails once failAt frames were sent.
type recordingConn struct {
	mu     sync.Mutex
	frames []protocol.Frame
	failAt int
	gate   chan struct{}
}

func (c *recordingConn) Send(f protocol.Frame) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.frames) >= c.failAt {
		return errConnClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.frames...)
}

// eventLog collects observer callbacks.
type eventLog struct {
	mu        sync.Mutex
	progress  []Progress
	completed []string
	failed    []error
}

func (e *eventLog) observer() Observer {
	return ObserverFuncs{
		OnProgress: func(p Progress) {
			e.mu.Lock()
			e.progress = append(e.progress, p)
			e.mu.Unlock()
		},
		OnCompleted: func(path string, _ protocol.Manifest) {
			e.mu.Lock()
			e.completed = append(e.completed, path)
			e.mu.Unlock()
		},
		OnFailed: func(_ string, err error) {
			e.mu.Lock()
			e.failed = append(e.failed, err)
			e.mu.Unlock()
		},
	}
}

func (e *eventLog) counts() (int, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.progress), len(e.completed), len(e.failed)
}

func (e *eventLog) lastFailure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.failed) == 0 {
		return nil
	}
	return e.failed[len(e.failed)-1]
}

func writeSource(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ChunkSize:    DefaultChunkSize,
		PollInterval: 5 * time.Millisecond,
		IdleLimit:    20,
		DownloadDir:  t.TempDir(),
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish, state %s", s.ID(), s.State())
	}
}

func chunkLengths(frames []protocol.Frame) []int {
	var lens []int
	for _, f := range frames {
		if f.Type == protocol.TypeChunk {
			lens = append(lens, len(f.Chunk.Payload))
		}
	}
	return lens
}
