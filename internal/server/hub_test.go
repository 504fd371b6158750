package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

func TestChatIsRelayedToRoomExceptSender(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "")
	bob := env.connect(t, "lobby")
	carol := env.connect(t, "other")

	alice.sendRaw(t, `{"content":"hello lobby"}`)

	f := bob.expect(t)
	assert.Equal(t, protocol.TypeChat, f.Type)
	assert.Equal(t, "hello lobby", f.Content)
	assert.Equal(t, "lobby", f.Room)
	assert.NotEmpty(t, f.From)

	alice.expectSilence(t, 150*time.Millisecond)
	carol.expectSilence(t, 150*time.Millisecond)
}

func TestRoomsAreIsolated(t *testing.T) {
	env := newTestEnv(t)

	a1 := env.connect(t, "a")
	a2 := env.connect(t, "a")
	b1 := env.connect(t, "b")
	b2 := env.connect(t, "b")

	a1.sendFrame(t, protocol.NewChat("in a"))
	b1.sendFrame(t, protocol.NewChat("in b"))

	assert.Equal(t, "in a", a2.expect(t).Content)
	assert.Equal(t, "in b", b2.expect(t).Content)
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, env.hub.RoomCounts())
}

func TestTransferFramesBypassRateLimit(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	}))

	sender := env.connect(t, "files")
	receiver := env.connect(t, "files")

	m := protocol.Manifest{TransferID: "t1", FileName: "a.bin", TotalBytes: 10, ChunkSize: 1, ChunkCount: 10}
	sender.sendFrame(t, protocol.NewManifestFrame(m))
	for i := 0; i < 10; i++ {
		sender.sendFrame(t, protocol.NewChunkFrame(protocol.Chunk{
			TransferID: "t1", FileName: "a.bin", Index: uint64(i), Payload: []byte{byte(i)},
		}))
	}

	got := receiver.expect(t)
	require.Equal(t, protocol.TypeManifest, got.Type)
	assert.Equal(t, m.TransferID, got.Manifest.TransferID)
	for i := 0; i < 10; i++ {
		f := receiver.expect(t)
		require.Equal(t, protocol.TypeChunk, f.Type)
		assert.Equal(t, uint64(i), f.Chunk.Index)
		assert.Equal(t, []byte{byte(i)}, f.Chunk.Payload)
	}

	for i := 0; i < 5; i++ {
		sender.sendFrame(t, protocol.NewChat(fmt.Sprintf("chat %d", i)))
	}
	assert.Equal(t, "chat 0", receiver.expect(t).Content)
	assert.Equal(t, "chat 1", receiver.expect(t).Content)
	receiver.expectSilence(t, 200*time.Millisecond)
}

func TestClientsCannotSendNotices(t *testing.T) {
	env := newTestEnv(t)

	mallory := env.connect(t, "")
	bob := env.connect(t, "")

	mallory.sendFrame(t, protocol.NewNotice("fake server message"))
	mallory.sendFrame(t, protocol.NewChat("real"))

	f := bob.expect(t)
	assert.Equal(t, protocol.TypeChat, f.Type)
	assert.Equal(t, "real", f.Content)
}

func TestBroadcastGlobalReachesEveryRoom(t *testing.T) {
	env := newTestEnv(t)

	peers := []*peer{env.connect(t, "a"), env.connect(t, "b"), env.connect(t, "c")}

	report := env.hub.BroadcastGlobal(protocol.NewNotice("maintenance at noon"))
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Delivered)

	for _, p := range peers {
		f := p.expect(t)
		assert.Equal(t, protocol.TypeNotice, f.Type)
		assert.Equal(t, "maintenance at noon", f.Content)
		assert.Equal(t, "SERVER", f.From)
	}
}

func TestInvalidFramesAreSkipped(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "")
	bob := env.connect(t, "")

	alice.sendRaw(t, "not json at all")
	alice.sendRaw(t, `{"content":"still here"}`)

	assert.Equal(t, "still here", bob.expect(t).Content)
}

func TestBatchedInboundFrames(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "")
	bob := env.connect(t, "")

	alice.sendRaw(t, "{\"content\":\"one\"}\n{\"content\":\"two\"}")

	assert.Equal(t, "one", bob.expect(t).Content)
	assert.Equal(t, "two", bob.expect(t).Content)
}

// newOfflineClient returns a registered client without a connection or
// pumps, so its send buffer fills up.
func newOfflineClient(h *Hub, room string) *Client {
	c := NewClient(nil, h, "offline", room)
	h.add(c)
	return c
}

func TestFailedRecipientIsRemovedAndOthersStillReceive(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBuffer = 1
	console := NewConsole(nil)
	hub := NewHub(cfg, console, zap.NewNop().Sugar())

	sender := newOfflineClient(hub, "lobby")
	stuck := newOfflineClient(hub, "lobby")
	healthy := newOfflineClient(hub, "lobby")

	require.NoError(t, stuck.Send(protocol.NewChat("fills the buffer")))

	report := hub.BroadcastRoom(sender, protocol.NewChat("hello"))
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], errSendBufferFull)

	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, map[string]int{"lobby": 2}, hub.RoomCounts())
	assert.Len(t, healthy.send, 1)

	assert.ErrorIs(t, stuck.Send(protocol.NewChat("again")), errClientClosed)

	var warned bool
	for _, e := range console.Entries() {
		if e.Warning && e.Text == "unable to deliver to "+stuck.String() {
			warned = true
		}
	}
	assert.True(t, warned, "console shows the failed recipient")
}

func TestRemovingLastClientDropsRoom(t *testing.T) {
	hub := NewHub(NewConfig(), nil, nil)
	c := newOfflineClient(hub, "solo")
	require.Equal(t, map[string]int{"solo": 1}, hub.RoomCounts())

	require.True(t, hub.remove(c))
	assert.Empty(t, hub.RoomCounts())
	assert.False(t, hub.remove(c))

	report := hub.BroadcastRoom(c, protocol.NewChat("nobody"))
	assert.Zero(t, report.Attempted)
}

func TestTransferFramesWaitForBufferSpace(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBuffer = 1
	hub := NewHub(cfg, nil, nil)

	sender := newOfflineClient(hub, "files")
	slow := newOfflineClient(hub, "files")
	require.NoError(t, slow.Send(protocol.NewChat("fills the buffer")))

	drained := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		<-slow.send
		close(drained)
	}()

	chunk := protocol.NewChunkFrame(protocol.Chunk{TransferID: "t1", FileName: "a.bin", Payload: []byte("x")})
	report := hub.BroadcastRoom(sender, chunk)
	<-drained

	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, hub.ClientCount())
	assert.Len(t, slow.send, 1)
}

func TestTransferFrameGivesUpAfterWait(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBuffer = 1
	hub := NewHub(cfg, nil, nil)

	c := newOfflineClient(hub, "files")
	c.transferWait = 50 * time.Millisecond
	require.NoError(t, c.Send(protocol.NewChat("fills the buffer")))

	chunk := protocol.NewChunkFrame(protocol.Chunk{TransferID: "t1", FileName: "a.bin", Payload: []byte("x")})
	start := time.Now()
	assert.ErrorIs(t, c.Send(chunk), errSendBufferFull)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.ErrorIs(t, c.Send(protocol.NewChat("no wait")), errSendBufferFull)
}

func TestCloseSendInterruptsWaitingTransferFrame(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBuffer = 1
	hub := NewHub(cfg, nil, nil)

	c := newOfflineClient(hub, "files")
	require.NoError(t, c.Send(protocol.NewChat("fills the buffer")))

	result := make(chan error, 1)
	go func() {
		result <- c.Send(protocol.NewChunkFrame(protocol.Chunk{TransferID: "t1", FileName: "a.bin", Payload: []byte("x")}))
	}()

	time.Sleep(50 * time.Millisecond)
	require.True(t, c.closeSend())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errClientClosed)
	case <-time.After(time.Second):
		t.Fatal("waiting send was not interrupted")
	}
}
