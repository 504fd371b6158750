package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/announce"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

type testEnv struct {
	srv       *httptest.Server
	server    *Server
	hub       *Hub
	console   *Console
	announcer *announce.Announcer
	cfg       *Config
	origin    string
}

type envSetup struct {
	cfg   *Config
	store announce.Store
	tick  time.Duration
}

type envOption func(*envSetup)

func withConfig(fn func(*Config)) envOption {
	return func(s *envSetup) { fn(s.cfg) }
}

// withSchedule runs a started announcer backed by store.
func withSchedule(store announce.Store, tick time.Duration) envOption {
	return func(s *envSetup) {
		s.store = store
		s.tick = tick
	}
}

// newTestEnv starts a hub and an httptest server whose own origin is
// allowed unless an option says otherwise.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()

	setup := &envSetup{cfg: NewConfig()}
	setup.cfg.AllowedOrigins = []string{origin}
	for _, opt := range opts {
		opt(setup)
	}
	cfg := setup.cfg
	cfg.Sanitize()

	log := zap.NewNop().Sugar()
	console := NewConsole(log)
	hub := NewHub(cfg, console, log)
	go hub.Run()

	var announcer *announce.Announcer
	if setup.store != nil {
		announcer = announce.New(setup.store, hub, console, log, announce.WithTick(setup.tick))
		require.NoError(t, announcer.Start(context.Background()))
	}

	s := New(cfg, hub, announcer, console, log)
	ts.Config.Handler = s.Routes()
	ts.Start()

	t.Cleanup(func() {
		ts.Close()
		if announcer != nil {
			_ = announcer.Stop()
		}
		_ = hub.Shutdown(2 * time.Second)
	})

	return &testEnv{srv: ts, server: s, hub: hub, console: console, announcer: announcer, cfg: cfg, origin: origin}
}

func (e *testEnv) wsURL(room string) string {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	if room != "" {
		u += "?room=" + room
	}
	return u
}

func (e *testEnv) dialOrigin(room, origin string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(e.wsURL(room), header)
}

// connect dials room and waits until the hub has registered the client.
func (e *testEnv) connect(t *testing.T, room string) *peer {
	t.Helper()

	before := e.hub.ClientCount()
	conn, resp, err := e.dialOrigin(room, e.origin)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.hub.ClientCount() > before }, 2*time.Second, 5*time.Millisecond)
	return &peer{conn: conn}
}

// peer reads frames from one connection, splitting coalesced messages.
type peer struct {
	conn    *websocket.Conn
	pending []protocol.Frame
}

func (p *peer) sendRaw(t *testing.T, data string) {
	t.Helper()
	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (p *peer) sendFrame(t *testing.T, f protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(f)
	require.NoError(t, err)
	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, data))
}

func (p *peer) next(timeout time.Duration) (protocol.Frame, error) {
	if len(p.pending) == 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return protocol.Frame{}, err
		}
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return protocol.Frame{}, err
		}
		frames, err := protocol.DecodeBatch(data)
		if err != nil {
			return protocol.Frame{}, err
		}
		p.pending = frames
	}
	f := p.pending[0]
	p.pending = p.pending[1:]
	return f, nil
}

func (p *peer) expect(t *testing.T) protocol.Frame {
	t.Helper()
	f, err := p.next(2 * time.Second)
	require.NoError(t, err)
	return f
}

// expectSilence fails if a frame arrives within d. The connection is not
// usable for reads afterwards when the deadline fires.
func (p *peer) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	f, err := p.next(d)
	require.Error(t, err, "unexpected frame %+v", f)
}
