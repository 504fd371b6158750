package transfer

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Manager tracks the in-flight sessions of one endpoint and keeps at most
// one session per transfer id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	exec     *Executor
	observer Observer
	log      *zap.SugaredLogger
}

// NewManager returns a manager whose sessions share one executor sized by
// cfg.MaxConcurrent.
func NewManager(cfg Config, observer Observer, log *zap.SugaredLogger) *Manager {
	cfg = cfg.Sanitize()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		exec:     NewExecutor(cfg.MaxConcurrent),
		observer: observer,
		log:      log,
	}
}

func (m *Manager) newSession() *Session {
	return NewSession(m.cfg,
		WithObserver(m.observer),
		WithExecutor(m.exec),
		WithLogger(m.log),
		withFinish(m.release),
	)
}

func (m *Manager) release(s *Session) {
	id := s.ID()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
}

// Send starts a send session for path over conn.
func (m *Manager) Send(path string, conn Conn) (*Session, error) {
	s := m.newSession()
	id, err := s.BeginSend(path, conn)
	if err != nil {
		return s, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-s.Done():
	default:
		m.sessions[id] = s
	}
	return s, nil
}

// HandleFrame routes a manifest or chunk to the matching receive session.
// Other frame types are ignored.
func (m *Manager) HandleFrame(f protocol.Frame) error {
	switch f.Type {
	case protocol.TypeManifest:
		if f.Manifest == nil {
			return fmt.Errorf("%w: missing manifest", ErrInvalidManifest)
		}
		_, err := m.Receive(*f.Manifest)
		return err
	case protocol.TypeChunk:
		if f.Chunk == nil {
			return ErrUnknownTransfer
		}
		return m.Offer(*f.Chunk)
	}
	return nil
}

// Receive starts a receive session for manifest.
func (m *Manager) Receive(manifest protocol.Manifest) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[manifest.TransferID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransfer, manifest.TransferID)
	}
	s := m.newSession()
	m.sessions[manifest.TransferID] = s
	m.mu.Unlock()

	if _, err := s.BeginReceive(manifest); err != nil {
		return s, err
	}
	return s, nil
}

// Offer hands a chunk to its receive session.
func (m *Manager) Offer(c protocol.Chunk) error {
	m.mu.Lock()
	s, ok := m.sessions[c.TransferID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, c.TransferID)
	}
	return s.Offer(c)
}

// Session looks up an in-flight session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Active returns the number of in-flight sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown waits for in-flight sessions to finish.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.log.Infow("shutdown", "status", "waiting for transfers", "active", m.Active())
	return m.exec.Shutdown(timeout)
}
