// Package transfer implements chunked file transfer over a connection that
// also carries chat traffic. A Session owns one transfer in one direction;
// a Manager routes inbound frames to the receive sessions of an endpoint.
package transfer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Mode is the direction of a session.
type Mode uint8

const (
	// ModeNone is the mode of a session that was never started.
	ModeNone Mode = iota
	// ModeSend reads a local file and emits frames.
	ModeSend
	// ModeReceive reassembles a file from offered chunks.
	ModeReceive
)

func (m Mode) String() string {
	switch m {
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	default:
		return "none"
	}
}

// State is the lifecycle position of a session. It only moves forward:
// Idle -> Active -> Complete | Failed.
type State uint8

const (
	StateIdle State = iota
	StateActive
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Conn is the outbound half of a connection.
type Conn interface {
	Send(f protocol.Frame) error
}

// Option configures a Session.
type Option func(*Session)

// WithObserver sets the event sink.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithExecutor runs the session worker on a shared executor.
func WithExecutor(e *Executor) Option {
	return func(s *Session) { s.exec = e }
}

// WithLogger sets the session logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithQueue replaces the receive queue, and with it the polling policy.
func WithQueue(q Queue) Option {
	return func(s *Session) { s.queue = q }
}

// withFinish registers a hook run once after the session turns terminal.
func withFinish(fn func(*Session)) Option {
	return func(s *Session) { s.onFinish = fn }
}

// Session owns a single transfer. Sessions are single-use: run several
// sessions to transfer several files at once.
type Session struct {
	mu        sync.Mutex
	id        string
	mode      Mode
	state     State
	manifest  protocol.Manifest
	processed uint64
	err       error

	cfg      Config
	log      *zap.SugaredLogger
	observer Observer
	exec     *Executor
	queue    Queue
	onFinish func(*Session)
	done     chan struct{}
}

// NewSession returns an idle session.
func NewSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:  cfg.Sanitize(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.observer == nil {
		s.observer = ObserverFuncs{}
	}
	if s.exec == nil {
		s.exec = NewExecutor(0)
	}
	return s
}

// ID returns the transfer id, empty until the session begins.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Mode returns the session direction.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Manifest returns the transfer manifest.
func (s *Session) Manifest() protocol.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

// BytesProcessed returns the bytes sent or written so far.
func (s *Session) BytesProcessed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Err returns the failure cause of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session is terminal.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// begin moves an idle session to active.
func (s *Session) begin(mode Mode, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateActive:
		s.log.Errorw("transfer", "error", ErrConcurrentUse, "transfer_id", s.id)
		return ErrConcurrentUse
	case s.state.Terminal():
		return ErrSessionFinished
	}

	s.mode = mode
	s.id = id
	s.state = StateActive
	if mode == ModeReceive && s.queue == nil {
		s.queue = NewBufferQueue()
	}
	return nil
}

// advance records n more processed bytes and returns the new total.
func (s *Session) advance(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed += n
	return s.processed
}

func (s *Session) progress(done uint64, elapsed time.Duration) {
	s.observer.Progress(Progress{
		TransferID: s.manifest.TransferID,
		FileName:   s.manifest.FileName,
		Mode:       s.mode,
		BytesDone:  done,
		BytesTotal: s.manifest.TotalBytes,
		Elapsed:    elapsed,
	})
}

// complete marks success and reports path to the observer.
func (s *Session) complete(path string) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateComplete
	m := s.manifest
	s.mu.Unlock()

	s.log.Infow("transfer", "status", "complete", "transfer_id", m.TransferID, "mode", s.mode, "bytes", m.TotalBytes)
	s.observer.Completed(path, m)
	s.finish()
}

// fail marks the session failed and reports err once.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = err
	id := s.id
	s.mu.Unlock()

	s.log.Warnw("transfer", "status", "failed", "transfer_id", id, "mode", s.mode, "error", err)
	s.observer.Failed(id, err)
	s.finish()
}

func (s *Session) finish() {
	close(s.done)
	if s.onFinish != nil {
		s.onFinish(s)
	}
}
