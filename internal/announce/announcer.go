// Package announce runs server announcements on a schedule. The schedule
// lives in memory while the announcer runs and is persisted on Stop.
package announce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/broadcast"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

// ErrNotRunning is returned when the schedule is edited while stopped.
var ErrNotRunning = errors.New("announcer is not running")

// Broadcaster delivers an announcement to every connected client.
type Broadcaster interface {
	BroadcastGlobal(f protocol.Frame) broadcast.Report
}

// Option configures an Announcer.
type Option func(*Announcer)

// WithTick sets the evaluation period. One tick is one minute of the
// schedule's counter.
func WithTick(d time.Duration) Option {
	return func(a *Announcer) {
		if d > 0 {
			a.tick = d
		}
	}
}

// WithClock replaces the wall clock used for daily messages.
func WithClock(now func() time.Time) Option {
	return func(a *Announcer) { a.now = now }
}

// Announcer owns the scheduled message collection. All edits and the
// evaluation pass hold one lock; broadcasts happen after it is released.
type Announcer struct {
	mu       sync.Mutex
	entries  []Message
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	store   Store
	bc      Broadcaster
	console broadcast.Console
	log     *zap.SugaredLogger
	tick    time.Duration
	now     func() time.Time
}

// New returns a stopped announcer.
func New(store Store, bc Broadcaster, console broadcast.Console, log *zap.SugaredLogger, opts ...Option) *Announcer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Announcer{
		store:   store,
		bc:      bc,
		console: console,
		log:     log,
		tick:    time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start replaces the in-memory collection with the stored one and starts
// the evaluation loop. A failed load leaves the collection empty; the loop
// still starts and the load error is returned. Starting a running
// announcer does nothing.
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	var loadErr error
	entries, err := a.store.Load(ctx)
	if err != nil {
		loadErr = &PersistenceError{Op: "load", Err: err}
		a.log.Errorw("announcer", "error", loadErr)
		a.notice("Unable to load scheduled messages", true)
		entries = nil
	}

	a.entries = entries
	a.running = true

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.loopDone = make(chan struct{})
	go a.run(loopCtx, a.loopDone)

	a.log.Infow("announcer", "status", "started", "scheduled", len(entries), "tick", a.tick)
	return loadErr
}

// Stop halts the loop, persists the collection and clears it. It returns
// after the save has finished.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel, done := a.cancel, a.loopDone
	a.mu.Unlock()

	cancel()
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loopDone != done {
		// A concurrent Stop already persisted.
		return nil
	}

	var saveErr error
	if err := a.store.Save(context.Background(), a.entries); err != nil {
		saveErr = &PersistenceError{Op: "save", Err: err}
		a.log.Errorw("announcer", "error", saveErr)
		a.notice("Unable to save scheduled messages", true)
	}

	a.log.Infow("announcer", "status", "stopped", "saved", len(a.entries))
	a.entries = nil
	a.running = false
	a.cancel = nil
	a.loopDone = nil
	return saveErr
}

// Running reports whether the loop is active.
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Add schedules m, assigning an id when it has none. One-time messages are
// broadcast right away and never enter the schedule.
func (a *Announcer) Add(m Message) (Message, error) {
	if err := m.Validate(); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return m, ErrNotRunning
	}
	if m.Mode != ModeOneTime {
		a.entries = append(a.entries, m)
	}
	a.mu.Unlock()

	if m.Mode == ModeOneTime {
		a.fire([]Message{m})
		return m, nil
	}
	a.log.Infow("announcer", "status", "scheduled", "id", m.ID, "mode", m.Mode)
	return m, nil
}

// Remove drops the message with id and reports whether it existed.
func (a *Announcer) Remove(id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return false, ErrNotRunning
	}
	for i, m := range a.entries {
		if m.ID == id {
			a.entries = append(a.entries[:i], a.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Clear drops every scheduled message and returns how many there were.
func (a *Announcer) Clear() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return 0, ErrNotRunning
	}
	n := len(a.entries)
	a.entries = nil
	return n, nil
}

// List returns a copy of the schedule.
func (a *Announcer) List() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *Announcer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	counter := 0
	a.fire(a.evaluate(counter, a.now()))

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counter = nextMinute(counter)
			a.fire(a.evaluate(counter, a.now()))
		}
	}
}

// evaluate collects the messages due at counter. One-time messages only
// reach the schedule from a stored file; they fire once and are dropped.
func (a *Announcer) evaluate(counter int, now time.Time) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var due []Message
	kept := a.entries[:0]
	for _, m := range a.entries {
		if m.Due(counter, now) {
			due = append(due, m)
			if m.Mode == ModeOneTime {
				continue
			}
		}
		kept = append(kept, m)
	}
	a.entries = kept
	return due
}

func (a *Announcer) fire(due []Message) {
	for _, m := range due {
		report := a.bc.BroadcastGlobal(protocol.NewNotice(m.Text))
		a.notice("Scheduled message broadcast from server", false)
		a.log.Infow("announcer", "status", "broadcast", "id", m.ID, "mode", m.Mode,
			"delivered", report.Delivered, "attempted", report.Attempted)
	}
}

func (a *Announcer) notice(text string, warning bool) {
	if a.console != nil {
		a.console.Notice(text, warning)
	}
}
