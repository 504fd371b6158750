// Package server keeps an operator console: every notice is logged and the
// most recent ones stay in memory for the /console endpoint.
package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const consoleHistory = 256

// ConsoleEntry is one notice shown to the operator.
type ConsoleEntry struct {
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
	Warning bool      `json:"warning"`
}

// Console records operator notices.
type Console struct {
	mu      sync.Mutex
	entries []ConsoleEntry
	next    int
	full    bool
	log     *zap.SugaredLogger
}

// NewConsole returns a console that logs through log.
func NewConsole(log *zap.SugaredLogger) *Console {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Console{
		entries: make([]ConsoleEntry, consoleHistory),
		log:     log,
	}
}

// Notice records text; warnings are logged at warn level.
func (c *Console) Notice(text string, warning bool) {
	if warning {
		c.log.Warnw("console", "notice", text)
	} else {
		c.log.Infow("console", "notice", text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.next] = ConsoleEntry{Time: time.Now(), Text: text, Warning: warning}
	c.next = (c.next + 1) % len(c.entries)
	if c.next == 0 {
		c.full = true
	}
}

// Entries returns the retained notices, oldest first.
func (c *Console) Entries() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.full {
		return append(make([]ConsoleEntry, 0, c.next), c.entries[:c.next]...)
	}
	out := make([]ConsoleEntry, 0, len(c.entries))
	out = append(out, c.entries[c.next:]...)
	return append(out, c.entries[:c.next]...)
}
