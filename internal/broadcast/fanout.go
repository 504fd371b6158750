// Package broadcast delivers one frame to many recipients. A failed
// recipient is reported and skipped; the rest still receive the frame.
package broadcast

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Recipient is one connected peer.
type Recipient interface {
	Send(f protocol.Frame) error
	String() string
}

// Console is the operator console collaborator.
type Console interface {
	Notice(text string, warning bool)
}

// DeliveryError records a recipient that could not be reached.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("unable to deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Report summarizes one delivery pass.
type Report struct {
	Attempted int
	Delivered int
	Failures  []*DeliveryError
	// Failed holds the recipients behind Failures, in the same order.
	Failed []Recipient
}

// Fanout serializes delivery passes: one Broadcast runs at a time per
// instance, so two broadcasts never interleave writes to a recipient.
// Separate instances run independently.
type Fanout struct {
	mu            sync.Mutex
	name          string
	console       Console
	log           *zap.SugaredLogger
	logDeliveries bool
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithDeliveryLog logs a debug line for every completed pass.
func WithDeliveryLog(enabled bool) Option {
	return func(f *Fanout) { f.logDeliveries = enabled }
}

// New returns a fan-out instance. name identifies it in logs (a room name
// or "global").
func New(name string, console Console, log *zap.SugaredLogger, opts ...Option) *Fanout {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	f := &Fanout{
		name:    name,
		console: console,
		log:     log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the instance name.
func (f *Fanout) Name() string {
	return f.name
}

// Broadcast sends item to every recipient in the snapshot.
func (f *Fanout) Broadcast(item protocol.Frame, recipients []Recipient) Report {
	f.mu.Lock()
	defer f.mu.Unlock()

	report := Report{Attempted: len(recipients)}
	for _, r := range recipients {
		if err := f.deliver(r, item); err != nil {
			derr := &DeliveryError{Recipient: r.String(), Err: err}
			report.Failures = append(report.Failures, derr)
			report.Failed = append(report.Failed, r)

			f.log.Warnw("broadcast", "error", "delivery failed", "fanout", f.name,
				"recipient", derr.Recipient, "type", item.Type, "cause", err)
			if f.console != nil {
				f.console.Notice("unable to deliver to "+derr.Recipient, true)
			}
			continue
		}
		report.Delivered++
	}

	if f.logDeliveries {
		f.log.Debugw("broadcast", "fanout", f.name, "type", item.Type,
			"attempted", report.Attempted, "delivered", report.Delivered)
	}
	return report
}

// deliver isolates a recipient that panics as well as one that errors.
func (f *Fanout) deliver(r Recipient, item protocol.Frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recovered from panic: %v", p)
		}
	}()
	return r.Send(item)
}
