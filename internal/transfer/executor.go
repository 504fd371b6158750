package transfer

import (
	"context"
	"sync"
	"time"
)

// Executor runs session workers with an optional cap on how many run at once.
type Executor struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewExecutor returns an executor allowing limit concurrent tasks.
// A limit of zero or less means unbounded.
func NewExecutor(limit int) *Executor {
	e := &Executor{}
	if limit > 0 {
		e.slots = make(chan struct{}, limit)
	}
	return e
}

// Go schedules task. It returns immediately; the task waits for a free slot.
func (e *Executor) Go(task func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.slots != nil {
			e.slots <- struct{}{}
			defer func() { <-e.slots }()
		}
		task()
	}()
}

// Shutdown waits for all scheduled tasks, giving up after timeout.
func (e *Executor) Shutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
