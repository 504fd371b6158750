package transfer

// Watchdog counts consecutive empty polls of a receive session and trips
// once the count reaches its limit. A limit of zero never trips.
type Watchdog struct {
	limit int
	idle  int
}

// NewWatchdog returns a watchdog that trips after limit empty polls.
func NewWatchdog(limit int) *Watchdog {
	return &Watchdog{limit: limit}
}

// Idle records an empty poll and reports whether the session should abort.
func (w *Watchdog) Idle() bool {
	w.idle++
	return w.limit > 0 && w.idle >= w.limit
}

// Reset is called whenever a chunk arrives.
func (w *Watchdog) Reset() {
	w.idle = 0
}

// Count returns the current run of empty polls.
func (w *Watchdog) Count() int {
	return w.idle
}
