package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogTripsAtLimit(t *testing.T) {
	w := NewWatchdog(DefaultIdleLimit)
	for i := 1; i < DefaultIdleLimit; i++ {
		assert.False(t, w.Idle(), "poll %d", i)
	}
	assert.True(t, w.Idle())
	assert.Equal(t, 120, w.Count())
}

func TestWatchdogReset(t *testing.T) {
	w := NewWatchdog(3)
	w.Idle()
	w.Idle()
	w.Reset()
	assert.Zero(t, w.Count())
	assert.False(t, w.Idle())
	assert.False(t, w.Idle())
	assert.True(t, w.Idle())
}

func TestWatchdogDisabled(t *testing.T) {
	w := NewWatchdog(0)
	for i := 0; i < 1000; i++ {
		assert.False(t, w.Idle())
	}
}
