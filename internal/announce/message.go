package announce

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinutesPerDay is where the minute counter wraps.
const MinutesPerDay = 1440

// ErrInvalidMessage indicates a scheduled message that can never fire correctly.
var ErrInvalidMessage = errors.New("invalid scheduled message")

// Mode says when a scheduled message fires.
type Mode uint8

const (
	// ModeOneTime fires at the next evaluation and is then dropped.
	ModeOneTime Mode = iota + 1
	// ModeInterval fires whenever the minute counter is a multiple of EveryMinutes.
	ModeInterval
	// ModeDaily fires when the wall clock shows Hour:Minute.
	ModeDaily
)

func (m Mode) String() string {
	switch m {
	case ModeOneTime:
		return "one_time"
	case ModeInterval:
		return "interval"
	case ModeDaily:
		return "daily"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeOneTime, ModeInterval, ModeDaily:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidMessage, uint8(m))
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "one_time", "onetime", "once":
		*m = ModeOneTime
	case "interval", "every":
		*m = ModeInterval
	case "daily":
		*m = ModeDaily
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidMessage, text)
	}
	return nil
}

// Message is a server announcement with its schedule.
type Message struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Mode         Mode   `json:"mode"`
	EveryMinutes int    `json:"every_minutes,omitempty"`
	Hour         int    `json:"hour"`
	Minute       int    `json:"minute"`
}

// OneTime returns a message that fires once.
func OneTime(text string) Message {
	return Message{ID: uuid.NewString(), Text: text, Mode: ModeOneTime}
}

// Every returns a message that fires every n minutes.
func Every(text string, n int) Message {
	return Message{ID: uuid.NewString(), Text: text, Mode: ModeInterval, EveryMinutes: n}
}

// Daily returns a message that fires each day at hour:minute local time.
func Daily(text string, hour, minute int) Message {
	return Message{ID: uuid.NewString(), Text: text, Mode: ModeDaily, Hour: hour, Minute: minute}
}

// Validate checks the schedule fields for the message's mode.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	if len(m.Text) > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d bytes", ErrInvalidMessage, MaxTextLength)
	}

	switch m.Mode {
	case ModeOneTime:
	case ModeInterval:
		if m.EveryMinutes < 1 || m.EveryMinutes > MinutesPerDay {
			return fmt.Errorf("%w: every_minutes must be 1..%d, got %d", ErrInvalidMessage, MinutesPerDay, m.EveryMinutes)
		}
	case ModeDaily:
		if m.Hour < 0 || m.Hour > 23 || m.Minute < 0 || m.Minute > 59 {
			return fmt.Errorf("%w: daily time %02d:%02d", ErrInvalidMessage, m.Hour, m.Minute)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidMessage, uint8(m.Mode))
	}
	return nil
}

// Due reports whether the message fires at minute counter value counter
// and wall clock now. Daily messages ignore the counter.
func (m Message) Due(counter int, now time.Time) bool {
	switch m.Mode {
	case ModeOneTime:
		return true
	case ModeInterval:
		return m.EveryMinutes > 0 && counter%m.EveryMinutes == 0
	case ModeDaily:
		return now.Hour() == m.Hour && now.Minute() == m.Minute
	}
	return false
}

// nextMinute advances the minute counter, wrapping once a day.
func nextMinute(counter int) int {
	return (counter + 1) % MinutesPerDay
}
