package announce

import "time"

// Config selects the schedule store and the evaluation period.
type Config struct {
	Backend string        `envconfig:"SCHEDULE_BACKEND" default:"file"`
	Path    string        `envconfig:"SCHEDULE_PATH" default:"scheduled_messages.dat"`
	Tick    time.Duration `envconfig:"SCHEDULE_TICK" default:"1m"`
}

// DefaultConfig returns the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    "scheduled_messages.dat",
		Tick:    time.Minute,
	}
}
