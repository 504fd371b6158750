package transfer

import "time"

const (
	// DefaultChunkSize is the payload size of every chunk but the last.
	DefaultChunkSize uint32 = 4096
	// DefaultPollInterval is how long a receive session waits on an empty queue.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultIdleLimit is the number of consecutive empty polls before a
	// receive session aborts (120 x 100ms = 12s).
	DefaultIdleLimit = 120
	// DefaultDownloadDir is where receive sessions write files.
	DefaultDownloadDir = "downloads"
)

// Config holds the tunables shared by every session of an endpoint.
type Config struct {
	ChunkSize     uint32        `envconfig:"TRANSFER_CHUNK_SIZE" default:"4096"`
	PollInterval  time.Duration `envconfig:"TRANSFER_POLL_INTERVAL" default:"100ms"`
	IdleLimit     int           `envconfig:"TRANSFER_IDLE_LIMIT" default:"120"`
	MaxConcurrent int           `envconfig:"TRANSFER_MAX_CONCURRENT" default:"0"`
	DownloadDir   string        `envconfig:"TRANSFER_DOWNLOAD_DIR" default:"downloads"`
}

// DefaultConfig returns the stock transfer settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		PollInterval: DefaultPollInterval,
		IdleLimit:    DefaultIdleLimit,
		DownloadDir:  DefaultDownloadDir,
	}
}

// Sanitize replaces zero or negative values with defaults.
func (c Config) Sanitize() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IdleLimit <= 0 {
		c.IdleLimit = DefaultIdleLimit
	}
	if c.MaxConcurrent < 0 {
		c.MaxConcurrent = 0
	}
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	return c
}
