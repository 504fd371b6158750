// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relaychat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Tyrowin/relaychat/internal/announce"
	"github.com/Tyrowin/relaychat/internal/transfer"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 65536
	defaultSendBuffer     = 256
	defaultBurst          = 5
	defaultRefill         = time.Second
	defaultRoom           = "lobby"
)

// RateLimitConfig defines the parameters for per-connection chat rate limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
}

// Config holds every server setting. It is built once, sanitized, and passed
// by pointer to the components that need it.
type Config struct {
	Port           string   `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
	SendBuffer     int      `envconfig:"SEND_BUFFER" default:"256"`
	DefaultRoom    string   `envconfig:"DEFAULT_ROOM" default:"lobby"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	LogDeliveries  bool     `envconfig:"LOG_DELIVERIES" default:"false"`

	// AdminAllowRemote opens /schedules and /console to non-loopback callers.
	AdminAllowRemote bool `envconfig:"ADMIN_ALLOW_REMOTE" default:"false"`

	RateLimit RateLimitConfig `ignored:"true"`
	Transfer  transfer.Config `ignored:"true"`
	Schedule  announce.Config `ignored:"true"`

	allowAllOrigins bool
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := &Config{
		Port:           defaultPort,
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: defaultMaxMessageSize,
		SendBuffer:     defaultSendBuffer,
		DefaultRoom:    defaultRoom,
		LogLevel:       "info",
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefill,
		},
		Transfer: transfer.DefaultConfig(),
		Schedule: announce.DefaultConfig(),
	}
	cfg.Sanitize()
	return cfg
}

// LoadConfig reads the configuration from environment variables. Unset
// variables take their defaults, values that do not parse are an error,
// and zero or negative values fall back to defaults in Sanitize.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := envconfig.Process("", &cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Transfer); err != nil {
		return nil, fmt.Errorf("transfer config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Schedule); err != nil {
		return nil, fmt.Errorf("schedule config: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize replaces missing or out-of-range values with defaults and
// normalizes the origin allow-list.
func (c *Config) Sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if strings.TrimSpace(c.DefaultRoom) == "" {
		c.DefaultRoom = defaultRoom
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefill
	}

	c.Transfer = c.Transfer.Sanitize()
	if c.Schedule.Backend == "" {
		c.Schedule.Backend = announce.BackendFile
	}
	if c.Schedule.Path == "" {
		c.Schedule.Path = announce.DefaultConfig().Path
	}
	if c.Schedule.Tick <= 0 {
		c.Schedule.Tick = time.Minute
	}

	c.AllowedOrigins, c.allowAllOrigins = normalizeOrigins(c.AllowedOrigins)
}
