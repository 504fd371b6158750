// Package logger builds the zap loggers shared by the server and client binaries.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a production sugared logger tagged with the service name.
// An empty level means "info".
func New(service string, level string) (*zap.SugaredLogger, error) {
	if level == "" {
		level = "info"
	}

	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]interface{}{
		"service": service,
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
