// Package logging builds the zerolog loggers used by the ddb command and
// handed to the library packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	// Level is a zerolog level name. Empty means info.
	Level string `yaml:"level"`
	// Format is json or console. Empty means json.
	Format string `yaml:"format"`
	// Output defaults to stderr.
	Output io.Writer `yaml:"-"`
}

// New returns a logger configured by cfg. The level is set on the logger,
// not globally.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q, want %s or %s", cfg.Format, FormatJSON, FormatConsole)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// FromEnv reads DDB_LOG_LEVEL and DDB_LOG_FORMAT, falling back to cfg for
// unset variables.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("DDB_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("DDB_LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	return cfg
}
