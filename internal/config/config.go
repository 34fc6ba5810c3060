// Package config loads server settings from the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the session server settings.
type Config struct {
	Addr         string        `env:"ADVENTURE_ADDR" envDefault:"127.0.0.1:8889"`
	WSAddr       string        `env:"ADVENTURE_WS_ADDR"`
	StoryPath    string        `env:"ADVENTURE_STORY" envDefault:"stories/derelict.json"`
	VoteTimeout  time.Duration `env:"ADVENTURE_VOTE_TIMEOUT" envDefault:"30s"`
	OutboxSize   int           `env:"ADVENTURE_OUTBOX_SIZE" envDefault:"64"`
	WriteTimeout time.Duration `env:"ADVENTURE_WRITE_TIMEOUT" envDefault:"10s"`
	ChronicleDir string        `env:"ADVENTURE_CHRONICLE_DIR"`
	Rematch      bool          `env:"ADVENTURE_REMATCH" envDefault:"false"`
	Telemetry    Telemetry
}

// Telemetry controls span export. Tracing stays off until an endpoint is
// set.
type Telemetry struct {
	Endpoint    string  `env:"ADVENTURE_OTEL_ENDPOINT"`
	Enabled     bool    `env:"ADVENTURE_OTEL_ENABLED" envDefault:"true"`
	SampleRatio float64 `env:"ADVENTURE_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Active reports whether spans should be exported.
func (t Telemetry) Active() bool {
	return t.Enabled && t.Endpoint != ""
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Parse loads defaults from the environment and then applies flags.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address to listen on")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket address to listen on (empty disables)")
	fs.StringVar(&cfg.StoryPath, "story", cfg.StoryPath, "Story file (.json or .yaml)")
	fs.DurationVar(&cfg.VoteTimeout, "vote-timeout", cfg.VoteTimeout, "How long a group vote stays open")
	fs.StringVar(&cfg.ChronicleDir, "chronicle-dir", cfg.ChronicleDir, "Directory for PDF chronicles (empty disables)")
	fs.BoolVar(&cfg.Rematch, "rematch", cfg.Rematch, "Host a new game on the same story after one ends")
	fs.StringVar(&cfg.Telemetry.Endpoint, "otel-endpoint", cfg.Telemetry.Endpoint, "OTLP/HTTP endpoint URL for traces (empty disables)")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.StoryPath == "" {
		errs = append(errs, errors.New("story path is required"))
	}
	if c.VoteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("vote timeout must be positive, got %s", c.VoteTimeout))
	}
	if c.OutboxSize < 1 {
		errs = append(errs, fmt.Errorf("outbox size must be at least 1, got %d", c.OutboxSize))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write timeout must not be negative, got %s", c.WriteTimeout))
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio must be between 0 and 1, got %g", r))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
