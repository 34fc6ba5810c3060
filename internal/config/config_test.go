package config

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8889" {
		t.Errorf("Expected default addr 127.0.0.1:8889, got %s", cfg.Addr)
	}
	if cfg.VoteTimeout != 30*time.Second {
		t.Errorf("Expected 30s vote timeout, got %s", cfg.VoteTimeout)
	}
	if cfg.OutboxSize != 64 || cfg.WriteTimeout != 10*time.Second {
		t.Errorf("Expected outbox 64 and write timeout 10s, got %d/%s", cfg.OutboxSize, cfg.WriteTimeout)
	}
	if cfg.WSAddr != "" || cfg.ChronicleDir != "" || cfg.Rematch {
		t.Errorf("Expected optional features off, got %+v", cfg)
	}
}

func TestParse_EnvThenFlags(t *testing.T) {
	t.Setenv("ADVENTURE_ADDR", "0.0.0.0:9000")
	t.Setenv("ADVENTURE_STORY", "env.json")
	t.Setenv("ADVENTURE_VOTE_TIMEOUT", "5s")
	t.Setenv("ADVENTURE_REMATCH", "true")

	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-story", "flag.yaml", "-ws-addr", ":9001"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Errorf("Expected env addr, got %s", cfg.Addr)
	}
	if cfg.StoryPath != "flag.yaml" {
		t.Errorf("Expected flag to override env story, got %s", cfg.StoryPath)
	}
	if cfg.WSAddr != ":9001" {
		t.Errorf("Expected ws addr from flag, got %s", cfg.WSAddr)
	}
	if cfg.VoteTimeout != 5*time.Second || !cfg.Rematch {
		t.Errorf("Expected env vote timeout and rematch, got %s/%v", cfg.VoteTimeout, cfg.Rematch)
	}
}

func TestParse_BadEnv(t *testing.T) {
	t.Setenv("ADVENTURE_OUTBOX_SIZE", "lots")
	_, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("Expected parse env error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{Addr: "x", StoryPath: "s", VoteTimeout: time.Second, OutboxSize: 1}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
	cfg.VoteTimeout = 0
	cfg.OutboxSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "vote timeout") || !strings.Contains(err.Error(), "outbox size") {
		t.Errorf("Expected both problems reported, got %v", err)
	}
}

func TestParse_Telemetry(t *testing.T) {
	cfg, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Telemetry.Active() || !cfg.Telemetry.Enabled || cfg.Telemetry.SampleRatio != 1 {
		t.Errorf("Expected tracing inactive with ratio 1 by default, got %+v", cfg.Telemetry)
	}

	t.Setenv("ADVENTURE_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("ADVENTURE_OTEL_SAMPLE_RATIO", "0.25")
	cfg, err = Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !cfg.Telemetry.Active() || cfg.Telemetry.SampleRatio != 0.25 {
		t.Errorf("Expected active tracing at 0.25, got %+v", cfg.Telemetry)
	}

	t.Setenv("ADVENTURE_OTEL_ENABLED", "false")
	cfg, err = Parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-otel-endpoint", "http://other:4318"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Telemetry.Endpoint != "http://other:4318" || cfg.Telemetry.Active() {
		t.Errorf("Expected flag endpoint with tracing disabled, got %+v", cfg.Telemetry)
	}

	t.Setenv("ADVENTURE_OTEL_SAMPLE_RATIO", "2")
	if _, err := Parse(flag.NewFlagSet("test", flag.ContinueOnError), nil); err == nil || !strings.Contains(err.Error(), "sample ratio") {
		t.Errorf("Expected sample ratio error, got %v", err)
	}
}
