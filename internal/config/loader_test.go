package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/agnij-dutta/attack-capital/internal/config"
)

// validMinimal is the smallest config that passes validation.
const validMinimal = `
providers:
  transcriber:
    name: openai
    api_key: sk-test
database:
  postgres_dsn: postgres://localhost/scribed
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validMinimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.ChunkPeriod != 30*time.Second {
		t.Errorf("chunk_period = %v, want 30s", cfg.Pipeline.ChunkPeriod)
	}
	if cfg.Pipeline.MinFragmentBytes != 1024 {
		t.Errorf("min_fragment_bytes = %d, want 1024", cfg.Pipeline.MinFragmentBytes)
	}
	if cfg.Pipeline.MaxSessionBytes != 2<<30 {
		t.Errorf("max_session_bytes = %d, want 2 GiB", cfg.Pipeline.MaxSessionBytes)
	}
	if cfg.Pipeline.SilenceEnergy != 0.02 {
		t.Errorf("silence_energy = %v, want 0.02", cfg.Pipeline.SilenceEnergy)
	}
	if cfg.Stitch.FFmpegPath != "ffmpeg" {
		t.Errorf("ffmpeg_path = %q, want ffmpeg", cfg.Stitch.FFmpegPath)
	}
	if cfg.Pipeline.Retention != 7*24*time.Hour {
		t.Errorf("retention = %v, want 168h", cfg.Pipeline.Retention)
	}
}

func TestLoadFromReader_ExplicitValuesKept(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9999"
  log_level: debug
pipeline:
  chunk_period: 10s
  max_session_bytes: 1048576
providers:
  transcriber:
    name: openai
database:
  postgres_dsn: postgres://localhost/scribed
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.ChunkPeriod != 10*time.Second {
		t.Errorf("chunk_period = %v", cfg.Pipeline.ChunkPeriod)
	}
	if cfg.Pipeline.MaxSessionBytes != 1<<20 {
		t.Errorf("max_session_bytes = %d", cfg.Pipeline.MaxSessionBytes)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  transcriber:
    name: openai
database:
  postgres_dsn: postgres://localhost/scribed
no_such_section:
  foo: bar
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "no_such_section") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_TranscriberRequired(t *testing.T) {
	t.Parallel()
	yaml := `
database:
  postgres_dsn: postgres://localhost/scribed
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing transcriber, got nil")
	}
	if !strings.Contains(err.Error(), "transcriber") {
		t.Errorf("error should mention transcriber, got: %v", err)
	}
}

func TestValidate_DSNRequired(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  transcriber:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing DSN, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error should mention postgres_dsn, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
providers:
  transcriber:
    name: openai
database:
  postgres_dsn: postgres://localhost/scribed
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  min_fragment_bytes: 2048
  min_stitch_bytes: 1024
  silence_energy: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"min_stitch_bytes", "silence_energy", "transcriber", "postgres_dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("does-not-exist.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
