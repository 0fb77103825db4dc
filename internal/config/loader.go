package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider slot.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"openai"},
	"summarizer":  {"openai", "anthropic", "gemini", "ollama", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	p := cfg.Pipeline
	if p.MinStitchBytes < p.MinFragmentBytes {
		errs = append(errs, fmt.Errorf("pipeline.min_stitch_bytes (%d) must not be below pipeline.min_fragment_bytes (%d)", p.MinStitchBytes, p.MinFragmentBytes))
	}
	if p.SilenceEnergy < 0 || p.SilenceEnergy > 1 {
		errs = append(errs, fmt.Errorf("pipeline.silence_energy %.3f is out of range [0, 1]", p.SilenceEnergy))
	}
	if int64(p.MinStitchBytes) > p.MaxSessionBytes {
		errs = append(errs, fmt.Errorf("pipeline.min_stitch_bytes (%d) exceeds pipeline.max_session_bytes (%d)", p.MinStitchBytes, p.MaxSessionBytes))
	}

	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("transcriber", cfg.Providers.FallbackTranscriber.Name)
	validateProviderName("summarizer", cfg.Providers.Summarizer.Name)

	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber.name is required"))
	}
	if cfg.Providers.Summarizer.Name == "" {
		slog.Warn("providers.summarizer is not configured; finalisation will use the fallback summary text")
	}
	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found
// in the [ValidProviderNames] list for the given slot.
func validateProviderName(slot, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[slot]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"slot", slot,
		"name", name,
		"known", known,
	)
}
