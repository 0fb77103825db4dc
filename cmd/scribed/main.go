// Command scribed is the streaming audio transcription server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/agnij-dutta/attack-capital/internal/config"
	"github.com/agnij-dutta/attack-capital/internal/fanout"
	"github.com/agnij-dutta/attack-capital/internal/fragstore"
	"github.com/agnij-dutta/attack-capital/internal/gateway"
	"github.com/agnij-dutta/attack-capital/internal/health"
	"github.com/agnij-dutta/attack-capital/internal/observe"
	"github.com/agnij-dutta/attack-capital/internal/resilience"
	"github.com/agnij-dutta/attack-capital/internal/session"
	"github.com/agnij-dutta/attack-capital/internal/stitch"
	"github.com/agnij-dutta/attack-capital/internal/ws"
	"github.com/agnij-dutta/attack-capital/pkg/provider/summarizer"
	sumanyllm "github.com/agnij-dutta/attack-capital/pkg/provider/summarizer/anyllm"
	"github.com/agnij-dutta/attack-capital/pkg/provider/transcriber"
	troai "github.com/agnij-dutta/attack-capital/pkg/provider/transcriber/openai"
	"github.com/agnij-dutta/attack-capital/pkg/record/postgres"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// sweepEvery is how often the fragment store checks for orphaned session
// directories.
const sweepEvery = time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scribed: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("scribed starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "scribed",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Persistent store ──────────────────────────────────────────────────────
	store, err := postgres.NewStore(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer store.Close()

	// ── Fragment store ────────────────────────────────────────────────────────
	frags, err := fragstore.New(cfg.Pipeline.FragmentRoot, cfg.Pipeline.DebugSaveStitched)
	if err != nil {
		slog.Error("failed to open fragment store", "err", err)
		return 1
	}
	frags.StartSweeper(ctx, sweepEvery, cfg.Pipeline.Retention)

	// ── Stitcher ──────────────────────────────────────────────────────────────
	stitchOpts := stitch.Options{
		FFmpegPath:        cfg.Stitch.FFmpegPath,
		FFprobePath:       cfg.Stitch.FFprobePath,
		ToolTimeout:       cfg.Stitch.ToolTimeout,
		FilterToolTimeout: cfg.Stitch.FilterToolTimeout,
		StdoutMax:         cfg.Stitch.ToolStdoutMax,
		ExpectedDuration:  cfg.Pipeline.ChunkPeriod,
	}
	if cfg.Pipeline.DebugSaveStitched {
		stitchOpts.DebugDirFor = frags.DebugDir
	}
	stitcher := stitch.New(stitchOpts)

	// ── Providers ─────────────────────────────────────────────────────────────
	trProvider, err := buildTranscriber(cfg.Providers)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}

	sumProvider, err := buildSummarizer(cfg.Providers.Summarizer)
	if err != nil {
		slog.Error("failed to build summarizer", "err", err)
		return 1
	}

	gw := gateway.New(trProvider, store, gateway.Options{
		ProviderName:  cfg.Providers.Transcriber.Name,
		ContextChunks: cfg.Pipeline.ContextChunks,
		ContextChars:  cfg.Pipeline.ContextChars,
		Attempts:      cfg.Pipeline.TranscribeAttempts,
		RetryBase:     cfg.Pipeline.RetryBase,
	})

	// ── Session manager ───────────────────────────────────────────────────────
	hub := fanout.NewHub()
	manager := session.NewManager(session.Config{
		ChunkPeriod:      cfg.Pipeline.ChunkPeriod,
		MinFragmentBytes: cfg.Pipeline.MinFragmentBytes,
		MinStitchBytes:   cfg.Pipeline.MinStitchBytes,
		SilenceEnergy:    cfg.Pipeline.SilenceEnergy,
		SilenceMaxBytes:  cfg.Pipeline.SilenceMaxBytes,
		MaxSessionBytes:  cfg.Pipeline.MaxSessionBytes,
	}, session.Deps{
		Store:       store,
		Fragments:   frags,
		Stitcher:    stitcher,
		Transcriber: gw,
		Summarizer:  sumProvider,
		Hub:         hub,
	})

	if err := manager.Recover(ctx); err != nil {
		slog.Error("crash recovery failed", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.Checker{Name: "database", Check: store.Ping},
		health.Checker{Name: "ffmpeg", Check: func(_ context.Context) error {
			_, err := exec.LookPath(cfg.Stitch.FFmpegPath)
			return err
		}},
	)

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mw := observe.Middleware(observe.DefaultMetrics())
	root := http.NewServeMux()
	// The duplex channel is long-lived, so it bypasses the per-request
	// telemetry middleware.
	root.Handle("/ws", ws.NewHandler(manager, hub, cfg.Server.PingInterval))
	root.Handle("/", mw(mux))

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Stop the ingest surface first, then the schedulers. Buffered
		// fragments stay on disk for crash recovery on next start.
		err := srv.Shutdown(shutdownCtx)
		manager.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTranscriber constructs the transcription backend, wrapping it in a
// failover group when a fallback transcriber is configured.
func buildTranscriber(cfg config.ProvidersConfig) (transcriber.Provider, error) {
	primary, err := newTranscriber(cfg.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("create transcriber %q: %w", cfg.Transcriber.Name, err)
	}
	slog.Info("provider created", "kind", "transcriber", "name", cfg.Transcriber.Name, "model", cfg.Transcriber.Model)

	if cfg.FallbackTranscriber.Name == "" {
		return primary, nil
	}

	fallback, err := newTranscriber(cfg.FallbackTranscriber)
	if err != nil {
		return nil, fmt.Errorf("create fallback transcriber %q: %w", cfg.FallbackTranscriber.Name, err)
	}
	slog.Info("provider created", "kind", "fallback_transcriber", "name", cfg.FallbackTranscriber.Name, "model", cfg.FallbackTranscriber.Model)

	group := resilience.NewTranscriberFallback(primary, cfg.Transcriber.Name, resilience.FallbackConfig{})
	group.AddFallback(cfg.FallbackTranscriber.Name, fallback)
	return group, nil
}

// newTranscriber instantiates a single transcription backend from its
// config entry.
func newTranscriber(entry config.ProviderEntry) (transcriber.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []troai.Option
		if entry.BaseURL != "" {
			opts = append(opts, troai.WithBaseURL(entry.BaseURL))
		}
		return troai.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown transcriber provider %q", entry.Name)
	}
}

// buildSummarizer constructs the summarisation backend. An empty entry
// returns nil; finalisation then stores the fallback summary text.
func buildSummarizer(entry config.ProviderEntry) (summarizer.Provider, error) {
	if entry.Name == "" {
		return nil, nil
	}
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	p, err := sumanyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create summarizer %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "summarizer", "name", entry.Name, "model", entry.Model)
	return p, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
