// Command loremaster is the entry point for the Loremaster DM server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/loremaster-ai/loremaster/internal/config"
	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/internal/pipeline"
	"github.com/loremaster-ai/loremaster/internal/recall"
	"github.com/loremaster-ai/loremaster/internal/resilience"
	"github.com/loremaster-ai/loremaster/internal/server"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/memory/postgres"
	"github.com/loremaster-ai/loremaster/pkg/provider/embeddings"
	ollamaembed "github.com/loremaster-ai/loremaster/pkg/provider/embeddings/ollama"
	oaembed "github.com/loremaster-ai/loremaster/pkg/provider/embeddings/openai"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm/anyllm"
)

// shutdownGrace bounds the drain of in-flight turns on SIGTERM.
const shutdownGrace = 15 * time.Second

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
			fmt.Fprintf(os.Stderr, "loremaster: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "loremaster: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("loremaster starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "loremaster",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		return 1
	}
	defer store.Close()

	// ── Providers ─────────────────────────────────────────────────────────────
	generator, err := buildGenerator(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build generator", "err", err)
		return 1
	}
	embedder, err := buildEmbedder(cfg.Providers.Embeddings, cfg.Memory)
	if err != nil {
		slog.Error("failed to build embedder", "err", err)
		return 1
	}

	// ── Campaign module ───────────────────────────────────────────────────────
	var campaigns campaign.Store
	if cfg.Campaign.ModuleID != "" {
		library := campaign.NewLibrary(cfg.Campaign.ModulesDir)
		c, err := library.Load(cfg.Campaign.ModuleID, cfg.Campaign.WorldID)
		if err != nil {
			slog.Error("failed to load campaign module", "module_id", cfg.Campaign.ModuleID, "err", err)
			return 1
		}
		campaigns = c
		slog.Info("campaign module loaded",
			"module_id", cfg.Campaign.ModuleID,
			"name", c.Meta().Name,
		)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	recallSvc := recall.NewService(store.Memories(), embedder, metrics)
	summarizer := recall.NewSummarizer(store.Memories(), generator, embedder, metrics)

	engine := pipeline.New(pipeline.Config{
		Sessions:   store.Sessions(),
		Characters: store.Characters(),
		Campaigns:  campaigns,
		Generator:  generator,
		Recall:     recallSvc,
		Summarizer: summarizer,
		Metrics:    metrics,
	})

	// ── HTTP server ───────────────────────────────────────────────────────────
	api := server.New(server.Config{
		Engine:   engine,
		Sessions: store.Sessions(),
		Metrics:  metrics,
		Checkers: []server.Checker{
			{Name: "database", Check: store.Ping},
		},
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.ListenAddr)
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- httpSrv.ListenAndServe()
	}()

	// Optional dedicated metrics listener for scrape isolation.
	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildGenerator constructs the configured DM generator and wraps it in a
// circuit breaker so a flapping backend degrades to the fixed fallback
// instead of hanging every turn.
func buildGenerator(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	primary, err := anyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("generator %q: %w", entry.Name, err)
	}
	return resilience.NewGenerator(entry.Name, primary, resilience.BreakerConfig{Name: "generator"}), nil
}

// buildEmbedder constructs the configured embedder, LRU-cached and behind
// its own circuit breaker. All embedder backends must produce vectors of
// mem.EmbeddingDimensions or retrieval will never match stored memories.
func buildEmbedder(entry config.ProviderEntry, mem config.MemoryConfig) (embeddings.Provider, error) {
	var primary embeddings.Provider
	var err error

	switch entry.Name {
	case "openai":
		primary, err = oaembed.New(entry.APIKey, entry.Model, oaembed.WithDimensions(mem.EmbeddingDimensions))
	case "ollama":
		primary, err = ollamaembed.New(entry.BaseURL, entry.Model, ollamaembed.WithDimensions(mem.EmbeddingDimensions))
	default:
		return nil, fmt.Errorf("embedder %q: unsupported backend", entry.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", entry.Name, err)
	}

	cached, err := embeddings.NewCached(primary, mem.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedder cache: %w", err)
	}
	return resilience.NewEmbedder(entry.Name, cached, resilience.BreakerConfig{Name: "embedder"}), nil
}

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
