package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/insightx/api"
	"github.com/use-agent/insightx/api/handler"
	"github.com/use-agent/insightx/browser"
	"github.com/use-agent/insightx/cache"
	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/llm"
	"github.com/use-agent/insightx/rules"
	"github.com/use-agent/insightx/scraper"
	"github.com/use-agent/insightx/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("insightx starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxProcesses", cfg.Pool.MaxProcesses,
	)

	// ── 3. Load the extraction rules table ──────────────────────────
	rs, err := rules.Load(cfg.Rules.File)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rules loaded", "version", rs.Version, "file", cfg.Rules.File)

	// ── 4. Start the browser pool ───────────────────────────────────
	rootCtx, stopPool := context.WithCancel(context.Background())
	manager := browser.NewManager(rootCtx, cfg.Browser, cfg.Pool, rs)

	// ── 5. Build the extraction pipeline ────────────────────────────
	opts := []scraper.Option{}
	if cfg.Scraper.ExpandShortlinks {
		opts = append(opts, scraper.WithResolver(scraper.NewShortlinkResolver(cfg.Browser.DefaultProxy, cfg.Scraper.ShortlinkTimeout)))
	}
	sc := scraper.New(&scraper.RodSessions{
		Manager:       manager,
		BlockedTypes:  cfg.Scraper.BlockedResourceTypes,
		BlockTrackers: cfg.Scraper.BlockTrackers,
	}, rs, cfg.Scraper, opts...)

	// ── 6. Collaborators: cache, analysis client, webhooks ──────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	analyzer := llm.NewClient(&http.Client{Timeout: cfg.Analysis.Timeout}, cfg.Analysis.MaxInputRunes)

	// ── 7. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Extractor:    sc,
		Analyzer:     analyzer,
		Notifier:     webhook.NewSender(),
		Cache:        cc,
		Batches:      handler.NewBatches(cfg.Batch.JobTTL),
		PoolStats:    manager.Stats,
		RulesVersion: rs.Version,
		StartTime:    time.Now(),
	})

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 10 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	manager.Close()
	stopPool()
	slog.Info("insightx stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
