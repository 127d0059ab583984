package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/query"
	"github.com/pulseboard/pulseboard/internal/scheduler"
	"github.com/pulseboard/pulseboard/internal/store/memory"
	"github.com/pulseboard/pulseboard/internal/store/postgres"
	"github.com/pulseboard/pulseboard/internal/widget"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/pulseboard.yaml", "Path to YAML config")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (empty = in-memory stores)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	registry := widget.NewRegistry(cfg.Widgets)
	slog.Info("widgets loaded", "count", len(cfg.Widgets))

	// ── Stores ────────────────────────────────────────────────────────────────
	var (
		events  query.EventStore
		rollups query.RollupStore
		cacheSt cache.Store
		writer  api.EventWriter
		rollupW api.RollupWriter
	)
	if *dsn != "" {
		pg, err := postgres.Connect(*dsn)
		if err != nil {
			slog.Error("postgres unavailable", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		events, rollups, cacheSt, writer, rollupW = pg, pg, pg, pg, pg
		slog.Info("using postgres stores")
	} else {
		mem := memory.NewStore()
		events, rollups, writer, rollupW = mem, mem, mem, mem
		cacheSt = cache.NewMemory()
		slog.Info("using in-memory stores")
	}

	// ── Engine + scheduler ────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := query.New(events, rollups)
	sched := scheduler.New(ctx, registry, engine, cacheSt, clockwork.NewRealClock(), scheduler.ConfFrom(cfg.Engine))
	go sched.Run(ctx)
	sched.Scan(ctx) // warm up before serving

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		registry.Swap(newCfg.Widgets)
		sched.ResetFailures()
		slog.Info("widgets hot-reloaded", "count", len(newCfg.Widgets))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(registry, sched, engine, cacheSt, writer, rollupW)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop scan loop and workers
	sched.Shutdown()
	slog.Info("goodbye")
}
