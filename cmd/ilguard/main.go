package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/ilguard/config"
	"github.com/alejandrodnm/ilguard/internal/adapters/fhe"
	"github.com/alejandrodnm/ilguard/internal/adapters/metrics"
	"github.com/alejandrodnm/ilguard/internal/adapters/notify"
	"github.com/alejandrodnm/ilguard/internal/adapters/storage"
	"github.com/alejandrodnm/ilguard/internal/adapters/venue"
	"github.com/alejandrodnm/ilguard/internal/controller"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	eventsPath := flag.String("events", "config/scenario.yaml", "path to the scenario of venue events to replay")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print positions and pools tables after the replay")
	history := flag.Int("history", 0, "print the last N journaled notifications after the replay (needs storage.dsn)")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address and wait for interrupt (overrides config)")
	monitor := flag.Bool("monitor", false, "print the current IL of journaled positions against the on-chain price and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	setupLogger(cfg.Log)

	strategy, err := verifier.ParseStrategy(cfg.Verifier.Strategy)
	if err != nil {
		slog.Error("invalid verifier strategy", "err", err)
		os.Exit(1)
	}

	slog.Info("ilguard starting",
		"config", *configPath,
		"events", *eventsPath,
		"strategy", strategy,
		"max_scan", cfg.Controller.MaxScan,
		"dsn", cfg.Storage.DSN,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var journal ports.Journal
	var store *storage.SQLiteJournal
	if cfg.Storage.DSN != "" {
		store, err = storage.NewSQLiteJournal(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		journal = store
	}

	controllerAddr := cfg.ControllerAddress()
	enc := fhe.NewLocalService(controllerAddr, cfg.Verifier.OpsPerSecond, cfg.Verifier.Burst)
	v, err := verifier.New(enc, strategy, controllerAddr)
	if err != nil {
		slog.Error("failed to build verifier", "err", err)
		os.Exit(1)
	}

	console := notify.NewConsole()
	if *monitor {
		if err := runMonitor(ctx, cfg, journal, v, console); err != nil {
			slog.Error("monitor failed", "err", err)
			os.Exit(1)
		}
		return
	}

	sc, err := LoadScenario(*eventsPath)
	if err != nil {
		slog.Error("failed to load scenario", "err", err)
		os.Exit(1)
	}

	notifiers := []ports.Notifier{console}

	var recorder *metrics.Recorder
	reg := prometheus.NewRegistry()
	if cfg.Metrics.Addr != "" {
		recorder, err = metrics.NewRecorder(reg)
		if err != nil {
			slog.Error("failed to register metrics", "err", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, recorder)
	}

	pm, err := venue.NewPoolManager(nil)
	if err != nil {
		slog.Error("failed to build venue", "err", err)
		os.Exit(1)
	}

	ctrl, err := controller.New(controller.Config{
		Address:         controllerAddr,
		Owner:           cfg.OwnerAddress(),
		MaxScan:         cfg.Controller.MaxScan,
		BreakerFailures: cfg.Breaker.MaxFailures,
		BreakerCooldown: cfg.BreakerCooldown(),
	}, pm, v, registry.New(), journal, notifiers...)
	if err == nil {
		err = ctrl.Restore(ctx)
	}
	if err != nil {
		slog.Error("failed to build controller", "err", err)
		os.Exit(1)
	}
	if recorder != nil {
		recorder.SetProtected(countActive(ctrl))
	}

	if err := pm.SetHooks(ctrl); err != nil {
		slog.Error("failed to register hooks", "err", err)
		os.Exit(1)
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = serveMetrics(cfg.Metrics.Addr, reg)
	}

	stats, err := newReplayer(pm, ctrl, enc, controllerAddr, recorder).run(ctx, sc)
	if err != nil {
		slog.Error("replay interrupted", "err", err)
	}

	if *table {
		for _, pool := range ctrl.Pools() {
			console.PrintPositions(ctrl.GetActivePositions(pool))
		}
		console.PrintPools(ctrl.PoolStates())
	}
	if *history > 0 {
		printHistory(store, console, *history)
	}

	slog.Info("replay complete",
		"events", len(sc.Events),
		"applied", stats.Applied,
		"reverted", stats.Reverted,
		"breached", stats.Breached,
		"owner", ctrl.Owner().Hex(),
		"paused", ctrl.Paused(),
	)

	if srv != nil && err == nil {
		slog.Info("serving metrics until interrupted", "addr", cfg.Metrics.Addr)
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func printHistory(store *storage.SQLiteJournal, console *notify.Console, limit int) {
	if store == nil {
		slog.Warn("-history needs storage.dsn, skipping")
		return
	}
	ns, err := store.Notifications(context.Background(), limit)
	if err != nil {
		slog.Error("failed to read notification history", "err", err)
		return
	}
	console.PrintHistory(ns)
}

func countActive(ctrl *controller.Controller) int {
	n := 0
	for _, pool := range ctrl.Pools() {
		n += len(ctrl.GetActivePositions(pool))
	}
	return n
}

func setupLogger(cfg config.LogConfig) {
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
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
