// meetingd keeps a local meeting history in sync with the capture service.
//
// It loads its configuration, syncs once on start and then on every
// sync.interval, reloads the configuration file when it changes, and
// optionally serves Prometheus metrics.
//
//	meetingd [--config path] [--once] [--log-level level]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"meetingd/internal/app"
	"meetingd/internal/config"
	"meetingd/internal/history"
	"meetingd/internal/logging"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "meetingd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("meetingd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "configuration file (default: platform config dir)")
	logLevel := flags.String("log-level", "", "override logging.level")
	once := flags.Bool("once", false, "run a single sync and exit")
	showVersion := flags.Bool("version", false, "print the version and exit")
	flags.SortFlags = false

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("meetingd", version)
		return nil
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	path := config.ResolvePath(*configPath)
	loader := config.NewLoader(path)
	defer loader.Close()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	for _, w := range cfg.Check().Warnings() {
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		res, err := a.Syncer.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("synced %d events: %d added, %d extended, %d sessions\n",
			res.Events, res.Added, res.Extended, len(res.Sessions))
		return nil
	}

	logger.Info("meetingd starting", "version", version, "config", path, "storage", cfg.Storage.Path)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = serveMetrics(a, cfg.Metrics.Listen, logger)
	}

	poller := history.NewPoller(a.Syncer, history.PollerConfig{
		Interval: cfg.Sync.Interval.Duration,
		Logger:   logger,
	})

	loader.OnChange(func(old, next *config.Config) {
		a.Apply(next)
		poller.SetInterval(next.Sync.Interval.Duration)
		if old != nil && (old.Storage != next.Storage || old.Capture.URL != next.Capture.URL || old.Remote != next.Remote || old.LLM != next.LLM) {
			logger.Warn("storage, endpoint and credential changes take effect after restart")
		}
		logger.Info("configuration reloaded", "interval", poller.Interval())
	})
	if _, statErr := os.Stat(path); statErr == nil {
		if err := loader.Watch(); err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload failed", "error", err)
			}
		}
	}()

	poller.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down")
	poller.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	stats := poller.Stats()
	logger.Info("meetingd stopped", "syncs", stats.Runs, "failures", stats.Failures)
	return nil
}

func serveMetrics(a *app.App, addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.SessionCount(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
