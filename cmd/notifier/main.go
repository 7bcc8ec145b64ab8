package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"notifier/handlers"
	"notifier/internal/kernel"
	"notifier/pkg/config"
	"notifier/pkg/logx"
	"notifier/pkg/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML, TOML or JSON config file")
		simulate    = flag.Bool("simulate", false, "Feed synthetic engagement and notifications into the pipeline")
		simUsers    = flag.Int("sim-users", 20, "Number of simulated users")
		simEvery    = flag.Duration("sim-interval", 5*time.Second, "Interval between simulated batches")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("notifier %s\n", version.String())
		os.Exit(0)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println("⏳ Starting notifier... press Ctrl+C to stop")
	}

	os.Exit(run(*configPath, *simulate, *simUsers, *simEvery))
}

// run contains the main application logic and returns an exit code.
func run(configPath string, simulate bool, simUsers int, simEvery time.Duration) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	applyLogging(cfg)

	logger := logx.NewLogger("main")
	logger.Info("Starting notifier %s (env=%s, %d agents)", version.String(), cfg.Env, cfg.TotalAgents())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	k, err := kernel.NewKernel(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	srv := newHTTPServer(cfg, k)
	if srv != nil {
		go func() {
			logger.Info("Serving health/status on %s (metrics=%t)", srv.Addr, cfg.Metrics.Enabled)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed: %v", err)
			}
		}()
	}

	if err := k.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start agents: %v\n", err)
		_ = k.Stop()
		return 1
	}

	if simulate {
		go newSimulator(k, simUsers).Run(ctx, simEvery)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	exitCode := 0
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown: %v", err)
		}
		shutdownCancel()
	}
	if err := k.Stop(); err != nil {
		logger.Error("Shutdown error: %v", err)
		exitCode = 1
	}
	logger.Info("Notifier stopped")
	return exitCode
}

// newHTTPServer serves /health and /status on the configured address, plus
// /metrics when metrics are enabled. It returns nil when no address is set.
func newHTTPServer(cfg *config.Config, k *kernel.Kernel) *http.Server {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = k.Metrics
	}
	status := handlers.NewServer(k.Registry, k.Agents, k.Operations(), gatherer)
	return &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           status.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func applyLogging(cfg *config.Config) {
	logx.SetLevel(logx.ParseLevel(cfg.LogLevel))
	if cfg.Debug {
		logx.SetDebug(true)
	}
	if len(cfg.DebugDomains) > 0 {
		logx.SetDebugDomains(cfg.DebugDomains)
	}
}
