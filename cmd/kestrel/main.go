package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openshelf/kestrel/internal/api"
	"github.com/openshelf/kestrel/internal/bus"
	"github.com/openshelf/kestrel/internal/cache"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
	"github.com/openshelf/kestrel/internal/loans"
	"github.com/openshelf/kestrel/internal/report"
	"github.com/openshelf/kestrel/internal/repository"
	"github.com/openshelf/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Fee Engine from the configured rate table
	engine := fees.NewEngine(cfg.RateTable)
	slog.Info("fee engine initialized",
		"grace_days", engine.Table().GraceDays,
		"fee_cap", engine.Table().FeeCap,
		"strategies", len(fees.Strategies()),
	)

	// Initialize Loan Service with snapshot caching
	loanSvc := loans.NewService(repo, cacheImpl, cfg.Cache.LocalTTL)
	slog.Info("loan service initialized")

	// Initialize Report Builder
	reports := report.NewBuilder(repo, engine)
	slog.Info("report builder initialized")

	// Initialize async Worker for returned-loan assessment
	var asyncWorker *worker.Worker
	tenantIDs := parseTenants(os.Getenv("KESTREL_TENANTS"))
	if len(tenantIDs) > 0 {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, Version)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, loanSvc, reports, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// parseTenants splits a comma-separated tenant list.
func parseTenants(env string) []string {
	if env == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║      Overdue Fee Assessment Engine        ║")
	fmt.Println("  ║      Every loan accounted for.            ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /items                - Add a catalog item")
	fmt.Println("    POST /patrons              - Register a patron")
	fmt.Println("    POST /loans                - Check out an item")
	fmt.Println("    POST /loans/{id}/return    - Return a loan")
	fmt.Println("    POST /assess               - Assess an overdue fee")
	fmt.Println("    GET  /assessments/{id}     - Get assessment by ID")
	fmt.Println("    GET  /patrons/{id}/total   - Total owed by a patron")
	fmt.Println("    GET  /reports/overdue      - Overdue report (JSON)")
	fmt.Println("    GET  /reports/overdue.csv  - Overdue report (CSV)")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
