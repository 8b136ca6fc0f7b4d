// Package main is the entry point for the instance action log server binary.
// It dispatches three subcommands, serve, migrate and version, via a simple
// switch on os.Args. The serve command runs auto-migration on startup when the
// postgres backend is selected.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/instance-action-log/instance-action-log/internal/actionlog"
	"github.com/instance-action-log/instance-action-log/internal/api"
	"github.com/instance-action-log/instance-action-log/internal/api/servers"
	"github.com/instance-action-log/instance-action-log/internal/compute"
	"github.com/instance-action-log/instance-action-log/internal/config"
	"github.com/instance-action-log/instance-action-log/internal/db"
	"github.com/instance-action-log/instance-action-log/internal/db/repositories"
	"github.com/instance-action-log/instance-action-log/internal/safego"
	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

const (
	version = "0.1.0"

	dbStatsInterval = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Instance Action Log v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	api.Version = version

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	interceptor, shippers, err := buildInterceptor(store, cfg.Audit)
	if err != nil {
		return err
	}
	if shippers != nil {
		defer func() {
			if err := shippers.Close(); err != nil {
				slog.Warn("failed to close audit shippers", "error", err)
			}
		}()
	}

	upstream, err := compute.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	if err != nil {
		return fmt.Errorf("invalid upstream configuration: %w", err)
	}

	handler := servers.NewHandler(upstream, interceptor, servers.HeaderNames{
		User:   cfg.Audit.UserHeader,
		Token:  cfg.Audit.TokenHeader,
		Tenant: cfg.Audit.TenantHeader,
	})

	router, err := api.NewRouter(cfg, handler, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// The metrics endpoint lives on its own port so it is not reachable through
	// the compute API ingress path.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go("metrics-server", func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	safego.Go("api-server", func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"upstream", cfg.Upstream.BaseURL,
			"backend", cfg.Database.Backend,
			"audit_enabled", cfg.Audit.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore selects the action log backend. The returned *sql.DB is nil for
// the memory backend.
func openStore(ctx context.Context, cfg *config.Config) (actionlog.Store, *sql.DB, error) {
	if cfg.Database.Backend == "memory" {
		slog.Warn("using in-memory action log store; records are lost on restart")
		return actionlog.NewMemoryStore(), nil, nil
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"name", cfg.Database.Name,
		"ssl_mode", cfg.Database.SSLMode,
	)

	if err := db.RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	telemetry.StartDBStatsCollector(ctx, database, dbStatsInterval)

	return repositories.NewInstanceActionLogRepository(sqlx.NewDb(database, "postgres")), database, nil
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Database.Backend == "memory" {
		return fmt.Errorf("migrations require the postgres backend")
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
