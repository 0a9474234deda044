package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/internal/auth"
	authPostgres "github.com/offszn/marketplace/internal/auth/postgres"
	"github.com/offszn/marketplace/internal/core/events"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/internal/reconciliation"
	"github.com/offszn/marketplace/internal/transport/rest"
	"github.com/offszn/marketplace/pkg/telemetry"
)

var requestLogging bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server: webhook receiver, status poll and reconciliation workers`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Router    *chi.Mux
	Queue     *reconciliation.Queue
	Bus       *events.EventBus
	Logger    *slog.Logger
	Telemetry telemetry.ShutdownFunc
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	resumeCtx, stopResume := context.WithCancel(context.Background())
	go deps.Queue.Resume(resumeCtx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		deps.Logger.Error("Server shutdown error", "error", err)
	}

	// in-flight reconciliations go back to pending and are resumed on next start
	stopResume()
	deps.Queue.Shutdown()
	if err := deps.Bus.Wait(ctx); err != nil {
		deps.Logger.Warn("Notification delivery did not finish", "error", err)
	}

	if err := deps.Telemetry(ctx); err != nil {
		deps.Logger.Error("Telemetry shutdown error", "error", err)
	}
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}

	deps.Logger.Info("Server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func initializeDependencies() (*Dependencies, error) {
	cfg, lg, shutdownTelemetry, err := bootstrap(context.Background())
	if err != nil {
		return nil, err
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db, cfg.Env)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	stack := buildReconciliationStack(cfg, gdb, lg)
	queue := reconciliation.NewQueue(queueConfig(cfg.Payment), stack.JobStore, stack.Reconciler, lg)

	authService := auth.NewService(
		authPostgres.NewRepository(db),
		auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration),
	)

	handlers := rest.Handlers{
		Auth:  auth.NewHandler(authService, lg),
		RBAC:  auth.NewRBACAuthorization(lg),
		Order: order.NewHandler(queue, order.NewService(stack.OrderRepo, cfg.Order.StatusWindow, lg), lg),
	}

	router := chi.NewRouter()
	if err := rest.RegisterAllRoutes(router, db.DB, handlers, rest.Options{
		AllowedOrigins: cfg.Server.Origins(),
		RequestLogging: requestLogging,
		HealthChecks:   []rest.HealthCheck{queueHealthCheck(queue, cfg.Payment.JobQueueSize)},
	}, lg); err != nil {
		queue.Shutdown()
		_ = db.Close()
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	return &Dependencies{
		Config:    cfg,
		DB:        db,
		Router:    router,
		Queue:     queue,
		Bus:       stack.Bus,
		Logger:    lg,
		Telemetry: shutdownTelemetry,
	}, nil
}

func init() {
	httpServerCmd.Flags().BoolVar(&requestLogging, "log-requests", false, "log every request and response body")
}

// queueHealthCheck degrades health while the in-process backlog is at capacity;
// jobs past that point wait in postgres for the resumer.
func queueHealthCheck(queue *reconciliation.Queue, capacity int) rest.HealthCheck {
	return rest.HealthCheck{
		Name: "reconciliation_queue",
		Run:  func(ctx context.Context) (map[string]any, error) {
			inFlight := queue.InFlight()
			details := map[string]any{"in_flight": inFlight, "capacity": capacity}
			if capacity > 0 && inFlight >= capacity {
				return details, fmt.Errorf("reconciliation backlog at capacity (%d)", inFlight)
			}
			return details, nil
		},
	}
}
