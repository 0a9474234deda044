package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/offszn/marketplace/internal/reconciliation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background workers without the HTTP server",
	Long:  `Run background worker pools, such as draining durable reconciliation jobs.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Drain pending reconciliation jobs",
	Long:  `Reset interrupted jobs, then reconcile every pending payment until none are left.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
	maxAttempts    int
	retryDelay     time.Duration
	apiURL         string
)

func startReconcileWorker() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, logger, shutdownTelemetry, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	// Use command line flags if provided, otherwise use config values
	config.Payment.APIURL = getStringFlag(apiURL, config.Payment.APIURL)
	config.Payment.MaxAttempts = getIntFlag(maxAttempts, config.Payment.MaxAttempts)
	config.Payment.MaxWorkers = getIntFlag(maxWorkers, config.Payment.MaxWorkers)
	config.Payment.JobQueueSize = getIntFlag(jobQueueSize, config.Payment.JobQueueSize)
	config.Payment.WorkerPoolSize = getIntFlag(workerPoolSize, config.Payment.WorkerPoolSize)
	if retryDelay > 0 {
		config.Payment.RetryDelay = retryDelay
	}

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gdb, err := initGorm(db, config.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	stack := buildReconciliationStack(config, gdb, logger)
	queue := reconciliation.NewQueue(queueConfig(config.Payment), stack.JobStore, stack.Reconciler, logger)
	defer queue.Shutdown()

	logger.Info("starting reconciliation worker",
		"max_workers", config.Payment.MaxWorkers,
		"job_queue_size", config.Payment.JobQueueSize,
		"max_attempts", config.Payment.MaxAttempts,
		"retry_delay", config.Payment.RetryDelay,
		"api_url", config.Payment.APIURL)

	if err := queue.Drain(ctx); err != nil {
		logger.Warn("reconciliation worker stopped before draining", "error", err, "in_flight", queue.InFlight())
		return
	}

	logger.Info("reconciliation worker drained all pending jobs")
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Provider lookups per payment (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&retryDelay, "retry-delay", 0, "Delay before each provider lookup (overrides config)")
	reconcileWorkerCmd.Flags().StringVar(&apiURL, "api-url", "", "Mercado Pago API URL (overrides config)")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
