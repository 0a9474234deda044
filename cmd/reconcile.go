package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offszn/marketplace/internal/core/common/validation"
	"github.com/offszn/marketplace/internal/order"
	"github.com/offszn/marketplace/internal/reconciliation"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [payment-id]",
	Short: "Reconcile one Mercado Pago payment now",
	Long:  `Poll the provider for a payment and create its order if approved, in the foreground.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reconcileOne(args[0])
	},
}

func reconcileOne(paymentID string) error {
	if err := validation.ValidatePaymentID(paymentID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gdb, err := initGorm(db, cfg.Env)
	if err != nil {
		return err
	}

	stack := buildReconciliationStack(cfg, gdb, logger)

	existing, found, err := stack.Persister.Lookup(ctx, paymentID)
	if err != nil {
		return err
	}
	if found {
		if _, err := stack.JobStore.Upsert(ctx, paymentID, order.SourceCLI); err != nil {
			logger.Warn("failed to record reconciliation job", "payment_id", paymentID, "error", err)
		} else if err := stack.JobStore.MarkFinished(ctx, paymentID, reconciliation.StatusSucceeded, 0, ""); err != nil {
			logger.Warn("failed to record reconciliation outcome", "payment_id", paymentID, "error", err)
		}
		fmt.Fprintf(os.Stdout, "payment %s: already reconciled order=%s\n", paymentID, existing.ID)
		return nil
	}

	// keep the durable job row in step so the resumer does not run it again
	if _, err := stack.JobStore.Upsert(ctx, paymentID, order.SourceCLI); err != nil {
		return fmt.Errorf("failed to record reconciliation job: %w", err)
	}
	if err := stack.JobStore.MarkRunning(ctx, paymentID); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	result, err := stack.Reconciler.Reconcile(ctx, paymentID)
	if err != nil {
		_ = stack.JobStore.MarkPending(context.WithoutCancel(ctx), paymentID)
		return fmt.Errorf("reconciliation of %s interrupted: %w", paymentID, err)
	}

	lastErr := ""
	if result.LastError != nil {
		lastErr = result.LastError.Error()
	}
	if err := stack.JobStore.MarkFinished(ctx, paymentID, reconciliation.StatusFor(result.Outcome), result.Attempts, lastErr); err != nil {
		logger.Warn("failed to record reconciliation outcome", "payment_id", paymentID, "error", err)
	}

	fmt.Fprintf(os.Stdout, "payment %s: %s after %d attempt(s)", paymentID, result.Outcome, result.Attempts)
	if result.OrderID != "" {
		fmt.Fprintf(os.Stdout, " order=%s", result.OrderID)
	}
	if lastErr != "" {
		fmt.Fprintf(os.Stdout, " last_error=%q", lastErr)
	}
	fmt.Fprintln(os.Stdout)

	return nil
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
