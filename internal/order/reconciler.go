package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	mp "github.com/offszn/marketplace/internal/core/datamodel/mercadopago"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second
)

type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*mp.Payment, error)
}

type OrderPersister interface {
	Persist(ctx context.Context, paymentID string, payment *mp.Payment) (*PersistResult, error)
}

// ReconcileConfig is the fixed polling policy: MaxAttempts lookups, each one
// preceded by a flat RetryDelay.
type ReconcileConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type Result struct {
	PaymentID string
	Outcome   Outcome
	Attempts  int
	OrderID   string
	LastError error
}

type Reconciler struct {
	fetcher   PaymentFetcher
	persister OrderPersister
	cfg       ReconcileConfig
	logger    *slog.Logger
	tracer    trace.Tracer

	attemptCounter metric.Int64Counter
	outcomeCounter metric.Int64Counter
}

func NewReconciler(fetcher PaymentFetcher, persister OrderPersister, cfg ReconcileConfig, logger *slog.Logger) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter("offszn/order")
	attempts, err := meter.Int64Counter("offszn.reconciliation.attempts",
		metric.WithDescription("Payment lookups made while reconciling"))
	if err != nil {
		attempts = noop.Int64Counter{}
	}
	outcomes, err := meter.Int64Counter("offszn.reconciliation.outcomes",
		metric.WithDescription("Finished reconciliations by outcome"))
	if err != nil {
		outcomes = noop.Int64Counter{}
	}

	return &Reconciler{
		fetcher:        fetcher,
		persister:      persister,
		cfg:            cfg,
		logger:         logger,
		tracer:         otel.Tracer("offszn/order"),
		attemptCounter: attempts,
		outcomeCounter: outcomes,
	}
}

// Reconcile polls the provider until the payment settles or the attempt budget
// runs out. Only cancellation produces a non-nil error; every other ending is
// described by Result.Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "order.Reconcile", trace.WithAttributes(
		attribute.String("payment.id", paymentID),
		attribute.Int("reconcile.max_attempts", r.cfg.MaxAttempts)))
	defer span.End()

	log := r.logger.With("payment_id", paymentID)
	result := &Result{PaymentID: paymentID}

	// first delay; go-retry only waits between attempts
	if err := sleep(ctx, r.cfg.RetryDelay); err != nil {
		return r.finish(ctx, span, result, OutcomeCancelled, err)
	}

	backoff := retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), retry.NewConstant(r.cfg.RetryDelay))

	var terminal error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Attempts++
		r.attemptCounter.Add(ctx, 1)
		attemptLog := log.With("attempt", result.Attempts, "max_attempts", r.cfg.MaxAttempts)

		payment, err := r.fetcher.GetPayment(ctx, paymentID)
		if err != nil {
			attemptLog.Warn("payment lookup failed", "error", err)
			result.LastError = err
			return retry.RetryableError(err)
		}

		if !payment.Status.IsSettled() {
			attemptLog.Info("payment not settled yet", "status", payment.Status, "status_detail", payment.StatusDetail)
			result.LastError = fmt.Errorf("payment status %q", payment.Status)
			return retry.RetryableError(result.LastError)
		}

		persisted, err := r.persister.Persist(ctx, paymentID, payment)
		if err != nil {
			result.LastError = err
			if IsTerminal(err) {
				terminal = err
				return err
			}
			attemptLog.Error("failed to persist approved payment", "error", err)
			return retry.RetryableError(err)
		}

		result.LastError = nil
		result.OrderID = persisted.Order.ID
		if !persisted.Created {
			result.Outcome = OutcomeDuplicate
		} else {
			result.Outcome = OutcomeCompleted
		}
		return nil
	})

	switch {
	case err == nil:
		return r.finish(ctx, span, result, result.Outcome, nil)
	case ctx.Err() != nil:
		return r.finish(ctx, span, result, OutcomeCancelled, ctx.Err())
	case terminal != nil:
		log.Warn("payment reconciliation rejected", "error", terminal)
		return r.finish(ctx, span, result, OutcomeRejected, nil)
	default:
		log.Warn("payment reconciliation exhausted", "attempts", result.Attempts, "last_error", err)
		return r.finish(ctx, span, result, OutcomeExhausted, nil)
	}
}

func (r *Reconciler) finish(ctx context.Context, span trace.Span, result *Result, outcome Outcome, err error) (*Result, error) {
	result.Outcome = outcome
	span.SetAttributes(
		attribute.String("reconcile.outcome", string(outcome)),
		attribute.Int("reconcile.attempts", result.Attempts))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	// context may already be cancelled; record against a live one
	r.outcomeCounter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))

	if outcome == OutcomeCompleted || outcome == OutcomeDuplicate {
		r.logger.Info("payment reconciled",
			"payment_id", result.PaymentID,
			"order_id", result.OrderID,
			"outcome", outcome,
			"attempts", result.Attempts)
	}
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
