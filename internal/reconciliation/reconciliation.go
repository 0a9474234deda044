package reconciliation

import (
	"context"
	"errors"
	"time"

	reconciliationDatamodel "github.com/offszn/marketplace/internal/core/datamodel/reconciliation"
	"github.com/offszn/marketplace/internal/order"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
	StatusRejected  Status = "rejected"
)

var (
	ErrQueueFull   = errors.New("reconciliation queue full")
	ErrQueueClosed = errors.New("reconciliation queue closed")

	errInFlight = errors.New("payment already in flight")
)

// StatusFor maps a reconciliation outcome onto the durable job status.
func StatusFor(outcome order.Outcome) Status {
	switch outcome {
	case order.OutcomeCompleted, order.OutcomeDuplicate:
		return StatusSucceeded
	case order.OutcomeExhausted:
		return StatusExhausted
	case order.OutcomeRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// JobStore is the durable side of the queue. Every submitted payment has one
// row; finished rows other than succeeded can be re-armed by a new submission.
type JobStore interface {
	// Upsert creates a pending job or re-arms an exhausted/rejected one.
	Upsert(ctx context.Context, paymentID, source string) (*reconciliationDatamodel.Job, error)
	MarkRunning(ctx context.Context, paymentID string) error
	MarkFinished(ctx context.Context, paymentID string, status Status, attempts int, lastErr string) error
	MarkPending(ctx context.Context, paymentID string) error
	ResetRunning(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, limit int) ([]*reconciliationDatamodel.Job, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*reconciliationDatamodel.Job, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, paymentID string) (*order.Result, error)
}

type Config struct {
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
	ResumeInterval time.Duration
	// StoreTimeout bounds bookkeeping writes made after a run was cancelled.
	StoreTimeout time.Duration
}

// Task is one unit of work handed to the worker pool.
type Task struct {
	PaymentID string
	Source    string
}
