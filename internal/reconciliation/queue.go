package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/offszn/marketplace/internal/order"
)

const (
	defaultMaxWorkers     = 10
	defaultJobQueueSize   = 100
	defaultResumeInterval = 30 * time.Second
	defaultStoreTimeout   = 5 * time.Second
)

// Queue runs reconciliations on a bounded worker pool backed by a durable job
// table. Submissions are recorded before they are dispatched, so a job that
// could not be queued, or was interrupted by a restart, is picked up again by
// Resume.
type Queue struct {
	store      JobStore
	reconciler Reconciler
	logger     *slog.Logger

	jobQueue       chan Task
	workerPool     chan chan Task
	maxWorkers     int
	resumeInterval time.Duration
	storeTimeout   time.Duration

	inflight sync.Map
	tasks    sync.WaitGroup
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	jobsCounter metric.Int64Counter
}

func NewQueue(cfg Config, store JobStore, reconciler Reconciler, logger *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = slog.Default()
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = defaultJobQueueSize
	}

	workerPoolSize := cfg.WorkerPoolSize
	if workerPoolSize < maxWorkers {
		workerPoolSize = maxWorkers
	}

	resumeInterval := cfg.ResumeInterval
	if resumeInterval <= 0 {
		resumeInterval = defaultResumeInterval
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	jobs, err := otel.Meter("offszn/reconciliation").Int64Counter("offszn.reconciliation.jobs",
		metric.WithDescription("Reconciliation jobs finished by outcome"))
	if err != nil {
		jobs = noop.Int64Counter{}
	}

	q := &Queue{
		store:          store,
		reconciler:     reconciler,
		logger:         logger,
		jobQueue:       make(chan Task, jobQueueSize),
		workerPool:     make(chan chan Task, workerPoolSize),
		maxWorkers:     maxWorkers,
		resumeInterval: resumeInterval,
		storeTimeout:   storeTimeout,
		ctx:            ctx,
		cancel:         cancel,
		jobsCounter:    jobs,
	}

	q.startWorkerPool()

	return q
}

func (q *Queue) startWorkerPool() {
	q.once.Do(func() {
		for i := 0; i < q.maxWorkers; i++ {
			worker := NewWorker(i, q.workerPool, q.logger)
			worker.Start(q.ctx, &q.wg, q.process)
		}

		q.wg.Add(1)
		go q.dispatch()

		q.logger.Info("reconciliation worker pool started",
			"max_workers", q.maxWorkers,
			"queue_size", cap(q.jobQueue))
	})
}

func (q *Queue) dispatch() {
	defer q.wg.Done()

	for {
		select {
		case task := <-q.jobQueue:
			select {
			case taskChannel := <-q.workerPool:
				select {
				case taskChannel <- task:
				case <-q.ctx.Done():
					q.logger.Info("dispatcher shutting down")
					return
				}
			case <-q.ctx.Done():
				q.logger.Info("dispatcher shutting down")
				return
			}
		case <-q.ctx.Done():
			q.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Submit records a reconciliation request and dispatches it without blocking.
// The returned status says what happened to the request: a payment that
// already reconciled successfully is not run again, one already in flight in
// this process is not run twice, and one that finds the buffer full stays
// pending for the resumer.
func (q *Queue) Submit(ctx context.Context, paymentID, source string) (order.SubmitStatus, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}

	job, err := q.store.Upsert(ctx, paymentID, source)
	if err != nil {
		return "", fmt.Errorf("failed to record reconciliation job for payment %s: %w", paymentID, err)
	}

	if Status(job.Status) == StatusSucceeded {
		q.logger.Info("payment already reconciled, skipping", "payment_id", paymentID, "source", source)
		return order.SubmitAlreadyReconciled, nil
	}

	err = q.enqueue(Task{PaymentID: paymentID, Source: source})
	switch {
	case err == nil:
		return order.SubmitQueued, nil
	case errors.Is(err, errInFlight):
		return order.SubmitInFlight, nil
	case errors.Is(err, ErrQueueFull):
		q.logger.Warn("reconciliation queue full, job left pending",
			"payment_id", paymentID,
			"queue_capacity", cap(q.jobQueue))
		return order.SubmitDeferred, nil
	default:
		return "", err
	}
}

func (q *Queue) enqueue(task Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	if _, loaded := q.inflight.LoadOrStore(task.PaymentID, struct{}{}); loaded {
		q.logger.Debug("payment already in flight", "payment_id", task.PaymentID, "source", task.Source)
		return errInFlight
	}

	q.tasks.Add(1)
	select {
	case q.jobQueue <- task:
		q.logger.Info("reconciliation queued",
			"payment_id", task.PaymentID,
			"source", task.Source,
			"queue_length", len(q.jobQueue))
		return nil
	default:
		q.tasks.Done()
		q.inflight.Delete(task.PaymentID)
		return ErrQueueFull
	}
}

func (q *Queue) process(task Task) {
	defer q.tasks.Done()
	defer q.inflight.Delete(task.PaymentID)

	log := q.logger.With("payment_id", task.PaymentID, "source", task.Source)

	// a submission can read the job while an earlier run is still finishing it
	if job, err := q.store.FindByPaymentID(q.ctx, task.PaymentID); err != nil {
		log.Warn("failed to load job before running", "error", err)
	} else if Status(job.Status) == StatusSucceeded {
		log.Info("payment reconciled by an earlier run, skipping")
		return
	}

	if err := q.store.MarkRunning(q.ctx, task.PaymentID); err != nil {
		log.Warn("failed to mark job running", "error", err)
	}

	result, err := q.reconciler.Reconcile(q.ctx, task.PaymentID)

	// bookkeeping must survive a shutdown that cancelled the run
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), q.storeTimeout)
	defer cancel()

	if err != nil || result == nil || result.Outcome == order.OutcomeCancelled {
		log.Info("reconciliation interrupted, job returned to pending", "error", err)
		if err := q.store.MarkPending(storeCtx, task.PaymentID); err != nil {
			log.Error("failed to return job to pending", "error", err)
		}
		return
	}

	status := StatusFor(result.Outcome)
	lastErr := ""
	if result.LastError != nil {
		lastErr = result.LastError.Error()
	}

	if err := q.store.MarkFinished(storeCtx, task.PaymentID, status, result.Attempts, lastErr); err != nil {
		log.Error("failed to record reconciliation result", "status", status, "error", err)
	}

	q.jobsCounter.Add(storeCtx, 1, metric.WithAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.String("source", task.Source)))

	log.Info("reconciliation job finished",
		"status", status,
		"outcome", result.Outcome,
		"attempts", result.Attempts,
		"order_id", result.OrderID)
}

// Resume returns jobs left running by a previous process to pending, then
// keeps feeding pending jobs to the pool until ctx or the queue is done.
func (q *Queue) Resume(ctx context.Context) {
	if n, err := q.store.ResetRunning(ctx); err != nil {
		q.logger.Error("failed to reset interrupted jobs", "error", err)
	} else if n > 0 {
		q.logger.Info("interrupted reconciliation jobs returned to pending", "count", n)
	}

	ticker := time.NewTicker(q.resumeInterval)
	defer ticker.Stop()

	for {
		q.resumePending(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) resumePending(ctx context.Context) int {
	jobs, err := q.store.ListPending(ctx, cap(q.jobQueue))
	if err != nil {
		q.logger.Error("failed to list pending reconciliation jobs", "error", err)
		return 0
	}

	queued := 0
	for _, job := range jobs {
		err := q.enqueue(Task{PaymentID: job.PaymentID, Source: job.Source})
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			break
		}
		if err == nil {
			queued++
		}
	}
	return queued
}

// Drain processes pending jobs until none are left, then returns. Used by the
// standalone worker command.
func (q *Queue) Drain(ctx context.Context) error {
	if n, err := q.store.ResetRunning(ctx); err != nil {
		return fmt.Errorf("failed to reset interrupted jobs: %w", err)
	} else if n > 0 {
		q.logger.Info("interrupted reconciliation jobs returned to pending", "count", n)
	}

	for {
		jobs, err := q.store.ListPending(ctx, cap(q.jobQueue))
		if err != nil {
			return fmt.Errorf("failed to list pending jobs: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		q.logger.Info("draining pending reconciliation jobs", "count", len(jobs))
		for _, job := range jobs {
			err := q.enqueue(Task{PaymentID: job.PaymentID, Source: job.Source})
			if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
				break
			}
		}

		done := make(chan struct{})
		go func() {
			q.tasks.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// InFlight reports how many payments are queued or running in this process.
func (q *Queue) InFlight() int {
	n := 0
	q.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (q *Queue) Shutdown() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	q.logger.Info("shutting down reconciliation queue")
	q.cancel()
	q.wg.Wait()
	q.logger.Info("reconciliation queue shutdown complete")
}
