package reconciliation

import (
	"context"
	"log/slog"
	"sync"
)

type Worker struct {
	ID          int
	WorkerPool  chan chan Task
	TaskChannel chan Task
	Logger      *slog.Logger
}

func NewWorker(id int, workerPool chan chan Task, logger *slog.Logger) *Worker {
	return &Worker{
		ID:          id,
		WorkerPool:  workerPool,
		TaskChannel: make(chan Task),
		Logger:      logger,
	}
}

// Start registers the worker's channel with the pool after every task and
// runs tasks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(Task)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.TaskChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case task := <-w.TaskChannel:
				w.Logger.Debug("worker processing task", "worker_id", w.ID, "payment_id", task.PaymentID)
				process(task)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}
