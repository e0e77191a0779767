package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a maintenance task run on a fixed interval
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Worker runs the console's maintenance jobs in the background
type Worker struct {
	logger *slog.Logger
	jobs   []Job

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *slog.Logger) *Worker {
	return &Worker{logger: logger.With("component", "worker")}
}

// Add registers a job. Jobs with a non-positive interval are disabled.
func (w *Worker) Add(job Job) {
	if job.Interval <= 0 {
		w.logger.Info("job disabled", "job", job.Name)
		return
	}
	w.jobs = append(w.jobs, job)
}

// Start runs every job once and then on its interval until Stop
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for _, job := range w.jobs {
		w.wg.Add(1)
		go w.loop(ctx, job)
		w.logger.Info("job scheduled", "job", job.Name, "interval", job.Interval)
	}
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context, job Job) {
	defer w.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		if err := job.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("job failed", "job", job.Name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
