package worker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
)

// Worker polls the job store for pending jobs and runs them one at a time
// through an [Engine]. A job failure never stops the loop.
type Worker struct {
	jobs     *store.JobStore
	engine   *Engine
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	current string
}

// NewWorker creates a worker polling at the given interval.
func NewWorker(jobs *store.JobStore, engine *Engine, interval time.Duration, logger *log.Logger) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = shared.NewLogger(os.Stderr)
	}
	return &Worker{jobs: jobs, engine: engine, interval: interval, logger: logger}
}

// CurrentJob returns the ID of the job being executed, or "" when idle.
func (w *Worker) CurrentJob() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Busy reports whether a job is currently executing.
func (w *Worker) Busy() bool {
	return w.CurrentJob() != ""
}

// Run sweeps jobs interrupted by a previous process, then polls for pending
// jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context, progress chan<- ProgressUpdate) error {
	swept, err := w.jobs.SweepInterrupted()
	if err != nil {
		return err
	}
	if swept > 0 {
		w.logger.Warn("recovered interrupted jobs", "count", swept)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx, progress)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick claims and runs at most one job.
func (w *Worker) tick(ctx context.Context, progress chan<- ProgressUpdate) {
	if ctx.Err() != nil {
		return
	}

	job, err := w.jobs.ClaimNextPending()
	if err != nil {
		w.logger.Error("claim failed", "err", err)
		return
	}
	if job == nil {
		return
	}

	w.mu.Lock()
	w.current = job.ID
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.current = ""
		w.mu.Unlock()
	}()

	w.logger.Info("job claimed", "job", job.ID, "range", job.Range.String())
	w.engine.sendProgress(progress, claimedUpdate(job))

	if err := w.engine.Run(ctx, job, progress); err != nil {
		w.logger.Error("job execution failed", "job", job.ID, "err", err)
		return
	}

	w.logger.Info("job settled", "job", job.ID, "status", job.Status,
		"succeeded", job.Counts.Succeeded, "skipped", job.Counts.Skipped, "failed", job.Counts.Failed)
}
