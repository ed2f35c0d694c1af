package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/desertthunder/fitx/internal/worker"
	"github.com/urfave/cli/v3"
)

// WorkerRun runs the background worker until interrupted.
func (r *Runner) WorkerRun(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	source, dest, err := r.buildClients(db)
	if err != nil {
		return err
	}

	jobs := store.NewJobStore(db)
	engine := r.buildEngine(jobs, source, dest)
	w := worker.NewWorker(jobs, engine, r.config.Worker.PollInterval(), r.logger)

	progressCh := make(chan worker.ProgressUpdate, 50)
	go r.printProgress(progressCh)

	r.logger.Info("worker started", "source", source.Name(), "dest", dest.Name(), "poll", r.config.Worker.PollInterval())
	err = w.Run(ctx, progressCh)
	close(progressCh)

	if errors.Is(err, context.Canceled) {
		r.logger.Info("worker stopped")
		return nil
	}
	return err
}

// TransferRun enqueues a one-off job and runs the worker until it settles.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	rng, err := models.ParseDateRange(cmd.String("start"), cmd.String("end"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	source, dest, err := r.buildClients(db)
	if err != nil {
		return err
	}

	jobs := store.NewJobStore(db)
	job := &models.Job{Range: rng}
	if err := jobs.Create(job); err != nil {
		return err
	}

	r.writePlain("Starting activity transfer...\n")
	r.writePlain("Source: %s\n", source.Name())
	r.writePlain("Destination: %s\n", dest.Name())
	r.writePlain("Range: %s\n\n", job.Range)

	engine := r.buildEngine(jobs, source, dest)
	w := worker.NewWorker(jobs, engine, 200*time.Millisecond, r.logger)

	// Create progress channel and goroutine to handle updates
	progressCh := make(chan worker.ProgressUpdate, 50)
	go r.printProgress(progressCh)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(workerCtx, progressCh) }()

	// Poll until our job reaches a terminal state, then stop the worker.
	var final *models.Job
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-ctx.Done():
			break poll
		case <-ticker.C:
			current, err := jobs.Get(job.ID)
			if err != nil {
				cancel()
				<-done
				close(progressCh)
				return err
			}
			if current.Status.Terminal() {
				final = current
				break poll
			}
		}
	}
	cancel()
	<-done
	close(progressCh)

	if final == nil {
		return ctx.Err()
	}

	// Output summary
	r.writePlain("\n")
	r.writePlainHeader(fmt.Sprintf("Transfer %s", final.Status))
	r.writePlain("Range: %s (%d activities)\n", final.Range, final.Counts.Total)
	r.writePlain("Succeeded: %d\n", final.Counts.Succeeded)
	r.writePlain("Skipped (duplicates): %d\n", final.Counts.Skipped)
	r.writePlain("Failed: %d\n", final.Counts.Failed)
	if final.Error != "" {
		r.writePlain("Error: %s\n", final.Error)
	}

	if final.Counts.Failed > 0 {
		items, err := jobs.Items(final.ID)
		if err == nil {
			r.writePlain("\nFailed items:\n")
			for _, item := range items {
				if item.Result == models.OutcomeFailed {
					r.writePlain("  - %s: %s\n", item.Name, item.Reason)
				}
			}
		}
	}

	return nil
}

// printProgress consumes worker progress updates and renders them per phase.
func (r *Runner) printProgress(progressCh <-chan worker.ProgressUpdate) {
	for update := range progressCh {
		switch update.Phase {
		case worker.Claim:
			r.writePlain("▶ %s\n", update.Message)
		case worker.Authenticate:
			r.writePlain("🔑 %s\n", update.Message)
		case worker.ListSource:
			r.writePlain("\n📥 %s\n", update.Message)
		case worker.FetchItem, worker.PushItem, worker.Reconcile:
			r.writePlain("   %s\n", update.Message)
		case worker.Finalize:
			r.writePlain("\n🏁 %s\n", update.Message)
		}
	}
}
