package worker

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/platforms"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
)

// interruptedReason marks a job whose process died or was shut down mid-run.
const interruptedReason = "interrupted"

// Engine runs one claimed job end to end. It owns both platform client
// sessions for the duration of the job.
type Engine struct {
	source      platforms.Client
	dest        platforms.Client
	jobs        *store.JobStore
	reconciler  Reconciler
	sourceGate  *Gate
	destGate    *Gate
	format      string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *log.Logger
}

// EngineOpts contains dependencies and tuning for creating an [Engine].
type EngineOpts struct {
	Source     platforms.Client
	Dest       platforms.Client
	Jobs       *store.JobStore
	Reconciler Reconciler
	SourceGate *Gate
	DestGate   *Gate

	// Format is the interchange format used for fetch and push. Defaults
	// to "fit".
	Format string

	// MaxAttempts is the number of tries per fetch/push call. Defaults to
	// 1 (no retry).
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	Logger *log.Logger
}

// NewEngine creates an Engine with the provided platform clients and store.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Reconciler == nil {
		opts.Reconciler = FailReconciler{}
	}
	if opts.SourceGate == nil {
		opts.SourceGate = NewGate(0)
	}
	if opts.DestGate == nil {
		opts.DestGate = NewGate(0)
	}
	if opts.Format == "" {
		opts.Format = "fit"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(os.Stderr)
	}

	return &Engine{
		source:      opts.Source,
		dest:        opts.Dest,
		jobs:        opts.Jobs,
		reconciler:  opts.Reconciler,
		sourceGate:  opts.SourceGate,
		destGate:    opts.DestGate,
		format:      opts.Format,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		logger:      opts.Logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Run executes a job that has already been claimed as running. Job-level
// failures (authentication, listing, bad items) finalize the job and return
// nil; only store-level errors propagate.
func (e *Engine) Run(ctx context.Context, job *models.Job, progress chan<- ProgressUpdate) error {
	if e.source == nil || e.dest == nil {
		return fmt.Errorf("%w: platform clients not initialized", shared.ErrServiceUnavailable)
	}

	logger := shared.WithLogger(e.logger, "job", job.ID)

	for _, client := range []platforms.Client{e.source, e.dest} {
		e.sendProgress(progress, authUpdate(job.ID, client.Name()))
		if err := client.Authenticate(ctx); err != nil {
			logger.Error("authentication failed", "platform", client.Name(), "err", err)
			return e.finalize(job, models.StatusFailed, err.Error(), progress)
		}
	}

	if err := e.sourceGate.Wait(ctx); err != nil {
		return e.finalize(job, models.StatusFailed, interruptedReason, progress)
	}

	refs, err := e.source.ListActivities(ctx, job.Range, job.Filters)
	if err != nil {
		logger.Error("listing failed", "err", err)
		return e.finalize(job, models.StatusFailed, err.Error(), progress)
	}

	if err := e.jobs.SetTotal(job.ID, len(refs)); err != nil {
		return err
	}
	job.Counts.Total = len(refs)
	e.sendProgress(progress, listUpdate(job.ID, len(refs)))

	// Items settle strictly in listing order; one bad item never aborts
	// the batch.
	for i, ref := range refs {
		cancelled, err := e.jobs.CancelRequested(job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			logger.Info("cancel observed", "after_items", i)
			return e.finalize(job, models.StatusCancelled, "", progress)
		}
		if ctx.Err() != nil {
			logger.Warn("shutdown during job", "after_items", i)
			return e.finalize(job, models.StatusFailed, interruptedReason, progress)
		}

		outcome := e.processItem(ctx, job, ref, i+1, len(refs), progress)

		if err := e.jobs.RecordItem(job.ID, i, outcome); err != nil {
			return err
		}
		if err := e.jobs.UpdateProgress(job.ID, outcome.Result.Delta()); err != nil {
			return err
		}
		job.Counts.Apply(outcome.Result.Delta())

		e.sendProgress(progress, outcomeUpdate(job.ID, i+1, len(refs), outcome))
	}

	status, message := finalStatus(job.Counts)
	return e.finalize(job, status, message, progress)
}

// processItem fetches one activity from the source and pushes it to the
// destination, settling the outcome. Errors become failed outcomes, never
// aborts.
func (e *Engine) processItem(ctx context.Context, job *models.Job, ref models.ActivityRef, step, total int, progress chan<- ProgressUpdate) models.ItemOutcome {
	outcome := models.ItemOutcome{SourceID: ref.ID, Name: ref.Name}

	e.sendProgress(progress, fetchUpdate(job.ID, step, total, ref))

	var payload []byte
	err := e.withRetry(ctx, func() error {
		if err := e.sourceGate.Wait(ctx); err != nil {
			return err
		}
		var err error
		payload, err = e.source.FetchActivity(ctx, ref, e.format)
		return err
	})
	if err != nil {
		outcome.Result = models.OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}

	e.sendProgress(progress, pushUpdate(job.ID, step, total, ref))

	var result *platforms.UploadResult
	err = e.withRetry(ctx, func() error {
		if err := e.destGate.Wait(ctx); err != nil {
			return err
		}
		var err error
		result, err = e.dest.PushActivity(ctx, payload, platforms.Metadata{
			Name:      ref.Name,
			Type:      ref.Type,
			StartTime: ref.StartTime,
			Format:    e.format,
		})
		return err
	})
	if err != nil {
		outcome.Result = models.OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}

	switch result.Status {
	case platforms.UploadAccepted:
		outcome.Result = models.OutcomeSucceeded
		outcome.DestinationID = result.ActivityID
	case platforms.UploadDuplicate:
		outcome.Result = models.OutcomeDuplicate
		outcome.DestinationID = result.ActivityID
	case platforms.UploadRejected:
		outcome.Result = models.OutcomeFailed
		outcome.Reason = result.Reason
		if outcome.Reason == "" {
			outcome.Reason = "upload rejected"
		}
	default:
		e.sendProgress(progress, reconcileUpdate(job.ID, step, total, ref))
		outcome = e.reconciler.Resolve(ctx, ref)
	}

	return outcome
}

// withRetry runs op up to maxAttempts times with jittered exponential
// backoff between attempts.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil || attempt >= e.maxAttempts {
			return err
		}

		delay := e.backoffBase << (attempt - 1)
		if delay > e.backoffMax {
			delay = e.backoffMax
		}
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

func (e *Engine) finalize(job *models.Job, status models.JobStatus, message string, progress chan<- ProgressUpdate) error {
	if err := e.jobs.Finalize(job.ID, status, message); err != nil {
		return err
	}
	job.Status = status
	job.Error = message
	e.sendProgress(progress, finalizeUpdate(job.ID, status, job.Counts))
	return nil
}

// finalStatus maps accumulated counts to the job's terminal status once all
// listed items have settled. Duplicates are not failures. Only failed jobs
// carry an error message; partial outcomes are described by the counts alone.
func finalStatus(counts models.Counts) (models.JobStatus, string) {
	switch {
	case counts.Failed == 0:
		return models.StatusCompleted, ""
	case counts.Succeeded+counts.Skipped > 0:
		return models.StatusPartial, ""
	default:
		return models.StatusFailed, "all items failed"
	}
}
