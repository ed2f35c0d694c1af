package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/urfave/cli/v3"
)

// JobsCreate enqueues a new transfer job over a date range.
func (r *Runner) JobsCreate(ctx context.Context, cmd *cli.Command) error {
	rng, err := models.ParseDateRange(cmd.String("start"), cmd.String("end"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	var filters []string
	if raw := cmd.String("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filters = append(filters, t)
			}
		}
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	job := &models.Job{Range: rng, Filters: filters}
	if err := store.NewJobStore(db).Create(job); err != nil {
		return err
	}

	r.logger.Info("job created", "id", job.ID, "range", job.Range)

	if cmd.Bool("json") {
		return r.writeJSON(job, cmd.Bool("pretty"))
	}
	r.writePlain("✓ Job %s created (%s)\n", job.ID, job.Range)
	r.writePlain("Run 'fitx worker run' or 'fitx serve' to execute it\n")
	return nil
}

// JobsList lists jobs, optionally filtered by status.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	var status models.JobStatus
	if raw := cmd.String("status"); raw != "" {
		status = models.JobStatus(raw)
		if !status.Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, raw)
		}
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := store.NewJobStore(db).List(status, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	if len(jobs) == 0 {
		r.writePlain("No jobs found\n")
		return nil
	}

	for _, job := range jobs {
		r.writePlain("%s  %-9s  %s  %d✓ %d≈ %d✗ of %d", job.ID, job.Status, job.Range, job.Counts.Succeeded, job.Counts.Skipped, job.Counts.Failed, job.Counts.Total)
		if job.Error != "" {
			r.writePlain("  (%s)", job.Error)
		}
		r.writePlain("\n")
	}
	return nil
}

// JobsGet shows one job by ID.
func (r *Runner) JobsGet(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job ID required", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := store.NewJobStore(db).Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Job %s", job.ID))
	r.writePlain("Status: %s\n", job.Status)
	r.writePlain("Range: %s\n", job.Range)
	if len(job.Filters) > 0 {
		r.writePlain("Filters: %s\n", strings.Join(job.Filters, ", "))
	}
	r.writePlain("Counts: %d succeeded, %d skipped, %d failed of %d\n", job.Counts.Succeeded, job.Counts.Skipped, job.Counts.Failed, job.Counts.Total)
	if job.Error != "" {
		r.writePlain("Error: %s\n", job.Error)
	}
	if job.CancelRequested {
		r.writePlain("Cancellation requested\n")
	}
	return nil
}

// JobsItems lists the per-item outcomes of one job in processing order.
func (r *Runner) JobsItems(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job ID required", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := store.NewJobStore(db)
	if _, err := jobs.Get(id); err != nil {
		return err
	}

	items, err := jobs.Items(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(items, cmd.Bool("pretty"))
	}

	if len(items) == 0 {
		r.writePlain("No items recorded\n")
		return nil
	}

	for i, item := range items {
		marker := "✓"
		if item.Result == models.OutcomeFailed {
			marker = "✗"
		}
		r.writePlain("%d. %s %s (%s)", i+1, marker, item.Name, item.Result)
		if item.Reason != "" {
			r.writePlain(": %s", item.Reason)
		}
		r.writePlain("\n")
	}
	return nil
}

// JobsCancel requests cooperative cancellation of a job.
func (r *Runner) JobsCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job ID required", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := store.NewJobStore(db)
	if err := jobs.RequestCancel(id); err != nil {
		return err
	}

	job, err := jobs.Get(id)
	if err != nil {
		return err
	}

	if job.Status.Terminal() {
		r.writePlain("Job %s already finished (%s)\n", job.ID, job.Status)
		return nil
	}
	r.writePlain("✓ Cancellation requested for job %s\n", job.ID)
	r.writePlain("The worker stops after the item currently in flight\n")
	return nil
}
