package worker

import (
	"context"
	"testing"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/store"
	tu "github.com/desertthunder/fitx/internal/testing"
)

func waitForStatus(t *testing.T, jobs *store.JobStore, id string, want models.JobStatus) *models.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}

	job, _ := jobs.Get(id)
	t.Fatalf("job %s never reached %s, stuck at %s", id, want, job.Status)
	return nil
}

func TestWorkerRun(t *testing.T) {
	t.Run("PicksUpPendingJob", func(t *testing.T) {
		jobs, _ := setupJobStore(t)

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		job := &models.Job{Range: rng}
		if err := jobs.Create(job); err != nil {
			t.Fatal(err)
		}

		engine := newEngine(t, jobs, &tu.MockClient{ListActivitiesFunc: listN(2)}, &tu.MockClient{})
		w := NewWorker(jobs, engine, 10*time.Millisecond, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(ctx, nil)
		}()

		got := waitForStatus(t, jobs, job.ID, models.StatusCompleted)
		if got.Counts.Succeeded != 2 {
			t.Errorf("expected 2 succeeded, got %+v", got.Counts)
		}

		cancel()
		<-done
	})

	t.Run("SweepsInterruptedAtStartup", func(t *testing.T) {
		jobs, db := setupJobStore(t)

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		job := &models.Job{Range: rng}
		if err := jobs.Create(job); err != nil {
			t.Fatal(err)
		}
		// Simulate a job left running by a crashed process.
		if _, err := db.Exec(`UPDATE jobs SET status = 'running', started_at = ? WHERE id = ?`,
			time.Now().Add(-time.Hour).UTC(), job.ID); err != nil {
			t.Fatal(err)
		}

		engine := newEngine(t, jobs, &tu.MockClient{}, &tu.MockClient{})
		w := NewWorker(jobs, engine, 10*time.Millisecond, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(ctx, nil)
		}()

		got := waitForStatus(t, jobs, job.ID, models.StatusFailed)
		if got.Error != "interrupted" {
			t.Errorf("swept job should carry the interrupted reason, got %q", got.Error)
		}

		cancel()
		<-done
	})

	t.Run("SurvivesJobFailure", func(t *testing.T) {
		jobs, _ := setupJobStore(t)

		rng, _ := models.ParseDateRange("2024-01-01", "2024-01-07")
		broken := &models.Job{Range: rng}
		healthy := &models.Job{Range: rng}
		for _, job := range []*models.Job{broken, healthy} {
			if err := jobs.Create(job); err != nil {
				t.Fatal(err)
			}
		}

		var listed int
		source := &tu.MockClient{
			ListActivitiesFunc: func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
				listed++
				if listed == 1 {
					return nil, context.DeadlineExceeded
				}
				return []models.ActivityRef{{ID: "a1", Name: "Run"}}, nil
			},
		}

		engine := newEngine(t, jobs, source, &tu.MockClient{})
		w := NewWorker(jobs, engine, 10*time.Millisecond, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(ctx, nil)
		}()

		// One of the two jobs fails at listing; the worker must keep going
		// and complete the other.
		completed, err := waitForOne(jobs, models.StatusCompleted)
		if err != nil {
			t.Fatal(err)
		}
		failed, err := waitForOne(jobs, models.StatusFailed)
		if err != nil {
			t.Fatal(err)
		}
		if completed.ID == failed.ID {
			t.Error("expected two distinct settled jobs")
		}

		cancel()
		<-done
	})

	t.Run("IdleWhenBusy", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		engine := newEngine(t, jobs, &tu.MockClient{}, &tu.MockClient{})
		w := NewWorker(jobs, engine, 10*time.Millisecond, quietLogger())

		if w.Busy() {
			t.Error("fresh worker should be idle")
		}
		if w.CurrentJob() != "" {
			t.Errorf("idle worker has current job %q", w.CurrentJob())
		}
	})
}

func waitForOne(jobs *store.JobStore, status models.JobStatus) (*models.Job, error) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		settled, err := jobs.List(status, 1)
		if err != nil {
			return nil, err
		}
		if len(settled) == 1 {
			return settled[0], nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, context.DeadlineExceeded
}
