package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/platforms"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
	tu "github.com/desertthunder/fitx/internal/testing"
)

func setupJobStore(t *testing.T) (*store.JobStore, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// An in-memory database exists per connection; the pool must stay on one.
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return store.NewJobStore(db), db
}

func claimJob(t *testing.T, jobs *store.JobStore, start, end string, filters ...string) *models.Job {
	t.Helper()

	rng, err := models.ParseDateRange(start, end)
	if err != nil {
		t.Fatal(err)
	}

	job := &models.Job{Range: rng, Filters: filters}
	if err := jobs.Create(job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	claimed, err := jobs.ClaimNextPending()
	if err != nil || claimed == nil {
		t.Fatalf("failed to claim job: %v", err)
	}

	return claimed
}

func listN(n int) func(context.Context, models.DateRange, []string) ([]models.ActivityRef, error) {
	return func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
		refs := make([]models.ActivityRef, n)
		for i := range refs {
			refs[i] = models.ActivityRef{
				ID:        fmt.Sprintf("a%d", i+1),
				Name:      fmt.Sprintf("Activity %d", i+1),
				Type:      "run",
				StartTime: time.Date(2024, 1, i+1, 8, 0, 0, 0, time.UTC),
			}
		}
		return refs, nil
	}
}

func quietLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func newEngine(t *testing.T, jobs *store.JobStore, source, dest *tu.MockClient) *Engine {
	t.Helper()
	return NewEngine(EngineOpts{
		Source: source,
		Dest:   dest,
		Jobs:   jobs,
		Logger: quietLogger(),
	})
}

func TestEngineRun(t *testing.T) {
	t.Run("AllSucceed", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{Platform: "COROS", ListActivitiesFunc: listN(3)}
		dest := &tu.MockClient{Platform: "Garmin"}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		want := models.Counts{Total: 3, Succeeded: 3}
		if got.Counts != want {
			t.Errorf("expected counts %+v, got %+v", want, got.Counts)
		}
		if source.AuthCalls != 1 || dest.AuthCalls != 1 {
			t.Error("both platforms should authenticate exactly once")
		}
	})

	t.Run("AllDuplicates", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(4)}
		dest := &tu.MockClient{
			PushActivityFunc: func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
				return &platforms.UploadResult{Status: platforms.UploadDuplicate}, nil
			},
		}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusCompleted {
			t.Errorf("duplicates are not failures, expected completed, got %s", got.Status)
		}
		if got.Counts.Skipped != 4 {
			t.Errorf("expected 4 skipped, got %+v", got.Counts)
		}
	})

	t.Run("DestAuthFailure", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(3)}
		dest := &tu.MockClient{
			AuthenticateFunc: func(ctx context.Context) error {
				return fmt.Errorf("%w: bad password", shared.ErrAuthFailed)
			},
		}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusFailed {
			t.Errorf("expected failed, got %s", got.Status)
		}
		if got.Counts.Total != 0 {
			t.Errorf("no items should be attempted, got %+v", got.Counts)
		}
		if source.ListCalls != 0 {
			t.Error("listing should not happen after auth failure")
		}
	})

	t.Run("ListFailure", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{
			ListActivitiesFunc: func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
				return nil, shared.ErrListFailed
			},
		}

		if err := newEngine(t, jobs, source, &tu.MockClient{}).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusFailed || got.Counts.Total != 0 {
			t.Errorf("expected failed with no items, got %s %+v", got.Status, got.Counts)
		}
	})

	t.Run("PartialScenario", func(t *testing.T) {
		// 3 items: first accepted, second duplicate, third fails at fetch.
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07", "run")

		source := &tu.MockClient{
			ListActivitiesFunc: listN(3),
			FetchActivityFunc: func(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error) {
				if ref.ID == "a3" {
					return nil, fmt.Errorf("%w: connection reset", shared.ErrFetchFailed)
				}
				return []byte("payload"), nil
			},
		}
		dest := &tu.MockClient{
			PushActivityFunc: func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
				if meta.Name == "Activity 2" {
					return &platforms.UploadResult{Status: platforms.UploadDuplicate}, nil
				}
				return &platforms.UploadResult{Status: platforms.UploadAccepted, ActivityID: "g1"}, nil
			},
		}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusPartial {
			t.Errorf("expected partial, got %s", got.Status)
		}
		if got.Error != "" {
			t.Errorf("partial job must not carry an error message, got %q", got.Error)
		}
		want := models.Counts{Total: 3, Succeeded: 1, Skipped: 1, Failed: 1}
		if got.Counts != want {
			t.Errorf("expected counts %+v, got %+v", want, got.Counts)
		}

		items, err := jobs.Items(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 recorded items, got %d", len(items))
		}
		results := []models.OutcomeResult{items[0].Result, items[1].Result, items[2].Result}
		wantResults := []models.OutcomeResult{models.OutcomeSucceeded, models.OutcomeDuplicate, models.OutcomeFailed}
		for i := range results {
			if results[i] != wantResults[i] {
				t.Errorf("item %d: expected %s, got %s", i, wantResults[i], results[i])
			}
		}
		if items[0].DestinationID != "g1" {
			t.Errorf("destination id not recorded: %+v", items[0])
		}
	})

	t.Run("AllFailed", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(2)}
		dest := &tu.MockClient{
			PushActivityFunc: func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
				return &platforms.UploadResult{Status: platforms.UploadRejected, Reason: "corrupt file"}, nil
			},
		}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusFailed || got.Error != "all items failed" {
			t.Errorf("expected failed/all items failed, got %s %q", got.Status, got.Error)
		}
	})

	t.Run("CancelBetweenItems", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(5)}
		var pushed int
		dest := &tu.MockClient{
			PushActivityFunc: func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
				pushed++
				if pushed == 2 {
					// Controller cancels while item 2 is in flight; the
					// item completes, items 3..5 never start.
					if err := jobs.RequestCancel(job.ID); err != nil {
						t.Error(err)
					}
				}
				return &platforms.UploadResult{Status: platforms.UploadAccepted, ActivityID: "g"}, nil
			},
		}

		if err := newEngine(t, jobs, source, dest).Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
		if got.Counts.Succeeded != 2 {
			t.Errorf("first 2 outcomes should be kept, got %+v", got.Counts)
		}
		if pushed != 2 {
			t.Errorf("items after the cancel must never be attempted, pushed %d", pushed)
		}
	})

	t.Run("AmbiguousFallsBackToReconciler", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(1)}
		dest := &tu.MockClient{
			PushActivityFunc: func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
				return &platforms.UploadResult{Status: platforms.UploadAmbiguous}, nil
			},
		}

		engine := NewEngine(EngineOpts{
			Source:     source,
			Dest:       dest,
			Jobs:       jobs,
			Reconciler: FailReconciler{},
			Logger:     quietLogger(),
		})
		if err := engine.Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		items, _ := jobs.Items(job.ID)
		if len(items) != 1 || items[0].Result != models.OutcomeFailed || items[0].Reason != ambiguousReason {
			t.Errorf("expected failed/%s item, got %+v", ambiguousReason, items)
		}
	})

	t.Run("RetriesTransientFetch", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		var attempts int
		source := &tu.MockClient{
			ListActivitiesFunc: listN(1),
			FetchActivityFunc: func(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error) {
				attempts++
				if attempts == 1 {
					return nil, errors.New("timeout")
				}
				return []byte("payload"), nil
			},
		}

		engine := NewEngine(EngineOpts{
			Source:      source,
			Dest:        &tu.MockClient{},
			Jobs:        jobs,
			MaxAttempts: 3,
			BackoffBase: time.Millisecond,
			BackoffMax:  5 * time.Millisecond,
			Logger:      quietLogger(),
		})
		if err := engine.Run(context.Background(), job, nil); err != nil {
			t.Fatal(err)
		}

		got, _ := jobs.Get(job.ID)
		if got.Status != models.StatusCompleted {
			t.Errorf("retry should recover the item, got %s", got.Status)
		}
		if attempts != 2 {
			t.Errorf("expected 2 fetch attempts, got %d", attempts)
		}
	})

	t.Run("ProgressUpdates", func(t *testing.T) {
		jobs, _ := setupJobStore(t)
		job := claimJob(t, jobs, "2024-01-01", "2024-01-07")

		source := &tu.MockClient{ListActivitiesFunc: listN(2)}
		progress := make(chan ProgressUpdate, 64)

		if err := newEngine(t, jobs, source, &tu.MockClient{}).Run(context.Background(), job, progress); err != nil {
			t.Fatal(err)
		}
		close(progress)

		phases := map[Phase]bool{}
		for update := range progress {
			phases[update.Phase] = true
			if update.JobID != job.ID {
				t.Errorf("update for wrong job: %+v", update)
			}
		}
		for _, want := range []Phase{Authenticate, ListSource, FetchItem, PushItem, Finalize} {
			if !phases[want] {
				t.Errorf("missing %s update", want)
			}
		}
	})
}

func TestFinalStatus(t *testing.T) {
	cases := []struct {
		counts  models.Counts
		want    models.JobStatus
		wantMsg string
	}{
		{models.Counts{Total: 3, Succeeded: 3}, models.StatusCompleted, ""},
		{models.Counts{Total: 3, Skipped: 3}, models.StatusCompleted, ""},
		{models.Counts{}, models.StatusCompleted, ""},
		{models.Counts{Total: 3, Succeeded: 1, Skipped: 1, Failed: 1}, models.StatusPartial, ""},
		{models.Counts{Total: 2, Skipped: 1, Failed: 1}, models.StatusPartial, ""},
		{models.Counts{Total: 2, Failed: 2}, models.StatusFailed, "all items failed"},
	}

	for _, tc := range cases {
		got, msg := finalStatus(tc.counts)
		if got != tc.want {
			t.Errorf("finalStatus(%+v) = %s, want %s", tc.counts, got, tc.want)
		}
		if msg != tc.wantMsg {
			t.Errorf("finalStatus(%+v) message = %q, want %q", tc.counts, msg, tc.wantMsg)
		}
	}
}
