package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	tu "github.com/desertthunder/fitx/internal/testing"
)

func TestFailReconciler(t *testing.T) {
	ref := models.ActivityRef{ID: "a1", Name: "Morning Run"}

	outcome := FailReconciler{}.Resolve(context.Background(), ref)
	if outcome.Result != models.OutcomeFailed || outcome.Reason != ambiguousReason {
		t.Errorf("expected failed/%s, got %+v", ambiguousReason, outcome)
	}
	if outcome.SourceID != "a1" {
		t.Errorf("source id not carried: %+v", outcome)
	}
}

func TestTimeWindowReconciler(t *testing.T) {
	start := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	ref := models.ActivityRef{ID: "a1", Name: "Morning Run", StartTime: start}

	t.Run("MatchWithinWindow", func(t *testing.T) {
		dest := &tu.MockClient{
			ListActivitiesFunc: func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
				if !rng.Contains(start) {
					t.Errorf("search range %s should cover the item's start", rng)
				}
				return []models.ActivityRef{
					{ID: "far", StartTime: start.Add(2 * time.Hour)},
					{ID: "near", StartTime: start.Add(5 * time.Minute)},
				}, nil
			},
		}

		r := NewTimeWindowReconciler(dest, nil, 15*time.Minute, 1)
		outcome := r.Resolve(context.Background(), ref)

		if outcome.Result != models.OutcomeDuplicate {
			t.Errorf("expected duplicate, got %+v", outcome)
		}
		if outcome.DestinationID != "near" {
			t.Errorf("expected nearest match, got %q", outcome.DestinationID)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		dest := &tu.MockClient{
			ListActivitiesFunc: func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
				return []models.ActivityRef{{ID: "far", StartTime: start.Add(3 * time.Hour)}}, nil
			},
		}

		outcome := NewTimeWindowReconciler(dest, nil, 15*time.Minute, 1).Resolve(context.Background(), ref)
		if outcome.Result != models.OutcomeFailed || outcome.Reason != ambiguousReason {
			t.Errorf("no near match should stay ambiguous, got %+v", outcome)
		}
	})

	t.Run("SearchError", func(t *testing.T) {
		dest := &tu.MockClient{
			ListActivitiesFunc: func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
				return nil, errors.New("listing unavailable")
			},
		}

		outcome := NewTimeWindowReconciler(dest, nil, 15*time.Minute, 1).Resolve(context.Background(), ref)
		if outcome.Result != models.OutcomeFailed {
			t.Errorf("search failure should settle as failed, got %+v", outcome)
		}
	})

	t.Run("NoStartTime", func(t *testing.T) {
		dest := &tu.MockClient{}

		outcome := NewTimeWindowReconciler(dest, nil, 15*time.Minute, 1).Resolve(context.Background(), models.ActivityRef{ID: "a2"})
		if outcome.Result != models.OutcomeFailed {
			t.Errorf("missing start time cannot reconcile, got %+v", outcome)
		}
		if dest.ListCalls != 0 {
			t.Error("no search should happen without a start time")
		}
	})
}

func TestGate(t *testing.T) {
	t.Run("SpacesCalls", func(t *testing.T) {
		gate := NewGate(30 * time.Millisecond)
		ctx := context.Background()

		begin := time.Now()
		for i := 0; i < 3; i++ {
			if err := gate.Wait(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(begin); elapsed < 50*time.Millisecond {
			t.Errorf("three calls at 30ms spacing finished in %v", elapsed)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		gate := NewGate(0)

		begin := time.Now()
		for i := 0; i < 100; i++ {
			if err := gate.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
		if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
			t.Errorf("disabled gate should not block, took %v", elapsed)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		gate := NewGate(time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		if err := gate.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()

		if err := gate.Wait(ctx); err == nil {
			t.Error("wait on cancelled context should fail")
		}
	})
}
