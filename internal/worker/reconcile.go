package worker

import (
	"context"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/platforms"
	"github.com/desertthunder/fitx/internal/shared"
)

// ambiguousReason is recorded when an ambiguous upload cannot be resolved
// either way.
var ambiguousReason = shared.ErrAmbiguousResult.Error()

// Reconciler resolves an ambiguous push result into a settled outcome.
//
// The near-time lookup is a heuristic, not a guaranteed dedup; isolating it
// behind this interface keeps its false-positive behavior testable and
// swappable.
type Reconciler interface {
	Resolve(ctx context.Context, ref models.ActivityRef) models.ItemOutcome
}

// FailReconciler settles every ambiguous upload as failed. Used when the
// reconcile policy is "fail".
type FailReconciler struct{}

func (FailReconciler) Resolve(ctx context.Context, ref models.ActivityRef) models.ItemOutcome {
	return models.ItemOutcome{
		SourceID: ref.ID,
		Name:     ref.Name,
		Result:   models.OutcomeFailed,
		Reason:   ambiguousReason,
	}
}

// TimeWindowReconciler searches the destination for an existing activity
// whose start time falls within a window of the pushed item's start time. A
// match settles the item as a duplicate; anything else is failed as
// ambiguous.
type TimeWindowReconciler struct {
	dest       platforms.Client
	gate       *Gate
	window     time.Duration
	searchDays int
}

// NewTimeWindowReconciler creates a reconciler that queries dest over
// ±searchDays around the item's start time.
func NewTimeWindowReconciler(dest platforms.Client, gate *Gate, window time.Duration, searchDays int) *TimeWindowReconciler {
	if gate == nil {
		gate = NewGate(0)
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if searchDays <= 0 {
		searchDays = 1
	}
	return &TimeWindowReconciler{dest: dest, gate: gate, window: window, searchDays: searchDays}
}

func (r *TimeWindowReconciler) Resolve(ctx context.Context, ref models.ActivityRef) models.ItemOutcome {
	outcome := models.ItemOutcome{SourceID: ref.ID, Name: ref.Name}

	if ref.StartTime.IsZero() {
		outcome.Result = models.OutcomeFailed
		outcome.Reason = ambiguousReason
		return outcome
	}

	rng := models.DateRange{
		Start: ref.StartTime.AddDate(0, 0, -r.searchDays),
		End:   ref.StartTime.AddDate(0, 0, r.searchDays),
	}

	if err := r.gate.Wait(ctx); err != nil {
		outcome.Result = models.OutcomeFailed
		outcome.Reason = ambiguousReason
		return outcome
	}

	existing, err := r.dest.ListActivities(ctx, rng, nil)
	if err != nil {
		outcome.Result = models.OutcomeFailed
		outcome.Reason = ambiguousReason
		return outcome
	}

	if match, ok := r.nearest(ref.StartTime, existing); ok {
		outcome.Result = models.OutcomeDuplicate
		outcome.DestinationID = match.ID
		return outcome
	}

	outcome.Result = models.OutcomeFailed
	outcome.Reason = ambiguousReason
	return outcome
}

// nearest returns the existing activity closest to start within the window.
func (r *TimeWindowReconciler) nearest(start time.Time, existing []models.ActivityRef) (models.ActivityRef, bool) {
	var (
		best     models.ActivityRef
		bestDiff time.Duration
		found    bool
	)

	for _, candidate := range existing {
		if candidate.StartTime.IsZero() {
			continue
		}
		diff := candidate.StartTime.Sub(start)
		if diff < 0 {
			diff = -diff
		}
		if diff > r.window {
			continue
		}
		if !found || diff < bestDiff {
			best, bestDiff, found = candidate, diff, true
		}
	}

	return best, found
}
