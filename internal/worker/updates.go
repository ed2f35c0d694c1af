package worker

import (
	"fmt"

	"github.com/desertthunder/fitx/internal/models"
)

// ProgressUpdate represents a progress event during a running transfer job.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	JobID   string // Job the event belongs to
	Phase   Phase  // Operation phase
	Step    int    // Current item number within phase
	Total   int    // Total items in this job
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Claim Phase = iota
	Authenticate
	ListSource
	FetchItem
	PushItem
	Reconcile
	Finalize
)

func (p Phase) String() string {
	switch p {
	case Claim:
		return "claim"
	case Authenticate:
		return "authenticate"
	case ListSource:
		return "list_source"
	case FetchItem:
		return "fetch_item"
	case PushItem:
		return "push_item"
	case Reconcile:
		return "reconcile"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

func claimedUpdate(job *models.Job) ProgressUpdate {
	return ProgressUpdate{
		JobID:   job.ID,
		Phase:   Claim,
		Message: fmt.Sprintf("Claimed job %s (%s)", job.ID, job.Range),
		Data:    job,
	}
}

func authUpdate(jobID, platform string) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   Authenticate,
		Message: fmt.Sprintf("Authenticating with %s...", platform),
	}
}

func listUpdate(jobID string, total int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   ListSource,
		Total:   total,
		Message: fmt.Sprintf("Found %d activities to transfer", total),
	}
}

func fetchUpdate(jobID string, step, total int, ref models.ActivityRef) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   FetchItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching: %s...", step, total, ref.Name),
	}
}

func pushUpdate(jobID string, step, total int, ref models.ActivityRef) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   PushItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Uploading: %s...", step, total, ref.Name),
	}
}

func reconcileUpdate(jobID string, step, total int, ref models.ActivityRef) ProgressUpdate {
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   Reconcile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving ambiguous upload: %s...", step, total, ref.Name),
	}
}

func outcomeUpdate(jobID string, step, total int, outcome models.ItemOutcome) ProgressUpdate {
	marker := "✓"
	if outcome.Result == models.OutcomeFailed {
		marker = "✗"
	}
	message := fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, marker, outcome.Name, outcome.Result)
	if outcome.Reason != "" {
		message += ": " + outcome.Reason
	}
	return ProgressUpdate{
		JobID:   jobID,
		Phase:   PushItem,
		Step:    step,
		Total:   total,
		Message: message,
		Data:    outcome,
	}
}

func finalizeUpdate(jobID string, status models.JobStatus, counts models.Counts) ProgressUpdate {
	return ProgressUpdate{
		JobID: jobID,
		Phase: Finalize,
		Step:  counts.Processed(),
		Total: counts.Total,
		Message: fmt.Sprintf("Job %s: %d succeeded, %d skipped, %d failed",
			status, counts.Succeeded, counts.Skipped, counts.Failed),
		Data: status,
	}
}
