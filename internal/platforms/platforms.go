// package platforms defines interface Client for interacting with fitness platform APIs
//
// COROS Training Hub (source), Garmin Connect (destination)
package platforms

import (
	"context"
	"time"

	"github.com/desertthunder/fitx/internal/models"
)

// Client is the capability contract every platform implementation satisfies.
//
// A client is session-based: Authenticate must succeed before any other call.
// An authenticated client is owned exclusively by the worker for the duration
// of a job.
type Client interface {
	// Authenticate establishes a session with the platform.
	Authenticate(ctx context.Context) error

	// ListActivities returns activity references within the inclusive date
	// range, optionally filtered by activity type. Order is the platform's
	// own and is preserved by callers.
	ListActivities(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error)

	// FetchActivity downloads one activity's payload in the given
	// interchange format (e.g. "fit", "tcx").
	FetchActivity(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error)

	// PushActivity uploads a payload and reports how the platform
	// classified it.
	PushActivity(ctx context.Context, payload []byte, meta Metadata) (*UploadResult, error)

	// Name returns the platform name (e.g. "COROS", "Garmin")
	Name() string
}

// Metadata describes the activity being pushed, for naming and duplicate
// reconciliation on the destination.
type Metadata struct {
	Name      string
	Type      string
	StartTime time.Time
	Format    string
}

// UploadStatus classifies a push response.
type UploadStatus int

const (
	// UploadAccepted means the platform stored the activity under a new ID.
	UploadAccepted UploadStatus = iota
	// UploadDuplicate means the platform recognized the activity as already
	// present. This is not an error.
	UploadDuplicate
	// UploadRejected means the platform refused the payload.
	UploadRejected
	// UploadAmbiguous means the response carried neither a success nor a
	// failure indicator. Callers resolve it via reconciliation.
	UploadAmbiguous
)

func (s UploadStatus) String() string {
	switch s {
	case UploadAccepted:
		return "accepted"
	case UploadDuplicate:
		return "duplicate"
	case UploadRejected:
		return "rejected"
	case UploadAmbiguous:
		return "ambiguous"
	default:
		return ""
	}
}

// UploadResult is the decoded outcome of one push.
type UploadResult struct {
	Status UploadStatus
	// ActivityID is the destination's ID for the activity. Set for accepted
	// uploads and, when the platform reports it, for duplicates.
	ActivityID string
	// Reason carries the platform's message for rejected uploads.
	Reason string
}
