package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Job parameter and state errors
	ErrValidation        = fmt.Errorf("validation failed")
	ErrJobNotFound       = fmt.Errorf("job not found")
	ErrAccountNotFound   = fmt.Errorf("account not found")
	ErrRuleNotFound      = fmt.Errorf("schedule rule not found")
	ErrInvalidTransition = fmt.Errorf("invalid job state transition")

	// Authentication errors (fatal per job)
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Transfer errors. List failures abort the job; fetch/push failures are
	// item-scoped and never propagate outside the item loop.
	ErrListFailed      = fmt.Errorf("activity listing failed")
	ErrFetchFailed     = fmt.Errorf("activity download failed")
	ErrPushFailed      = fmt.Errorf("activity upload failed")
	ErrAmbiguousResult = fmt.Errorf("ambiguous upload result")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
)
