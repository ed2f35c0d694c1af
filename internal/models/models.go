package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a transfer job.
//
// Jobs move pending → running → one of the terminal states. Terminal states
// are final; no transition ever leaves them.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPartial, StatusCancelled:
		return true
	}
	return false
}

// DateRange is an inclusive calendar range. Start must not be after End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a validated DateRange.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.After(end) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s", start.Format(DateLayout), end.Format(DateLayout))
	}
	return DateRange{Start: start, End: end}, nil
}

// DateLayout is the calendar-day format used for job date ranges.
const DateLayout = "2006-01-02"

// ParseDateRange parses a pair of YYYY-MM-DD strings into a validated range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return NewDateRange(s, e)
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	return !day.Before(r.Start.Truncate(24*time.Hour)) && !day.After(r.End.Truncate(24*time.Hour))
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// Counts holds per-job item tallies. All fields are monotonically
// non-decreasing while the job is running, and
// Succeeded+Skipped+Failed == Total once the job is terminal.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped_duplicate"`
	Failed    int `json:"failed"`
}

// Processed returns the number of items with a recorded outcome.
func (c Counts) Processed() int {
	return c.Succeeded + c.Skipped + c.Failed
}

// Settled reports whether every listed item has an outcome.
func (c Counts) Settled() bool {
	return c.Processed() == c.Total
}

// Apply folds a delta into the tallies.
func (c *Counts) Apply(d CountDelta) {
	c.Succeeded += d.Succeeded
	c.Skipped += d.Skipped
	c.Failed += d.Failed
}

// CountDelta is an atomic increment applied to a job's counters.
// At most one field is ever non-zero per item.
type CountDelta struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Job is one requested transfer over a date range.
//
// Created by the controller (pending), exclusively mutated by the worker while
// claimed, immutable once terminal.
type Job struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	Range           DateRange  `json:"date_range"`
	Filters         []string   `json:"filters,omitempty"`
	Counts          Counts     `json:"counts"`
	Error           string     `json:"error,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// OutcomeResult classifies a single transfer attempt.
type OutcomeResult string

const (
	OutcomeSucceeded OutcomeResult = "succeeded"
	OutcomeDuplicate OutcomeResult = "duplicate"
	OutcomeFailed    OutcomeResult = "failed"
)

// Delta converts an outcome into the counter increment it represents.
func (o OutcomeResult) Delta() CountDelta {
	switch o {
	case OutcomeSucceeded:
		return CountDelta{Succeeded: 1}
	case OutcomeDuplicate:
		return CountDelta{Skipped: 1}
	default:
		return CountDelta{Failed: 1}
	}
}

// ItemOutcome records the result of transferring one source activity.
type ItemOutcome struct {
	SourceID      string        `json:"source_item_id"`
	Name          string        `json:"name,omitempty"`
	Result        OutcomeResult `json:"result"`
	Reason        string        `json:"reason,omitempty"`
	DestinationID string        `json:"destination_id,omitempty"`
}

// ActivityRef identifies one activity on the source platform, as returned by
// the platform's listing endpoint. Listing order is preserved end to end.
type ActivityRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	StartTime time.Time `json:"start_time"`
}

// Account holds credentials for one platform. Password is plaintext in
// memory only; the store encrypts it at rest.
type Account struct {
	Platform  string    `json:"platform"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleRule describes a recurring transfer: on each cron firing, a job is
// enqueued covering the trailing LookbackDays window.
type ScheduleRule struct {
	ID           string     `json:"id"`
	Cron         string     `json:"cron"`
	LookbackDays int        `json:"lookback_days"`
	Filters      []string   `json:"filters,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
