// Package scheduler enqueues transfer jobs from cron-based schedule rules.
//
// Each enabled rule fires on its cron expression and creates a pending job
// covering the rule's lookback window. The scheduler only writes to the job
// store; the worker picks the jobs up through its normal polling.
package scheduler

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/robfig/cron/v3"
)

// Scheduler maps persisted schedule rules onto a cron runner.
type Scheduler struct {
	jobs   *store.JobStore
	rules  *store.ScheduleStore
	cron   *cron.Cron
	logger *log.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler over the given stores.
func NewScheduler(jobs *store.JobStore, rules *store.ScheduleStore, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(os.Stderr)
	}
	return &Scheduler{
		jobs:   jobs,
		rules:  rules,
		cron:   cron.New(),
		logger: logger,
		now:    time.Now,
	}
}

// Start loads enabled rules and begins firing them. Rules with invalid cron
// expressions are logged and skipped, never fatal.
func (s *Scheduler) Start() error {
	rules, err := s.rules.List(true)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		rule := rule
		if _, err := s.cron.AddFunc(rule.Cron, func() { s.fire(rule) }); err != nil {
			s.logger.Error("invalid cron expression", "rule", rule.ID, "cron", rule.Cron, "err", err)
			continue
		}
		s.logger.Info("schedule loaded", "rule", rule.ID, "cron", rule.Cron, "lookback_days", rule.LookbackDays)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight firing.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// fire creates one pending job covering the rule's lookback window.
func (s *Scheduler) fire(rule *models.ScheduleRule) {
	now := s.now()
	rng, err := models.NewDateRange(now.AddDate(0, 0, -rule.LookbackDays), now)
	if err != nil {
		s.logger.Error("schedule produced invalid range", "rule", rule.ID, "err", err)
		return
	}

	job := &models.Job{Range: rng, Filters: rule.Filters}
	if err := s.jobs.Create(job); err != nil {
		s.logger.Error("schedule failed to enqueue job", "rule", rule.ID, "err", err)
		return
	}

	if err := s.rules.TouchLastRun(rule.ID, now); err != nil {
		s.logger.Warn("failed to stamp last run", "rule", rule.ID, "err", err)
	}

	s.logger.Info("scheduled job enqueued", "rule", rule.ID, "job", job.ID, "range", rng.String())
}

// ValidateCron reports whether expr parses as a standard cron expression.
func ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
