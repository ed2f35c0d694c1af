package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/scheduler"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/urfave/cli/v3"
)

// ScheduleAdd creates a recurring transfer rule.
func (r *Runner) ScheduleAdd(ctx context.Context, cmd *cli.Command) error {
	expr := cmd.String("cron")
	if err := scheduler.ValidateCron(expr); err != nil {
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

	rule := &models.ScheduleRule{
		Cron:         expr,
		LookbackDays: cmd.Int("lookback"),
		Filters:      filters,
		Enabled:      true,
	}
	if err := store.NewScheduleStore(db).Create(rule); err != nil {
		return err
	}

	r.logger.Info("schedule rule created", "id", rule.ID, "cron", rule.Cron)
	r.writePlain("✓ Schedule %s created: %q covering the last %d days\n", rule.ID, rule.Cron, rule.LookbackDays)
	return nil
}

// ScheduleList lists schedule rules.
func (r *Runner) ScheduleList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rules, err := store.NewScheduleStore(db).List(false)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(rules, cmd.Bool("pretty"))
	}

	if len(rules) == 0 {
		r.writePlain("No schedules defined\n")
		return nil
	}
	for _, rule := range rules {
		state := "enabled"
		if !rule.Enabled {
			state = "disabled"
		}
		r.writePlain("%s  %-8s  %q  last %d days", rule.ID, state, rule.Cron, rule.LookbackDays)
		if len(rule.Filters) > 0 {
			r.writePlain("  [%s]", strings.Join(rule.Filters, ","))
		}
		if rule.LastRun != nil {
			r.writePlain("  last run %s", rule.LastRun.Format("2006-01-02 15:04"))
		}
		r.writePlain("\n")
	}
	return nil
}

// ScheduleEnable turns a rule on or off.
func (r *Runner) ScheduleEnable(enabled bool) func(context.Context, *cli.Command) error {
	return func(ctx context.Context, cmd *cli.Command) error {
		id := cmd.StringArg("id")
		if id == "" {
			return fmt.Errorf("%w: schedule ID required", shared.ErrValidation)
		}

		db, err := r.openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.NewScheduleStore(db).SetEnabled(id, enabled); err != nil {
			return err
		}
		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		r.writePlain("✓ Schedule %s %s\n", id, state)
		return nil
	}
}

// ScheduleDelete removes a rule.
func (r *Runner) ScheduleDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: schedule ID required", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.NewScheduleStore(db).Delete(id); err != nil {
		return err
	}
	r.writePlain("✓ Schedule %s deleted\n", id)
	return nil
}
