package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/fitx/internal/store"
	"github.com/desertthunder/fitx/internal/ui"
	"github.com/urfave/cli/v3"
)

// WatchJobs opens the live terminal dashboard over the job store.
func (r *Runner) WatchJobs(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	interval := time.Duration(cmd.Int("refresh")) * time.Second
	return ui.Watch(ctx, store.NewJobStore(db), interval)
}
