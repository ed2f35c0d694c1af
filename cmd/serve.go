package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/fitx/internal/scheduler"
	"github.com/desertthunder/fitx/internal/server"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/desertthunder/fitx/internal/worker"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the HTTP API, the background worker, and (when enabled) the
// cron scheduler until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	source, dest, err := r.buildClients(db)
	if err != nil {
		return err
	}

	jobs := store.NewJobStore(db)
	schedules := store.NewScheduleStore(db)
	accounts, err := r.accountStore(db)
	if err != nil {
		return err
	}

	engine := r.buildEngine(jobs, source, dest)
	w := worker.NewWorker(jobs, engine, r.config.Worker.PollInterval(), r.logger)

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Use(server.Logging(r.logger))

	api := &server.API{Jobs: jobs, Accounts: accounts, Schedules: schedules, Worker: w}
	api.Register(router)
	router.Handler(server.HealthHandler{})

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	srv := server.NewServer(addr, router, r.logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		r.logger.Info("http server listening", "addr", addr)
		return srv.Start()
	})

	group.Go(func() error {
		err := w.Run(ctx, nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if r.config.Schedule.Enabled {
		sched := scheduler.NewScheduler(jobs, schedules, r.logger)
		group.Go(func() error {
			if err := sched.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	r.logger.Info("server stopped")
	return nil
}
