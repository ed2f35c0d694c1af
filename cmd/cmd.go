// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// outputFlags are shared by every listing/detail command.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
		},
	}
}

// accountsCommand handles platform credential management
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Manage platform credentials",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Save credentials for a platform (coros or garmin)",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "platform",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.AccountsSet,
			},
			{
				Name:   "list",
				Usage:  "List saved accounts",
				Flags:  outputFlags(),
				Action: r.AccountsList,
			},
			{
				Name:  "delete",
				Usage: "Delete saved credentials for a platform",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "platform",
					},
				},
				Action: r.AccountsDelete,
			},
		},
	}
}

// jobsCommand handles transfer job management
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Manage transfer jobs",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Enqueue a transfer job over a date range",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "start",
						Usage:    "Start date (YYYY-MM-DD)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "end",
						Usage:    "End date (YYYY-MM-DD)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "types",
						Usage: "Comma-separated activity types (e.g. run,bike)",
					},
				}, outputFlags()...),
				Action: r.JobsCreate,
			},
			{
				Name:  "list",
				Usage: "List jobs, newest first",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, running, completed, failed, partial, cancelled)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 50,
					},
				}, outputFlags()...),
				Action: r.JobsList,
			},
			{
				Name:  "get",
				Usage: "Show one job",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags:  outputFlags(),
				Action: r.JobsGet,
			},
			{
				Name:  "items",
				Usage: "Show per-activity outcomes of a job",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags:  outputFlags(),
				Action: r.JobsItems,
			},
			{
				Name:  "cancel",
				Usage: "Request cancellation of a job",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.JobsCancel,
			},
		},
	}
}

// transferCommand runs a one-off COROS → Garmin sync
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Run a one-off COROS → Garmin transfer and wait for it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "start",
				Usage:    "Start date (YYYY-MM-DD)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "end",
				Usage:    "End date (YYYY-MM-DD)",
				Required: true,
			},
		},
		Action: r.TransferRun,
	}
}

// workerCommand runs the background worker loop
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Background worker operations",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll for pending jobs and execute them until interrupted",
				Action: r.WorkerRun,
			},
		},
	}
}

// serveCommand runs the HTTP API together with the worker
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API, worker, and scheduler",
		Action: r.Serve,
	}
}

// scheduleCommand manages recurring transfer rules
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"sched"},
		Usage:   "Manage recurring transfer schedules",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a recurring transfer rule",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "cron",
						Usage:    "Cron expression (e.g. '0 3 * * *')",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "lookback",
						Usage: "Days of history each run covers",
						Value: 7,
					},
					&cli.StringFlag{
						Name:  "types",
						Usage: "Comma-separated activity types",
					},
				},
				Action: r.ScheduleAdd,
			},
			{
				Name:   "list",
				Usage:  "List schedule rules",
				Flags:  outputFlags(),
				Action: r.ScheduleList,
			},
			{
				Name:  "enable",
				Usage: "Enable a schedule rule",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.ScheduleEnable(true),
			},
			{
				Name:  "disable",
				Usage: "Disable a schedule rule",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.ScheduleEnable(false),
			},
			{
				Name:  "delete",
				Usage: "Delete a schedule rule",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.ScheduleDelete,
			},
		},
	}
}

// watchCommand opens the terminal dashboard
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Live terminal dashboard of transfer jobs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "refresh",
				Usage: "Refresh interval in seconds",
				Value: 2,
			},
		},
		Action: r.WatchJobs,
	}
}
