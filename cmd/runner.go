package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/fitx/internal/platforms"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/desertthunder/fitx/internal/store"
	"github.com/desertthunder/fitx/internal/worker"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, keyCommand, accountsCommand, jobsCommand, transferCommand,
		workerCommand, serveCommand, scheduleCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDB opens the configured database and applies pool settings.
func (r *Runner) openDB() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}

// encryptionKey parses the configured credential encryption key, or returns
// nil when none is configured.
func (r *Runner) encryptionKey() (*[32]byte, error) {
	encoded := r.config.Credentials.EncryptionKey
	if encoded == "" {
		return nil, nil
	}
	key, err := shared.ParseKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key in config: %w", err)
	}
	return key, nil
}

// accountStore builds an AccountStore over db, requiring an encryption key.
func (r *Runner) accountStore(db *sql.DB) (*store.AccountStore, error) {
	key, err := r.encryptionKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: credentials.encryption_key not set (run 'fitx key' to generate one)", shared.ErrMissingConfig)
	}
	return store.NewAccountStore(db, key), nil
}

// resolveLogin returns credentials for a platform: the stored account wins,
// with the config [credentials] section as fallback. Only a missing account
// falls through; a store that fails to read or decrypt is surfaced rather
// than papered over with config values.
func (r *Runner) resolveLogin(db *sql.DB, platform string, fallback shared.PlatformLogin) (shared.PlatformLogin, error) {
	key, err := r.encryptionKey()
	if err != nil {
		return shared.PlatformLogin{}, err
	}
	if key != nil {
		account, err := store.NewAccountStore(db, key).Get(platform)
		switch {
		case err == nil:
			return shared.PlatformLogin{Email: account.Email, Password: account.Password}, nil
		case !errors.Is(err, shared.ErrAccountNotFound):
			return shared.PlatformLogin{}, fmt.Errorf("failed to load %s account: %w", platform, err)
		}
	}
	if fallback.Email == "" || fallback.Password == "" {
		return shared.PlatformLogin{}, fmt.Errorf("%w: no %s account saved and no config credentials", shared.ErrMissingCredentials, platform)
	}
	return fallback, nil
}

// buildClients constructs the source and destination platform clients.
func (r *Runner) buildClients(db *sql.DB) (platforms.Client, platforms.Client, error) {
	corosLogin, err := r.resolveLogin(db, "coros", r.config.Credentials.Coros)
	if err != nil {
		return nil, nil, err
	}
	garminLogin, err := r.resolveLogin(db, "garmin", r.config.Credentials.Garmin)
	if err != nil {
		return nil, nil, err
	}

	source, err := platforms.NewCorosClient(platforms.CorosOpts{
		Email:    corosLogin.Email,
		Password: corosLogin.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	dest, err := platforms.NewGarminClient(platforms.GarminOpts{
		Email:    garminLogin.Email,
		Password: garminLogin.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	return source, dest, nil
}

// buildEngine wires clients, gates, retry, and reconciliation from config.
func (r *Runner) buildEngine(jobs *store.JobStore, source, dest platforms.Client) *worker.Engine {
	destGate := worker.NewGate(r.config.RateLimit.DestInterval())

	var reconciler worker.Reconciler
	switch r.config.Reconcile.Policy {
	case "fail":
		reconciler = worker.FailReconciler{}
	default:
		reconciler = worker.NewTimeWindowReconciler(dest, destGate, r.config.Reconcile.Window(), r.config.Reconcile.SearchDays)
	}

	retry := r.config.Worker.Retry
	return worker.NewEngine(worker.EngineOpts{
		Source:      source,
		Dest:        dest,
		Jobs:        jobs,
		Reconciler:  reconciler,
		SourceGate:  worker.NewGate(r.config.RateLimit.SourceInterval()),
		DestGate:    destGate,
		MaxAttempts: retry.MaxAttempts,
		BackoffBase: secondsDuration(retry.BaseDelaySeconds),
		BackoffMax:  secondsDuration(retry.MaxDelaySeconds),
		Logger:      r.logger,
	})
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
