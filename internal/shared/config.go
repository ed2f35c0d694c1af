package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Credentials CredentialsConfig `toml:"credentials"`
	Worker      WorkerConfig      `toml:"worker"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	Reconcile   ReconcileConfig   `toml:"reconcile"`
	Schedule    ScheduleConfig    `toml:"schedule"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// CredentialsConfig contains the encryption key and per-platform credentials.
//
// Credentials are explicit configuration passed into client construction;
// there is no global account state.
type CredentialsConfig struct {
	EncryptionKey string        `toml:"encryption_key"`
	Coros         PlatformLogin `toml:"coros"`
	Garmin        PlatformLogin `toml:"garmin"`
}

// PlatformLogin is an email/password pair for one platform.
type PlatformLogin struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// WorkerConfig contains worker loop settings.
type WorkerConfig struct {
	PollIntervalSeconds int         `toml:"poll_interval_seconds"`
	Retry               RetryConfig `toml:"retry"`
}

// PollInterval returns the idle poll interval as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	if w.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// RetryConfig bounds per-item retry. MaxAttempts of 1 disables retry.
type RetryConfig struct {
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

// RateLimitConfig sets the minimum spacing between calls per platform.
type RateLimitConfig struct {
	SourceIntervalMS int `toml:"source_interval_ms"`
	DestIntervalMS   int `toml:"dest_interval_ms"`
}

// SourceInterval returns the source platform gate interval.
func (r RateLimitConfig) SourceInterval() time.Duration {
	return intervalMS(r.SourceIntervalMS)
}

// DestInterval returns the destination platform gate interval.
func (r RateLimitConfig) DestInterval() time.Duration {
	return intervalMS(r.DestIntervalMS)
}

func intervalMS(ms int) time.Duration {
	if ms <= 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

// ReconcileConfig controls resolution of ambiguous upload results.
type ReconcileConfig struct {
	Policy        string `toml:"policy"`
	WindowSeconds int    `toml:"window_seconds"`
	SearchDays    int    `toml:"search_days"`
}

// Window returns the start-time match window.
func (r ReconcileConfig) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// ScheduleConfig toggles the cron scheduler.
type ScheduleConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
