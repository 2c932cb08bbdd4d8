// Package config loads the cmdtracker configuration from YAML, a .env file
// and CMDTRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/schedule"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CMDTRACKER_"

// Config represents the complete application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	JobMaster   JobMasterConfig   `yaml:"jobmaster"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Notify      NotifyConfig      `yaml:"notify"`
	Stats       StatsConfig       `yaml:"stats"`
	Logging     LoggingConfig     `yaml:"logging"`
	Schedules   []ScheduleConfig  `yaml:"schedules"`
}

// DatabaseConfig holds the storage DSN and pool settings. A DSN starting
// with postgres:// selects PostgreSQL; anything else is a SQLite file.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CoordinatorConfig tunes command execution.
type CoordinatorConfig struct {
	MaxConcurrentAttempts int           `yaml:"max_concurrent_attempts"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	SubmitRate            float64       `yaml:"submit_rate"`
	SubmitBurst           int           `yaml:"submit_burst"`
	Retry                 RetryConfig   `yaml:"retry"`
}

// RetryConfig is the per-attempt submission retry policy.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// JobMasterConfig tunes the embedded job master.
type JobMasterConfig struct {
	Workers     int           `yaml:"workers"`
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"max_retries"`
	Retention   time.Duration `yaml:"retention"`
}

// ExecutorConfig holds the local storage tiers.
type ExecutorConfig struct {
	CacheRoot   string `yaml:"cache_root"`
	ReplicaRoot string `yaml:"replica_root"`
	UfsRoot     string `yaml:"ufs_root"`
	BlockSize   int    `yaml:"block_size"`
}

// NotifyConfig holds the result publisher settings.
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// StatsConfig holds the command statistics settings.
type StatsConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ScheduleConfig is a recurring command. Command holds a command mapping
// in the same layout as a command file entry.
type ScheduleConfig struct {
	Name     string    `yaml:"name"`
	Schedule string    `yaml:"schedule"`
	Command  yaml.Node `yaml:"command"`
}

// Parse decodes the schedule and its command.
func (s ScheduleConfig) Parse() (schedule.Schedule, core.CmdConfig, error) {
	sched, err := schedule.Parse(s.Schedule)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	cmd, err := cmdconfig.DecodeYAML(&s.Command)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	return sched, cmd, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "cmdtracker.db",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrentAttempts: 64,
			PollInterval:          time.Second,
			SubmitBurst:           1,
			Retry: RetryConfig{
				MaxAttempts:    5,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
			},
		},
		JobMaster: JobMasterConfig{
			Workers:     1,
			Concurrency: 10,
			MaxRetries:  3,
			Retention:   7 * 24 * time.Hour,
		},
		Executor: ExecutorConfig{
			CacheRoot:   "data/cache",
			ReplicaRoot: "data/replicas",
			UfsRoot:     "data/ufs",
		},
		Notify: NotifyConfig{
			Exchange:   "cmdtracker",
			RoutingKey: "commands",
		},
		Stats: StatsConfig{
			Retention: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load reads .env (if present), the YAML file at path (if not empty) over
// the defaults, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CMDTRACKER_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}

	str("DATABASE_DSN", &c.Database.DSN)
	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("CACHE_ROOT", &c.Executor.CacheRoot)
	str("REPLICA_ROOT", &c.Executor.ReplicaRoot)
	str("UFS_ROOT", &c.Executor.UfsRoot)
	if v, ok := lookup(EnvPrefix + "AMQP_URL"); ok && v != "" {
		c.Notify.URL = v
		c.Notify.Enabled = true
	}

	return errors.Join(
		num("MAX_CONCURRENT_ATTEMPTS", &c.Coordinator.MaxConcurrentAttempts),
		num("WORKERS", &c.JobMaster.Workers),
		num("WORKER_CONCURRENCY", &c.JobMaster.Concurrency),
		num("MAX_RETRIES", &c.JobMaster.MaxRetries),
		dur("POLL_INTERVAL", &c.Coordinator.PollInterval),
	)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.Coordinator.MaxConcurrentAttempts <= 0 {
		errs = append(errs, errors.New("coordinator max_concurrent_attempts must be greater than 0"))
	}
	if c.Coordinator.PollInterval <= 0 {
		errs = append(errs, errors.New("coordinator poll_interval must be greater than 0"))
	}
	if c.Coordinator.SubmitRate < 0 {
		errs = append(errs, errors.New("coordinator submit_rate must not be negative"))
	}
	if c.Coordinator.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("coordinator retry max_attempts must be greater than 0"))
	}
	if c.JobMaster.Workers <= 0 {
		errs = append(errs, errors.New("jobmaster workers must be greater than 0"))
	}
	if c.JobMaster.Concurrency <= 0 {
		errs = append(errs, errors.New("jobmaster concurrency must be greater than 0"))
	}
	if c.JobMaster.MaxRetries < 0 {
		errs = append(errs, errors.New("jobmaster max_retries must not be negative"))
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		errs = append(errs, errors.New("notify url is required when notify is enabled"))
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		errs = append(errs, fmt.Errorf("invalid logging format %q (must be json or console)", c.Logging.Format))
	}

	seen := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate schedule name %q", s.Name))
		}
		seen[s.Name] = true
		if _, _, err := s.Parse(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
