// Package config loads this runtime's Config struct from environment
// variables, an optional config file, and defaults, using
// github.com/spf13/viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section this runtime reads at startup.
type Config struct {
	TaskHub  TaskHubConfig  `mapstructure:"taskHub"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
}

// TaskHubConfig names the task hub and controls history sharding.
type TaskHubConfig struct {
	Name       string `mapstructure:"name"`
	ShardCount int32  `mapstructure:"shardCount"`
}

// PostgresConfig holds the durable history/state store connection.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int32  `mapstructure:"maxConns"`
}

// DSN returns the PostgreSQL connection string pgxpool.New expects.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode, p.MaxConns,
	)
}

// RedisConfig holds the work-item queue and timer-set connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds the wake-up notifier connection.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// WorkerConfig controls the orchestration/activity poll-loop pools.
type WorkerConfig struct {
	OrchestrationParallelism int `mapstructure:"orchestrationParallelism"`
	ActivityParallelism      int `mapstructure:"activityParallelism"`
	// PollRatePerSecond caps how many empty-queue polls a single worker
	// goroutine issues per second.
	PollRatePerSecond float64 `mapstructure:"pollRatePerSecond"`
	// LeaseTimeoutSeconds bounds how long a leased work item stays
	// invisible to other workers before being eligible for reclaim.
	LeaseTimeoutSeconds int `mapstructure:"leaseTimeoutSeconds"`
}

func (w *WorkerConfig) LeaseTimeout() time.Duration {
	return time.Duration(w.LeaseTimeoutSeconds) * time.Second
}

// LoggingConfig configures backend/zaplogger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// GRPCConfig controls the grpcsvc listener.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (g *GRPCConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("taskHub.name", "default")
	v.SetDefault("taskHub.shardCount", 16)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "durabletask")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbName", "durabletask")
	v.SetDefault("postgres.sslMode", "disable")
	v.SetDefault("postgres.maxConns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.clientId", "durabletask")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("worker.orchestrationParallelism", 4)
	v.SetDefault("worker.activityParallelism", 8)
	v.SetDefault("worker.pollRatePerSecond", 10.0)
	v.SetDefault("worker.leaseTimeoutSeconds", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 4443)
}

// Load reads configuration from environment variables (prefixed
// DURABLETASK_), an optional ./config.yaml or /etc/durabletask/config.yaml,
// and the defaults above, in that order of decreasing priority.
func Load() (*Config, error) {
	return LoadWithPath("")
}

func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DURABLETASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/durabletask/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.TaskHub.ShardCount <= 0 {
		errs = append(errs, "taskHub.shardCount must be positive")
	}
	if cfg.Postgres.Port <= 0 || cfg.Postgres.Port > 65535 {
		errs = append(errs, "postgres.port must be between 1 and 65535")
	}
	if cfg.Postgres.DBName == "" {
		errs = append(errs, "postgres.dbName is required")
	}
	if cfg.Worker.OrchestrationParallelism <= 0 {
		errs = append(errs, "worker.orchestrationParallelism must be positive")
	}
	if cfg.Worker.ActivityParallelism <= 0 {
		errs = append(errs, "worker.activityParallelism must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, console, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// detectDefaultLogFormat mirrors backend/zaplogger.detectLogFormat so the
// two packages agree on a sensible default before any explicit
// logging.format override is applied.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("DURABLETASK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}
