// Package postgres is this module's production Backend: durable
// orchestration history and mutable state in PostgreSQL (pgx/v5), work-item
// queues in Redis using the LMOVE lease pattern, due-timer scheduling in a
// Redis sorted set, and a NATS best-effort wake-up notifier so idle workers
// don't have to poll on a tight loop.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/quayside-run/durabletask/backend"
	"github.com/quayside-run/durabletask/internal/helpers"
)

// Config wires the three external dependencies this backend needs.
// Intended to be populated from config.Config (viper-bound) at startup.
type Config struct {
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	RedisAddr    string `mapstructure:"redis_addr"`
	NATSURL      string `mapstructure:"nats_url"`
	TaskHubName  string `mapstructure:"task_hub_name"`
	ShardCount   int32  `mapstructure:"shard_count"`
	LeaseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RedisAddr:    "localhost:6379",
		NATSURL:      nats.DefaultURL,
		TaskHubName:  "default",
		ShardCount:   16,
		LeaseTimeout: 60 * time.Second,
	}
}

// Backend is the concrete backend.Backend implementation wiring Postgres,
// Redis, and NATS together.
type Backend struct {
	cfg Config

	pool  *pgxpool.Pool
	redis *redis.Client
	nats  *nats.Conn

	logger     backend.Logger
	workerName string

	orchestrationQueue *redisWorkItemQueue
	activityQueue      *redisWorkItemQueue
	timers             *timerSet
	notifier           *wakeNotifier

	mu      sync.Mutex
	started bool
}

// NewBackend wires together already-constructed clients. Connection
// lifecycle (dialing, closing) is the caller's responsibility outside of
// Start/Stop's task-hub bookkeeping: the backend accepts ready-made
// dependencies rather than owning their construction.
func NewBackend(cfg Config, pool *pgxpool.Pool, redisClient *redis.Client, natsConn *nats.Conn, logger backend.Logger) *Backend {
	queueName := fmt.Sprintf("durabletask:%s", cfg.TaskHubName)
	return &Backend{
		cfg:                cfg,
		pool:               pool,
		redis:              redisClient,
		nats:               natsConn,
		logger:             logger,
		workerName:         helpers.GetDefaultWorkerName(),
		orchestrationQueue: newRedisWorkItemQueue(redisClient, queueName+":orchestration"),
		activityQueue:      newRedisWorkItemQueue(redisClient, queueName+":activity"),
		timers:             newTimerSet(redisClient, queueName+":timers"),
		notifier:           newWakeNotifier(natsConn, queueName+":wake", logger),
	}
}

func (b *Backend) CreateTaskHub(ctx context.Context) error {
	exists, err := b.taskHubExists(ctx)
	if err != nil {
		return backend.NewBackendError(backend.BackendErrorOther, err)
	}
	if exists {
		return backend.ErrTaskHubExists
	}
	if _, err := b.pool.Exec(ctx, schemaDDL); err != nil {
		return backend.NewBackendError(backend.BackendErrorOther, fmt.Errorf("failed to create task hub schema: %w", err))
	}
	return nil
}

func (b *Backend) DeleteTaskHub(ctx context.Context) error {
	exists, err := b.taskHubExists(ctx)
	if err != nil {
		return backend.NewBackendError(backend.BackendErrorOther, err)
	}
	if !exists {
		return backend.ErrTaskHubNotFound
	}
	if _, err := b.pool.Exec(ctx, dropSchemaDDL); err != nil {
		return backend.NewBackendError(backend.BackendErrorOther, fmt.Errorf("failed to drop task hub schema: %w", err))
	}
	return nil
}

func (b *Backend) taskHubExists(ctx context.Context) (bool, error) {
	var regclass *string
	if err := b.pool.QueryRow(ctx, `SELECT to_regclass('orchestration_state')::text`).Scan(&regclass); err != nil {
		return false, fmt.Errorf("failed to probe task hub schema: %w", err)
	}
	return regclass != nil, nil
}

func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return backend.ErrBackendAlreadyUp
	}
	if err := b.timers.startDispatcher(ctx, b); err != nil {
		return backend.NewBackendError(backend.BackendErrorOther, err)
	}
	b.started = true
	return nil
}

func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.timers.stopDispatcher()
	b.started = false
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orchestration_history (
	shard_id    INTEGER NOT NULL,
	instance_id TEXT NOT NULL,
	event_id    BIGSERIAL,
	is_new      BOOLEAN NOT NULL DEFAULT true,
	data        BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance_id, event_id)
);

CREATE TABLE IF NOT EXISTS orchestration_state (
	instance_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	status       SMALLINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	db_version   BIGINT NOT NULL DEFAULT 0,
	locked_by    TEXT,
	lock_expires TIMESTAMPTZ
);
`

const dropSchemaDDL = `
DROP TABLE IF EXISTS orchestration_history;
DROP TABLE IF EXISTS orchestration_state;
`
