// Command durabletaskd hosts a task hub: it serves the orchestrator
// gRPC surface and runs the backend's timer dispatcher against Postgres,
// Redis, and NATS. Orchestrator and activity code runs in user processes
// via backend.NewOrchestrationWorker / backend.NewActivityTaskWorker; this
// daemon owns the shared durable state they all coordinate through.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quayside-run/durabletask/backend"
	"github.com/quayside-run/durabletask/backend/postgres"
	"github.com/quayside-run/durabletask/backend/zaplogger"
	"github.com/quayside-run/durabletask/config"
	"github.com/quayside-run/durabletask/grpcsvc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zaplogger.New(zaplogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.Infof("connected to postgres at %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Infof("connected to redis at %s", cfg.Redis.Addr)

	natsConn, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.ClientID),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
	)
	if err != nil {
		logger.Warnf("failed to connect to NATS at %s, wake-up notifications disabled: %v", cfg.NATS.URL, err)
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	be := postgres.NewBackend(postgres.Config{
		PostgresDSN:  cfg.Postgres.DSN(),
		RedisAddr:    cfg.Redis.Addr,
		NATSURL:      cfg.NATS.URL,
		TaskHubName:  cfg.TaskHub.Name,
		ShardCount:   cfg.TaskHub.ShardCount,
		LeaseTimeout: cfg.Worker.LeaseTimeout(),
	}, pool, redisClient, natsConn, logger)

	if err := be.CreateTaskHub(ctx); err != nil && !errors.Is(err, backend.ErrTaskHubExists) {
		return fmt.Errorf("failed to provision task hub: %w", err)
	}
	if err := be.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backend: %w", err)
	}

	server, err := grpcsvc.NewServer(cfg.GRPC.Address(), be)
	if err != nil {
		return err
	}

	metricsServer := &http.Server{Addr: ":9090", Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("metrics listener stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received %s, shutting down", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Errorf("failed to stop gRPC server cleanly: %v", err)
		}
		if err := be.Stop(shutdownCtx); err != nil {
			logger.Errorf("failed to stop backend: %v", err)
		}
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("task hub %q serving on %s", cfg.TaskHub.Name, server.Addr())
	if err := server.Serve(); err != nil {
		return fmt.Errorf("gRPC server exited: %w", err)
	}
	return nil
}
