package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Subash-08/iTech-compters-sub001/internal/config"
	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/obs"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
	"github.com/Subash-08/iTech-compters-sub001/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, queries := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	bus := &events.Bus{
		Store:     queries,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	expiry := &tasks.ExpiryHandler{
		Q:      queries,
		Events: bus,
		TTL:    cfg.PaymentAttemptTTL,
		Logger: logger,
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	sweepEvery := envOrDefault("PAYMENT_EXPIRY_SWEEP_CRON", "@every 5m")
	if _, err := scheduler.Register(sweepEvery, tasks.NewExpireAttemptsTask()); err != nil {
		logger.Fatal().Err(err).Msg("register expiry sweep")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
	})
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeExpireAttempts, expiry)

	logger.Info().Str("sweep", sweepEvery).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *store.Queries) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "itech-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool, store.New(pool)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
