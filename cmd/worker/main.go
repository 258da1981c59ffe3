package main

import (
	"context"

	"payment-engine/internal/app"
	"payment-engine/internal/config"
	"payment-engine/internal/consumers"
	"payment-engine/internal/logger"
	"payment-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("payment-engine-worker", cfg.LogLevel, cfg.IsDevelopment())

	if cfg.RedisURL == "" {
		logger.Logger.Fatal().Msg("REDIS_URL is required for the worker")
	}
	if cfg.UsesMemoryStore() {
		logger.Logger.Fatal().Msg("The worker needs a shared database; DB_DRIVER=memory is not supported")
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer application.Close()

	// Processor
	processor := consumers.NewPaymentProcessor(application.Transactions)

	redisOpt, err := worker.RedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}

	logger.Logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("Starting Asynq Worker...")
	if err := worker.StartWorker(redisOpt, processor, cfg.WorkerConcurrency); err != nil {
		logger.Logger.Error().Err(err).Msg("Worker stopped")
	}
}
