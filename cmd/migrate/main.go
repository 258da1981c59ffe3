package main

import (
	"context"

	"payment-engine/internal/config"
	"payment-engine/internal/database"
	"payment-engine/internal/logger"
	"payment-engine/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("payment-engine-migrate", cfg.LogLevel, cfg.IsDevelopment())

	// Initialize Database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Run Migrations
	logger.Logger.Info().Msg("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Migration failed")
	}

	seeds, err := config.LoadGatewaySeeds()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to read gateway credentials")
	}

	store := repository.NewGormStore(db)
	for _, cred := range seeds.Credentials() {
		if err := store.SaveCredential(context.Background(), &cred); err != nil {
			logger.Logger.Fatal().Err(err).Str("gateway", cred.Gateway).Msg("Failed to seed gateway credentials")
		}
		logger.Logger.Info().Str("gateway", cred.Gateway).Msg("Gateway credentials seeded")
	}

	logger.Logger.Info().Msg("Migrations completed successfully!")
}
