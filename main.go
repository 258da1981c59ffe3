package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/rs/cors"

	"payment-engine/internal/app"
	"payment-engine/internal/config"
	"payment-engine/internal/consumers"
	grpcServer "payment-engine/internal/grpc"
	"payment-engine/internal/handlers"
	"payment-engine/internal/logger"
	"payment-engine/internal/services"
	"payment-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init("payment-engine", cfg.LogLevel, cfg.IsDevelopment())

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer application.Close()

	// Callbacks and verification polls go through asynq when Redis is
	// configured, and run inline otherwise.
	processor := consumers.NewPaymentProcessor(application.Transactions)
	var dispatcher handlers.CallbackDispatcher = processor
	var enqueuer services.VerificationEnqueuer
	if cfg.RedisURL != "" {
		redisOpt, err := worker.RedisOpt(cfg.RedisURL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		inspector := asynq.NewInspector(redisOpt)
		defer inspector.Close()

		queue := worker.NewDispatcher(asynqClient, inspector, application.Transactions)
		dispatcher, enqueuer = queue, queue
	}

	router := handlers.NewRouter(
		handlers.NewTransactionHandler(application.Transactions, application.Receipts, application.Reports),
		handlers.NewWebhookHandler(application.Gateways, dispatcher),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{handlers.RequestIDHeader},
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsHandler.Handler(router),
	}

	// Start gRPC server
	go func() {
		rpc := grpcServer.NewServer(application.Transactions, application.Receipts, application.Reports)
		if err := grpcServer.StartGRPCServer(cfg.GRPCPort, rpc); err != nil {
			logger.Logger.Fatal().Err(err).Msg("gRPC server stopped")
		}
	}()

	// Start Cron Schedulers
	scheduler := services.NewVerificationScheduler(application.Transactions, enqueuer, cfg.VerifySchedule, cfg.VerifyAfter, cfg.VerifyBatch)
	if err := scheduler.StartScheduler(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to start verification scheduler")
	}
	defer scheduler.Stop()

	go func() {
		logger.Logger.Info().Str("port", cfg.Port).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
