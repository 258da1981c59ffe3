package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"payment-engine/internal/logger"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	GinMode  string `env:"GIN_MODE"`
	Port     string `env:"PORT" envDefault:"8080"`
	GRPCPort string `env:"GRPC_PORT" envDefault:"50051"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"payment_engine"`

	RedisURL    string        `env:"REDIS_URL"`
	LockBackend string        `env:"LOCK_BACKEND" envDefault:"local"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"2m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"payment-transactions"`

	Gateways       []string      `env:"GATEWAYS" envSeparator:"," envDefault:"paystack,flutterwave,korapay"`
	SandboxEnabled bool          `env:"SANDBOX_GATEWAY_ENABLED" envDefault:"false"`
	SandboxSecret  string        `env:"SANDBOX_WEBHOOK_SECRET" envDefault:"sandbox-secret"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"20s"`
	CallbackURL    string        `env:"CALLBACK_BASE_URL" envDefault:"http://localhost:8080/payment-verification"`
	ReceiptBaseURL string        `env:"RECEIPT_BASE_URL" envDefault:"http://localhost:8080/api/v1"`

	VerifySchedule string        `env:"VERIFY_SCHEDULE" envDefault:"*/5 * * * *"`
	VerifyAfter    time.Duration `env:"VERIFY_AFTER" envDefault:"10m"`
	VerifyBatch    int           `env:"VERIFY_BATCH" envDefault:"100"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"10"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load reads .env (falling back to ../.env, then the process environment)
// and parses the result into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Logger.Info().Msg("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			logger.Logger.Info().Msg("No .env file found, using system environment variables")
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// UsesMemoryStore reports whether DB_DRIVER selects the in-process store.
func (c *Config) UsesMemoryStore() bool {
	return c.DBDriver == "memory"
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
