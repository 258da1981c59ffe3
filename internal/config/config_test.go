package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-engine/internal/logger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "local", cfg.LockBackend)
	assert.Equal(t, 20*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, []string{"paystack", "flutterwave", "korapay"}, cfg.Gateways)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("GATEWAYS", "paystack")
	t.Setenv("SANDBOX_GATEWAY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, []string{"paystack"}, cfg.Gateways)
	assert.True(t, cfg.SandboxEnabled)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_LogsMissingEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	previous := logger.Logger
	logger.Logger = zerolog.New(&buf)
	t.Cleanup(func() { logger.Logger = previous })

	_, err := Load()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), "No .env file found, using system environment variables")
}

func TestGatewaySeeds(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test")
	t.Setenv("KORAPAY_SECRET_KEY", "kp_test")
	t.Setenv("KORAPAY_BASE_URL", "http://korapay.local")

	seeds, err := LoadGatewaySeeds()
	require.NoError(t, err)

	creds := seeds.Credentials()
	require.Len(t, creds, 2)
	assert.Equal(t, "paystack", creds[0].Gateway)
	assert.Equal(t, "https://api.paystack.co", creds[0].BaseUrl)
	assert.Equal(t, "sk_test", creds[0].SecretKey)
	assert.Equal(t, 1, creds[0].Status)
	assert.Equal(t, "korapay", creds[1].Gateway)
	assert.Equal(t, "http://korapay.local", creds[1].BaseUrl)
}
