package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFromContext_UsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	reqLogger := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()

	ctx := WithContext(context.Background(), reqLogger)
	FromContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Equal(t, &Logger, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}
