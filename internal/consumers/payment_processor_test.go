package consumers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
	"payment-engine/internal/repository"
	"payment-engine/internal/services"
)

const sandboxSecret = "secret"

func newProcessor(t *testing.T) (*PaymentProcessor, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	registry := gateway.NewRegistry(gateway.NewSandbox(sandboxSecret))
	svc := services.NewTransactionService(store, registry, nil, nil, time.Second)
	return NewPaymentProcessor(svc), store
}

func openSandboxSession(t *testing.T, p *PaymentProcessor, reference string) *models.Transaction {
	t.Helper()
	tx, _, err := p.Transactions.CreateTransaction(context.Background(), services.CreateTransactionInput{
		Reference:  reference,
		UserID:     "7",
		PropertyID: "42",
		Amount:     decimal.NewFromInt(500000),
		Currency:   models.CurrencyNGN,
		Type:       models.TypeDeposit,
		Method:     models.MethodCard,
		Gateway:    gateway.SandboxName,
	})
	require.NoError(t, err)
	tx, err = p.Transactions.InitializeGatewaySession(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, tx.Status)
	return tx
}

func signed(body []byte) http.Header {
	h := http.Header{}
	h.Set("x-sandbox-signature", gateway.SignSandbox(sandboxSecret, body))
	return h
}

func TestProcessCallbackAppliesOutcome(t *testing.T) {
	p, _ := newProcessor(t)
	tx := openSandboxSession(t, p, "PROP-42-CB")

	body := []byte(`{"reference":"SBX-PROP-42-CB","status":"success"}`)
	result, err := p.ProcessCallback(context.Background(), CallbackDTO{Gateway: gateway.SandboxName, Headers: signed(body), Body: body})
	require.NoError(t, err)
	assert.Equal(t, models.CallbackApplied, result.Disposition)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, tx.ID, result.Transaction.ID)
	assert.Equal(t, models.StatusCompleted, result.Transaction.Status)

	// a redelivery is acknowledged without a second transition
	result, err = p.ProcessCallback(context.Background(), CallbackDTO{Gateway: gateway.SandboxName, Headers: signed(body), Body: body})
	require.NoError(t, err)
	assert.Equal(t, models.CallbackDiscarded, result.Disposition)
}

func TestProcessCallbackRejectsBadSignature(t *testing.T) {
	p, store := newProcessor(t)
	tx := openSandboxSession(t, p, "PROP-42-BAD")

	body := []byte(`{"reference":"SBX-PROP-42-BAD","status":"success"}`)
	headers := http.Header{}
	headers.Set("x-sandbox-signature", "forged")

	result, err := p.ProcessCallback(context.Background(), CallbackDTO{Gateway: gateway.SandboxName, Headers: headers, Body: body})
	require.Error(t, err)
	assert.True(t, gateway.IsPermanent(err))
	assert.Equal(t, models.CallbackRejected, result.Disposition)

	got, err := store.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestProcessCallbackUnknownGateway(t *testing.T) {
	p, _ := newProcessor(t)
	_, err := p.ProcessCallback(context.Background(), CallbackDTO{Gateway: "nope", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestProcessVerificationSettles(t *testing.T) {
	p, store := newProcessor(t)
	tx := openSandboxSession(t, p, "PROP-42-VF")

	require.NoError(t, p.ProcessVerification(context.Background(), VerificationDTO{TransactionID: tx.ID}))

	got, err := store.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	logs := store.Callbacks()
	require.Len(t, logs, 1)
	assert.Equal(t, services.SourceVerify, logs[0].Source)
}

func TestProcessVerificationMissing(t *testing.T) {
	p, _ := newProcessor(t)
	err := p.ProcessVerification(context.Background(), VerificationDTO{TransactionID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDispatchCallbackInline(t *testing.T) {
	p, store := newProcessor(t)
	tx := openSandboxSession(t, p, "PROP-42-IN")

	body := []byte(`{"reference":"SBX-PROP-42-IN","status":"failed","reason":"insufficient funds"}`)
	require.NoError(t, p.DispatchCallback(context.Background(), gateway.SandboxName, signed(body), body))

	got, err := store.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "insufficient funds", got.FailureReason)
	assert.True(t, got.Retryable)
}
