package consumers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"payment-engine/internal/logger"
	"payment-engine/internal/services"
)

// PaymentProcessor runs the work behind queued gateway callbacks and
// verification polls. The asynq worker calls it for queued tasks, and the HTTP
// ingress calls it directly when no queue is configured.
type PaymentProcessor struct {
	Transactions *services.TransactionService
}

func NewPaymentProcessor(transactions *services.TransactionService) *PaymentProcessor {
	return &PaymentProcessor{
		Transactions: transactions,
	}
}

// --- DTOs ---

type CallbackDTO struct {
	Gateway    string      `json:"gateway"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	ReceivedAt time.Time   `json:"received_at"`
}

type VerificationDTO struct {
	TransactionID string `json:"transaction_id"`
}

func (p *PaymentProcessor) ProcessCallback(ctx context.Context, data CallbackDTO) (*services.CallbackResult, error) {
	log := logger.FromContext(ctx).With().Str("gateway", data.Gateway).Logger()
	log.Info().Int("bytes", len(data.Body)).Msg("Processing gateway callback")

	result, err := p.Transactions.HandleGatewayCallback(ctx, data.Gateway, data.Headers, data.Body)
	if err != nil {
		log.Error().Err(err).Msg("Gateway callback failed")
		return result, fmt.Errorf("ProcessCallback: %w", err)
	}

	event := log.Info().Str("disposition", string(result.Disposition))
	if result.Transaction != nil {
		event = event.
			Str("transaction_id", result.Transaction.ID).
			Str("status", string(result.Transaction.Status))
	}
	event.Msg("Gateway callback processed")
	return result, nil
}

func (p *PaymentProcessor) ProcessVerification(ctx context.Context, data VerificationDTO) error {
	log := logger.FromContext(ctx).With().Str("transaction_id", data.TransactionID).Logger()
	log.Info().Msg("Processing verification")

	tx, err := p.Transactions.VerifyTransaction(ctx, data.TransactionID)
	if err != nil {
		log.Warn().Err(err).Msg("Verification failed")
		return fmt.Errorf("ProcessVerification: %w", err)
	}
	log.Info().Str("status", string(tx.Status)).Msg("Verification processed")
	return nil
}

// DispatchCallback processes a callback in the caller's goroutine.
func (p *PaymentProcessor) DispatchCallback(ctx context.Context, gateway string, headers http.Header, body []byte) error {
	_, err := p.ProcessCallback(ctx, CallbackDTO{
		Gateway:    gateway,
		Headers:    headers,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	})
	return err
}

// EnqueueVerification verifies in the caller's goroutine.
func (p *PaymentProcessor) EnqueueVerification(ctx context.Context, transactionID string) error {
	return p.ProcessVerification(ctx, VerificationDTO{TransactionID: transactionID})
}
