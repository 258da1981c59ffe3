package services

import (
	"context"
	"encoding/json"
	"errors"

	"payment-engine/internal/gateway"
	"payment-engine/internal/logger"
	"payment-engine/internal/metrics"
	"payment-engine/internal/models"
)

const (
	SourceWebhook = "webhook"
	SourceVerify  = "verify"
)

// logCallback appends to the callback audit trail. Failures are logged and
// swallowed; the audit row never decides a transaction's fate.
func (s *TransactionService) logCallback(ctx context.Context, entry models.CallbackLog) {
	metrics.CallbacksTotal.WithLabelValues(entry.Gateway, string(entry.Disposition)).Inc()

	if err := s.Store.LogCallback(ctx, &entry); err != nil {
		logger.FromContext(ctx).Error().
			Err(err).
			Str("gateway", entry.Gateway).
			Str("gateway_reference", entry.GatewayReference).
			Msg("Failed to write callback log")
	}
}

// errorPayload is what lands in gateway_response when a call fails.
func errorPayload(err error) string {
	body := map[string]interface{}{"error": err.Error()}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		body["gateway"] = gwErr.Gateway
		body["op"] = gwErr.Op
		body["permanent"] = gwErr.Permanent
		if gwErr.StatusCode != 0 {
			body["status_code"] = gwErr.StatusCode
		}
	}

	out, _ := json.Marshal(body)
	return string(out)
}

// timedOut reports whether a gateway call ended because a deadline or the
// caller's cancellation cut it short.
func timedOut(callCtx context.Context, err error) bool {
	if callCtx.Err() != nil {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func gatewayResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gateway.ErrAwaitingCallback):
		return "awaiting"
	case gateway.IsPermanent(err):
		return "permanent"
	default:
		return "transient"
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
