package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
)

const SandboxName = "sandbox"

// Metadata key that steers sandbox behaviour.
const SandboxOutcomeKey = "sandbox_outcome"

// Sandbox outcomes. Anything else settles successfully.
const (
	SandboxDecline     = "decline"     // initialize rejected permanently
	SandboxUnavailable = "unavailable" // initialize fails transiently
	SandboxFail        = "fail"        // session opens, payment later fails
	SandboxPending     = "pending"     // session never settles on its own
	SandboxNoRefund    = "no_refund"   // payment succeeds, refunds are refused
)

// Sandbox is a deterministic gateway for local development. It keeps no
// session state: the outcome a session was steered to travels in its gateway
// reference, so any process holding the secret can verify or refund it.
// It supports every payment method, including crypto.
type Sandbox struct {
	secret string
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: secret}
}

func (s *Sandbox) Name() string {
	return SandboxName
}

func (s *Sandbox) Supports(method models.PaymentMethod) bool {
	return models.ValidMethod(method)
}

// sandboxReference is SBX-{reference}, suffixed with .{outcome} when the
// session was steered away from the default.
func sandboxReference(reference, outcome string) string {
	ref := "SBX-" + reference
	if sandboxOutcome(outcome) {
		ref += "." + outcome
	}
	return ref
}

func sandboxOutcome(outcome string) bool {
	switch outcome {
	case SandboxFail, SandboxPending, SandboxNoRefund:
		return true
	}
	return false
}

// outcomeOf recovers the steered outcome from a gateway reference.
func outcomeOf(op, gatewayReference string) (string, error) {
	rest, ok := strings.CutPrefix(gatewayReference, "SBX-")
	if !ok || rest == "" {
		return "", permanent(SandboxName, op, fmt.Errorf("unknown session %s", gatewayReference))
	}
	if i := strings.LastIndex(rest, "."); i >= 0 && sandboxOutcome(rest[i+1:]) {
		return rest[i+1:], nil
	}
	return "", nil
}

func (s *Sandbox) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(SandboxName, "initialize", err)
	}

	outcome := req.Metadata[SandboxOutcomeKey]
	switch outcome {
	case SandboxDecline:
		return nil, permanent(SandboxName, "initialize", errors.New("card declined"))
	case SandboxUnavailable:
		return nil, transient(SandboxName, "initialize", errors.New("service unavailable"))
	}

	ref := sandboxReference(req.Reference, outcome)
	payload, _ := json.Marshal(map[string]interface{}{
		"reference":    ref,
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"checkout_url": "https://sandbox.invalid/checkout/" + ref,
	})
	return &Session{GatewayReference: ref, CheckoutURL: "https://sandbox.invalid/checkout/" + ref, Payload: payload}, nil
}

func (s *Sandbox) Verify(ctx context.Context, gatewayReference string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(SandboxName, "verify", err)
	}

	outcome, err := outcomeOf("verify", gatewayReference)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case SandboxPending:
		return nil, ErrAwaitingCallback
	case SandboxFail:
		payload, _ := json.Marshal(map[string]string{"reference": gatewayReference, "status": "failed"})
		return &Outcome{GatewayReference: gatewayReference, Reason: "insufficient funds", Payload: payload}, nil
	default:
		payload, _ := json.Marshal(map[string]string{"reference": gatewayReference, "status": "success"})
		return &Outcome{GatewayReference: gatewayReference, Success: true, Payload: payload}, nil
	}
}

func (s *Sandbox) Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(SandboxName, "refund", err)
	}

	outcome, err := outcomeOf("refund", gatewayReference)
	if err != nil {
		return nil, err
	}
	if outcome == SandboxNoRefund {
		return nil, permanent(SandboxName, "refund", errors.New("refund window closed"))
	}
	if !amount.IsPositive() {
		return nil, permanent(SandboxName, "refund", fmt.Errorf("invalid amount %s", amount))
	}

	payload, _ := json.Marshal(map[string]string{
		"reference": gatewayReference,
		"amount":    amount.StringFixed(2),
		"status":    "refunded",
	})
	return payload, nil
}

// ParseCallback accepts {"reference": "...", "status": "success|failed"}
// signed with x-sandbox-signature.
func (s *Sandbox) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*Outcome, error) {
	if !hmac.Equal([]byte(headers.Get("x-sandbox-signature")), []byte(SignSandbox(s.secret, body))) {
		return nil, permanent(SandboxName, "callback", errors.New("invalid signature"))
	}

	var event struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, permanent(SandboxName, "callback", fmt.Errorf("decode: %w", err))
	}

	switch event.Status {
	case "success":
		return &Outcome{GatewayReference: event.Reference, Success: true, Payload: body}, nil
	case "failed":
		reason := event.Reason
		if reason == "" {
			reason = "declined by sandbox"
		}
		return &Outcome{GatewayReference: event.Reference, Reason: reason, Payload: body}, nil
	default:
		return nil, fmt.Errorf("%s status %q: %w", SandboxName, event.Status, ErrUnhandledEvent)
	}
}

func SignSandbox(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
