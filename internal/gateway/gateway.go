// Package gateway normalizes external payment processors behind one contract.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
)

var (
	// ErrAwaitingCallback is returned by Verify while the gateway still
	// reports the payment as open (including a closed checkout widget).
	ErrAwaitingCallback = errors.New("gateway has not settled the payment yet")
	// ErrUnhandledEvent marks a correctly signed callback that carries no
	// payment outcome, such as a transfer notification.
	ErrUnhandledEvent = errors.New("callback event carries no payment outcome")
)

type InitializeRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  models.Currency
	Method    models.PaymentMethod
	Metadata  map[string]string
}

// Session is what a gateway returns when it accepts a payment session.
type Session struct {
	GatewayReference string
	CheckoutURL      string
	Payload          json.RawMessage
}

// Outcome is a terminal gateway verdict, from a callback or a verification poll.
type Outcome struct {
	GatewayReference string
	Success          bool
	Reason           string
	Payload          json.RawMessage
}

type Adapter interface {
	Name() string
	Supports(method models.PaymentMethod) bool
	Initialize(ctx context.Context, req InitializeRequest) (*Session, error)
	Verify(ctx context.Context, gatewayReference string) (*Outcome, error)
	Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error)
	ParseCallback(ctx context.Context, headers http.Header, body []byte) (*Outcome, error)
}

// CredentialSource resolves credentials at call time so rotations apply
// without a restart.
type CredentialSource interface {
	Credentials(ctx context.Context, gateway string) (*models.GatewayCredential, error)
}
