package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
	"payment-engine/pkg/common"
)

const KorapayName = "korapay"

var korapayChannels = map[models.PaymentMethod]string{
	models.MethodCard:         "card",
	models.MethodBankTransfer: "bank_transfer",
	models.MethodMobileMoney:  "mobile_money",
}

type Korapay struct {
	httpAdapter
}

func NewKorapay(creds CredentialSource, client *http.Client, callbackURL string) *Korapay {
	return &Korapay{httpAdapter{name: KorapayName, creds: creds, client: client, callbackURL: callbackURL}}
}

func (k *Korapay) Supports(method models.PaymentMethod) bool {
	_, ok := korapayChannels[method]
	return ok
}

func (k *Korapay) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	cred, err := k.settings(ctx, "initialize")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"reference":        req.Reference,
		"amount":           req.Amount.InexactFloat64(),
		"currency":         req.Currency,
		"notification_url": k.callbackURL,
		"redirect_url":     k.callbackURL,
		"channels":         []string{korapayChannels[req.Method]},
		"customer":         map[string]string{"email": customerEmail(req)},
		"metadata":         req.Metadata,
	}

	resp, err := k.post(ctx, "initialize", cred, "/charges/initialize", payload)
	if err != nil {
		return nil, err
	}
	if resp.Body["status"] != true {
		return nil, permanent(k.name, "initialize", errors.New(common.StringAt(resp.Body, "message")))
	}

	ref := common.StringAt(resp.Body, "data", "reference")
	if ref == "" {
		ref = req.Reference
	}
	return &Session{
		GatewayReference: ref,
		CheckoutURL:      common.StringAt(resp.Body, "data", "checkout_url"),
		Payload:          resp.Raw,
	}, nil
}

func (k *Korapay) Verify(ctx context.Context, gatewayReference string) (*Outcome, error) {
	cred, err := k.settings(ctx, "verify")
	if err != nil {
		return nil, err
	}

	resp, err := k.get(ctx, "verify", cred, "/charges/"+url.PathEscape(gatewayReference))
	if err != nil {
		return nil, err
	}

	switch common.StringAt(resp.Body, "data", "status") {
	case "success":
		return &Outcome{GatewayReference: gatewayReference, Success: true, Payload: resp.Raw}, nil
	case "failed":
		reason := common.StringAt(resp.Body, "data", "message")
		if reason == "" {
			reason = "korapay reported failed"
		}
		return &Outcome{GatewayReference: gatewayReference, Reason: reason, Payload: resp.Raw}, nil
	default:
		return nil, ErrAwaitingCallback
	}
}

func (k *Korapay) Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error) {
	cred, err := k.settings(ctx, "refund")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"payment_reference": gatewayReference,
		"reference":         "RF-" + gatewayReference,
		"amount":            amount.InexactFloat64(),
	}
	resp, err := k.post(ctx, "refund", cred, "/refunds/initiate", payload)
	if err != nil {
		return nil, err
	}
	if resp.Body["status"] != true {
		return resp.Raw, permanent(k.name, "refund", errors.New(common.StringAt(resp.Body, "message")))
	}
	return resp.Raw, nil
}

type korapayEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseCallback verifies x-korapay-signature, an HMAC-SHA256 over the data object only.
func (k *Korapay) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*Outcome, error) {
	cred, err := k.settings(ctx, "callback")
	if err != nil {
		return nil, err
	}

	var event korapayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, permanent(k.name, "callback", fmt.Errorf("decode: %w", err))
	}

	signature := headers.Get("x-korapay-signature")
	if !hmac.Equal([]byte(signature), []byte(SignKorapay(cred.SecretKey, event.Data))) {
		return nil, permanent(k.name, "callback", errors.New("invalid signature"))
	}

	var data struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, permanent(k.name, "callback", fmt.Errorf("decode data: %w", err))
	}

	switch event.Event {
	case "charge.success":
		return &Outcome{GatewayReference: data.Reference, Success: true, Payload: body}, nil
	case "charge.failed":
		return &Outcome{GatewayReference: data.Reference, Reason: "declined by korapay", Payload: body}, nil
	default:
		return nil, fmt.Errorf("%s %q: %w", k.name, event.Event, ErrUnhandledEvent)
	}
}

// SignKorapay signs the compacted JSON of the callback's data object.
func SignKorapay(secret string, data []byte) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		compact.Reset()
		compact.Write(data)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(compact.Bytes())
	return hex.EncodeToString(mac.Sum(nil))
}
