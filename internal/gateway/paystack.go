package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

const PaystackName = "paystack"

var paystackChannels = map[models.PaymentMethod]string{
	models.MethodCard:         "card",
	models.MethodBankTransfer: "bank_transfer",
	models.MethodUSSD:         "ussd",
	models.MethodMobileMoney:  "mobile_money",
}

// Paystack amounts travel in kobo (minor units).
type Paystack struct {
	httpAdapter
}

func NewPaystack(creds CredentialSource, client *http.Client, callbackURL string) *Paystack {
	return &Paystack{httpAdapter{name: PaystackName, creds: creds, client: client, callbackURL: callbackURL}}
}

func (p *Paystack) Supports(method models.PaymentMethod) bool {
	_, ok := paystackChannels[method]
	return ok
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	cred, err := p.settings(ctx, "initialize")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"email":        customerEmail(req),
		"amount":       common.MinorUnits(req.Amount),
		"currency":     req.Currency,
		"reference":    req.Reference,
		"callback_url": p.callbackURL,
		"channels":     []string{paystackChannels[req.Method]},
		"metadata":     req.Metadata,
	}

	resp, err := p.post(ctx, "initialize", cred, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	if resp.Body["status"] != true {
		return nil, permanent(p.name, "initialize", errors.New(common.StringAt(resp.Body, "message")))
	}

	ref := common.StringAt(resp.Body, "data", "reference")
	if ref == "" {
		ref = req.Reference
	}
	return &Session{
		GatewayReference: ref,
		CheckoutURL:      common.StringAt(resp.Body, "data", "authorization_url"),
		Payload:          resp.Raw,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, gatewayReference string) (*Outcome, error) {
	cred, err := p.settings(ctx, "verify")
	if err != nil {
		return nil, err
	}

	resp, err := p.get(ctx, "verify", cred, "/transaction/verify/"+url.PathEscape(gatewayReference))
	if err != nil {
		return nil, err
	}

	status := common.StringAt(resp.Body, "data", "status")
	switch status {
	case "success":
		return &Outcome{GatewayReference: gatewayReference, Success: true, Payload: resp.Raw}, nil
	case "failed", "reversed":
		return &Outcome{
			GatewayReference: gatewayReference,
			Reason:           paystackReason(resp.Body, status),
			Payload:          resp.Raw,
		}, nil
	default:
		// ongoing, pending, queued and abandoned are all still open
		return nil, ErrAwaitingCallback
	}
}

func (p *Paystack) Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error) {
	cred, err := p.settings(ctx, "refund")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"transaction": gatewayReference,
		"amount":      common.MinorUnits(amount),
	}
	resp, err := p.post(ctx, "refund", cred, "/refund", payload)
	if err != nil {
		return nil, err
	}
	if resp.Body["status"] != true {
		return resp.Raw, permanent(p.name, "refund", errors.New(common.StringAt(resp.Body, "message")))
	}
	return resp.Raw, nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (p *Paystack) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*Outcome, error) {
	cred, err := p.settings(ctx, "callback")
	if err != nil {
		return nil, err
	}

	signature := headers.Get("x-paystack-signature")
	if !hmac.Equal([]byte(signature), []byte(SignPaystack(cred.SecretKey, body))) {
		return nil, permanent(p.name, "callback", errors.New("invalid signature"))
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, permanent(p.name, "callback", fmt.Errorf("decode: %w", err))
	}

	switch event.Event {
	case "charge.success":
		return &Outcome{GatewayReference: event.Data.Reference, Success: true, Payload: body}, nil
	case "charge.failed":
		reason := event.Data.GatewayResponse
		if reason == "" {
			reason = "declined by paystack"
		}
		return &Outcome{GatewayReference: event.Data.Reference, Reason: reason, Payload: body}, nil
	default:
		return nil, fmt.Errorf("%s %q: %w", p.name, event.Event, ErrUnhandledEvent)
	}
}

// SignPaystack computes the x-paystack-signature value for body.
func SignPaystack(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func paystackReason(body map[string]interface{}, status string) string {
	if reason := common.StringAt(body, "data", "gateway_response"); reason != "" {
		return reason
	}
	return "paystack reported " + status
}
