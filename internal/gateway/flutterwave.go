package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
	"payment-engine/pkg/common"
)

const FlutterwaveName = "flutterwave"

var flutterwaveOptions = map[models.PaymentMethod]string{
	models.MethodCard:         "card",
	models.MethodBankTransfer: "banktransfer",
	models.MethodUSSD:         "ussd",
	models.MethodMobileMoney:  "mobilemoneyghana,mobilemoneyuganda,mpesa",
	models.MethodBankDeposit:  "account",
}

// Flutterwave keys sessions by our tx_ref; its own numeric id is only needed for refunds.
type Flutterwave struct {
	httpAdapter
}

func NewFlutterwave(creds CredentialSource, client *http.Client, callbackURL string) *Flutterwave {
	return &Flutterwave{httpAdapter{name: FlutterwaveName, creds: creds, client: client, callbackURL: callbackURL}}
}

func (f *Flutterwave) Supports(method models.PaymentMethod) bool {
	_, ok := flutterwaveOptions[method]
	return ok
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	cred, err := f.settings(ctx, "initialize")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"tx_ref":          req.Reference,
		"amount":          req.Amount.StringFixed(2),
		"currency":        req.Currency,
		"redirect_url":    f.callbackURL,
		"payment_options": flutterwaveOptions[req.Method],
		"customer":        map[string]string{"email": customerEmail(req)},
		"meta":            req.Metadata,
	}

	resp, err := f.post(ctx, "initialize", cred, "/payments", payload)
	if err != nil {
		return nil, err
	}

	link := common.StringAt(resp.Body, "data", "link")
	if common.StringAt(resp.Body, "status") != "success" || link == "" {
		return nil, permanent(f.name, "initialize", errors.New("payment link not found"))
	}
	return &Session{GatewayReference: req.Reference, CheckoutURL: link, Payload: resp.Raw}, nil
}

func (f *Flutterwave) lookup(ctx context.Context, op string, cred *models.GatewayCredential, txRef string) (*common.HTTPResponse, error) {
	return f.get(ctx, op, cred, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(txRef))
}

func (f *Flutterwave) Verify(ctx context.Context, gatewayReference string) (*Outcome, error) {
	cred, err := f.settings(ctx, "verify")
	if err != nil {
		return nil, err
	}

	resp, err := f.lookup(ctx, "verify", cred, gatewayReference)
	if err != nil {
		return nil, err
	}

	switch status := common.StringAt(resp.Body, "data", "status"); status {
	case "successful":
		return &Outcome{GatewayReference: gatewayReference, Success: true, Payload: resp.Raw}, nil
	case "failed":
		reason := common.StringAt(resp.Body, "data", "processor_response")
		if reason == "" {
			reason = "flutterwave reported failed"
		}
		return &Outcome{GatewayReference: gatewayReference, Reason: reason, Payload: resp.Raw}, nil
	default:
		return nil, ErrAwaitingCallback
	}
}

func (f *Flutterwave) Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error) {
	cred, err := f.settings(ctx, "refund")
	if err != nil {
		return nil, err
	}

	found, err := f.lookup(ctx, "refund", cred, gatewayReference)
	if err != nil {
		return nil, err
	}
	id := common.StringAt(found.Body, "data", "id")
	if id == "" {
		return found.Raw, permanent(f.name, "refund", errors.New("transaction id not found"))
	}

	resp, err := f.post(ctx, "refund", cred, "/transactions/"+url.PathEscape(id)+"/refund", map[string]interface{}{
		"amount": amount.StringFixed(2),
	})
	if err != nil {
		return nil, err
	}
	if common.StringAt(resp.Body, "status") != "success" {
		return resp.Raw, permanent(f.name, "refund", errors.New(common.StringAt(resp.Body, "message")))
	}
	return resp.Raw, nil
}

type flutterwaveEvent struct {
	Event string `json:"event"`
	Data  struct {
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// ParseCallback checks the verif-hash header against the secret hash set on the dashboard.
func (f *Flutterwave) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*Outcome, error) {
	cred, err := f.settings(ctx, "callback")
	if err != nil {
		return nil, err
	}

	hash := headers.Get("verif-hash")
	if cred.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(hash), []byte(cred.WebhookSecret)) != 1 {
		return nil, permanent(f.name, "callback", errors.New("invalid signature"))
	}

	var event flutterwaveEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, permanent(f.name, "callback", fmt.Errorf("decode: %w", err))
	}
	if event.Event != "charge.completed" {
		return nil, fmt.Errorf("%s %q: %w", f.name, event.Event, ErrUnhandledEvent)
	}

	switch strings.ToLower(event.Data.Status) {
	case "successful":
		return &Outcome{GatewayReference: event.Data.TxRef, Success: true, Payload: body}, nil
	case "failed":
		return &Outcome{GatewayReference: event.Data.TxRef, Reason: "declined by flutterwave", Payload: body}, nil
	default:
		return nil, fmt.Errorf("%s status %q: %w", f.name, event.Data.Status, ErrUnhandledEvent)
	}
}
