package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payment-engine/internal/events"
	"payment-engine/internal/gateway"
	"payment-engine/internal/lock"
	"payment-engine/internal/models"
	"payment-engine/internal/repository"
)

const fakeGateway = "gatewaya"

// fakeAdapter is a programmable gateway. It supports every method but crypto.
type fakeAdapter struct {
	mu sync.Mutex

	gatewayRef  string
	initErr     error
	initDelay   time.Duration
	refundErr   error
	refundDelay time.Duration
	verifyOut   *gateway.Outcome
	verifyErr   error

	initRequests []gateway.InitializeRequest
	refundCalls  int
}

func (f *fakeAdapter) Name() string { return fakeGateway }

func (f *fakeAdapter) Supports(method models.PaymentMethod) bool {
	return method != models.MethodCrypto
}

func wait(ctx context.Context, d time.Duration, op string) error {
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return &gateway.Error{Gateway: fakeGateway, Op: op, Err: ctx.Err()}
	}
}

func (f *fakeAdapter) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Session, error) {
	f.mu.Lock()
	f.initRequests = append(f.initRequests, req)
	delay, initErr, ref := f.initDelay, f.initErr, f.gatewayRef
	f.mu.Unlock()

	if err := wait(ctx, delay, "initialize"); err != nil {
		return nil, err
	}
	if initErr != nil {
		return nil, initErr
	}
	if ref == "" {
		ref = "gw-" + req.Reference
	}
	payload, _ := json.Marshal(map[string]string{"reference": ref, "status": "open"})
	return &gateway.Session{GatewayReference: ref, Payload: payload}, nil
}

func (f *fakeAdapter) Verify(ctx context.Context, gatewayReference string) (*gateway.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyOut == nil {
		return nil, gateway.ErrAwaitingCallback
	}
	out := *f.verifyOut
	if out.GatewayReference == "" {
		out.GatewayReference = gatewayReference
	}
	return &out, nil
}

func (f *fakeAdapter) Refund(ctx context.Context, gatewayReference string, amount decimal.Decimal) (json.RawMessage, error) {
	f.mu.Lock()
	f.refundCalls++
	delay, refundErr := f.refundDelay, f.refundErr
	f.mu.Unlock()

	if err := wait(ctx, delay, "refund"); err != nil {
		return nil, err
	}
	if refundErr != nil {
		return nil, refundErr
	}
	return json.RawMessage(fmt.Sprintf(`{"reference":%q,"refunded":%q}`, gatewayReference, amount.StringFixed(2))), nil
}

func (f *fakeAdapter) ParseCallback(ctx context.Context, headers http.Header, body []byte) (*gateway.Outcome, error) {
	if headers.Get("X-Fake-Signature") != "valid" {
		return nil, &gateway.Error{Gateway: fakeGateway, Op: "callback", Permanent: true, Err: errors.New("invalid signature")}
	}
	var event struct {
		Event     string `json:"event"`
		Reference string `json:"reference"`
		Success   bool   `json:"success"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, &gateway.Error{Gateway: fakeGateway, Op: "callback", Permanent: true, Err: err}
	}
	if event.Event != "charge" {
		return nil, gateway.ErrUnhandledEvent
	}
	return &gateway.Outcome{GatewayReference: event.Reference, Success: event.Success, Payload: body}, nil
}

func (f *fakeAdapter) set(fn func(f *fakeAdapter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransitionEvent
	err    error
}

func (p *recordingPublisher) PublishTransition(ctx context.Context, e events.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) transitions(txID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.TransactionID == txID {
			out = append(out, string(e.From)+"->"+string(e.To))
		}
	}
	return out
}

type harness struct {
	svc       *TransactionService
	store     *repository.MemoryStore
	adapter   *fakeAdapter
	publisher *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	adapter := &fakeAdapter{}
	publisher := &recordingPublisher{}
	registry := gateway.NewRegistry(adapter, gateway.NewSandbox("secret"))
	svc := NewTransactionService(store, registry, lock.NewLocalLocker(), publisher, 2*time.Second)
	return &harness{svc: svc, store: store, adapter: adapter, publisher: publisher}
}

func validInput(reference string) CreateTransactionInput {
	return CreateTransactionInput{
		Reference:  reference,
		UserID:     "7",
		PropertyID: "42",
		Amount:     decimal.NewFromInt(500000),
		Currency:   models.CurrencyNGN,
		Type:       models.TypeDeposit,
		Method:     models.MethodBankTransfer,
		Gateway:    fakeGateway,
	}
}

func (h *harness) create(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	tx, created, err := h.svc.CreateTransaction(context.Background(), validInput(reference))
	require.NoError(t, err)
	require.True(t, created)
	return tx
}

// processing creates a transaction and opens its gateway session.
func (h *harness) processing(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	tx := h.create(t, reference)
	tx, err := h.svc.InitializeGatewaySession(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, tx.Status)
	return tx
}

func (h *harness) completed(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	tx := h.processing(t, reference)
	tx, err := h.svc.ApplyGatewayOutcome(context.Background(), tx.ID, gateway.Outcome{
		GatewayReference: *tx.GatewayReference,
		Success:          true,
		Payload:          json.RawMessage(`{"status":"success"}`),
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, tx.Status)
	return tx
}

// seed writes a record straight into the store in the given status.
func (h *harness) seed(t *testing.T, reference string, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ID:         "seed-" + reference,
		Reference:  reference,
		UserID:     "7",
		PropertyID: "42",
		Amount:     decimal.NewFromInt(1000),
		Currency:   models.CurrencyNGN,
		Type:       models.TypeInstallment,
		Method:     models.MethodCard,
		Gateway:    fakeGateway,
		Status:     status,
		Retryable:  true,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		UpdatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	if status != models.StatusPending {
		ref := "gw-" + reference
		tx.GatewayReference = &ref
	}
	require.NoError(t, h.store.Create(context.Background(), tx))
	return tx
}

func callbackHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Fake-Signature", "valid")
	return h
}
