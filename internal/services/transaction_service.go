package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-engine/internal/events"
	"payment-engine/internal/gateway"
	"payment-engine/internal/lock"
	"payment-engine/internal/logger"
	"payment-engine/internal/metrics"
	"payment-engine/internal/models"
	"payment-engine/internal/repository"
	"payment-engine/pkg/common"
)

const maxReferenceLength = 100

// TransactionService owns every status change of a payment transaction.
// Mutating operations hold a per-transaction lock, and each transition is a
// single compare-and-set write in the store.
type TransactionService struct {
	Store     repository.TransactionStore
	Gateways  *gateway.Registry
	Locker    lock.Locker
	Publisher events.Publisher
	// Timeout caps each gateway call on top of the caller's own deadline.
	Timeout time.Duration

	now func() time.Time
}

func NewTransactionService(store repository.TransactionStore, gateways *gateway.Registry, locker lock.Locker, publisher events.Publisher, timeout time.Duration) *TransactionService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &TransactionService{
		Store:     store,
		Gateways:  gateways,
		Locker:    locker,
		Publisher: publisher,
		Timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateTransactionInput struct {
	Reference  string
	UserID     string
	PropertyID string
	Amount     decimal.Decimal
	Currency   models.Currency
	Type       models.TransactionType
	Method     models.PaymentMethod
	Gateway    string
}

func (s *TransactionService) validate(in CreateTransactionInput) error {
	var problems []string

	if strings.TrimSpace(in.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(in.PropertyID) == "" {
		problems = append(problems, "property_id is required")
	}
	if len(in.Reference) > maxReferenceLength {
		problems = append(problems, fmt.Sprintf("reference must be at most %d characters", maxReferenceLength))
	}
	if !in.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	} else if !in.Amount.Equal(in.Amount.Truncate(2)) {
		problems = append(problems, "amount must have at most two decimal places")
	}
	if !models.ValidCurrency(in.Currency) {
		problems = append(problems, fmt.Sprintf("unsupported currency %q", in.Currency))
	}
	if !models.ValidType(in.Type) {
		problems = append(problems, fmt.Sprintf("unsupported transaction type %q", in.Type))
	}
	if !models.ValidMethod(in.Method) {
		problems = append(problems, fmt.Sprintf("unsupported payment method %q", in.Method))
	}

	adapter, err := s.Gateways.Get(in.Gateway)
	if err != nil {
		problems = append(problems, fmt.Sprintf("unsupported gateway %q", in.Gateway))
	} else if models.ValidMethod(in.Method) && !adapter.Supports(in.Method) {
		problems = append(problems, fmt.Sprintf("gateway %s does not support %s", in.Gateway, in.Method))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// CreateTransaction persists a new pending transaction. When the reference
// already exists the stored record is returned untouched and created is false.
func (s *TransactionService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (tx *models.Transaction, created bool, err error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if err := s.validate(in); err != nil {
		return nil, false, fmt.Errorf("CreateTransaction: %w", err)
	}

	if in.Reference != "" {
		existing, err := s.Store.GetByReference(ctx, in.Reference)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, fmt.Errorf("CreateTransaction: %w", err)
		}
		return s.insert(ctx, in, in.Reference, false)
	}

	// A generated reference that collides belongs to someone else; draw again.
	for attempt := 0; attempt < 3; attempt++ {
		tx, created, err = s.insert(ctx, in, common.PropertyReference(in.PropertyID), true)
		if !errors.Is(err, models.ErrDuplicateReference) {
			return tx, created, err
		}
	}
	return nil, false, fmt.Errorf("CreateTransaction: could not allocate a reference: %w", err)
}

func (s *TransactionService) insert(ctx context.Context, in CreateTransactionInput, reference string, generated bool) (*models.Transaction, bool, error) {
	now := s.now()
	tx := &models.Transaction{
		ID:         uuid.NewString(),
		Reference:  reference,
		UserID:     in.UserID,
		PropertyID: in.PropertyID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Type:       in.Type,
		Method:     in.Method,
		Gateway:    in.Gateway,
		Status:     models.StatusPending,
		Retryable:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Store.Create(ctx, tx); err != nil {
		if errors.Is(err, models.ErrDuplicateReference) {
			if generated {
				return nil, false, err
			}
			// Lost an insert race on a caller reference: the winner is the answer.
			winner, getErr := s.Store.GetByReference(ctx, reference)
			if getErr != nil {
				return nil, false, fmt.Errorf("CreateTransaction: %w", getErr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("CreateTransaction: %w", err)
	}

	logger.FromContext(ctx).Info().
		Str("transaction_id", tx.ID).
		Str("reference", tx.Reference).
		Str("gateway", tx.Gateway).
		Str("amount", tx.Amount.StringFixed(2)).
		Str("currency", string(tx.Currency)).
		Msg("Transaction created")

	return tx, true, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

func (s *TransactionService) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	tx, err := s.Store.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionByReference: %w", err)
	}
	return tx, nil
}

func (s *TransactionService) ListUserTransactions(ctx context.Context, userID string, page, limit int) ([]models.Transaction, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, fmt.Errorf("ListUserTransactions: %w: user_id is required", models.ErrInvalidInput)
	}
	txs, total, err := s.Store.List(ctx, models.TransactionFilter{UserID: userID}, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("ListUserTransactions: %w", err)
	}
	return txs, total, nil
}

// StaleProcessing lists processing transactions untouched for olderThan.
func (s *TransactionService) StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]models.Transaction, error) {
	txs, _, err := s.Store.List(ctx, models.TransactionFilter{
		Status:        models.StatusProcessing,
		UpdatedBefore: s.now().Add(-olderThan),
	}, 1, limit)
	if err != nil {
		return nil, fmt.Errorf("StaleProcessing: %w", err)
	}
	return txs, nil
}

func (s *TransactionService) withLock(ctx context.Context, op, id string, fn func() (*models.Transaction, error)) (*models.Transaction, error) {
	release, err := s.Locker.Acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire lock: %w", op, err)
	}
	defer release()
	return fn()
}

// transition commits one status change, then records it in metrics and on
// the event stream. Publishing never fails the transition.
func (s *TransactionService) transition(ctx context.Context, tx *models.Transaction, update models.StatusUpdate) (*models.Transaction, error) {
	update.At = s.now()
	if !update.At.After(tx.UpdatedAt) {
		update.At = tx.UpdatedAt.Add(time.Microsecond)
	}

	updated, err := s.Store.Transition(ctx, tx.ID, tx.Status, update)
	if err != nil {
		return nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(tx.Gateway, string(tx.Status), string(updated.Status)).Inc()

	log := logger.FromContext(ctx)
	if err := s.Publisher.PublishTransition(ctx, events.NewTransitionEvent(updated, tx.Status)); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to publish transition event")
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("reference", tx.Reference).
		Str("from", string(tx.Status)).
		Str("to", string(updated.Status)).
		Msg("Transaction transitioned")
	return updated, nil
}

func (s *TransactionService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *TransactionService) initializeRequest(tx *models.Transaction) gateway.InitializeRequest {
	return gateway.InitializeRequest{
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Method:    tx.Method,
		Metadata: map[string]string{
			"transaction_id":   tx.ID,
			"user_id":          tx.UserID,
			"property_id":      tx.PropertyID,
			"transaction_type": string(tx.Type),
		},
	}
}

// InitializeGatewaySession opens a gateway session for a pending transaction.
// On a gateway failure the failed record is returned together with the
// classified error. On timeout nothing is written.
func (s *TransactionService) InitializeGatewaySession(ctx context.Context, id string) (*models.Transaction, error) {
	const op = "InitializeGatewaySession"
	return s.withLock(ctx, op, id, func() (*models.Transaction, error) {
		tx, err := s.Store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tx.Status != models.StatusPending {
			return nil, fmt.Errorf("%s: transaction is %s: %w", op, tx.Status, models.ErrInvalidState)
		}
		return s.openSession(ctx, op, tx, nil)
	})
}

// openSession calls Initialize and commits its result. reset, when set, runs
// after the gateway has answered and returns the pending record to move on from.
func (s *TransactionService) openSession(ctx context.Context, op string, tx *models.Transaction, reset func(context.Context) (*models.Transaction, error)) (*models.Transaction, error) {
	adapter, err := s.Gateways.Get(tx.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	started := time.Now()
	session, callErr := adapter.Initialize(callCtx, s.initializeRequest(tx))
	if timedOut(callCtx, callErr) {
		metrics.ObserveGatewayCall(tx.Gateway, "initialize", "timeout", started)
		return nil, fmt.Errorf("%s: %w", op, models.ErrGatewayTimeout)
	}
	metrics.ObserveGatewayCall(tx.Gateway, "initialize", gatewayResult(callErr), started)

	// The gateway has answered; its result is committed even if the caller leaves now.
	persistCtx := context.WithoutCancel(ctx)

	pending := tx
	if reset != nil {
		if pending, err = reset(persistCtx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if callErr != nil {
		retryable := !gateway.IsPermanent(callErr)
		failed, err := s.transition(persistCtx, pending, models.StatusUpdate{
			To:               models.StatusFailed,
			GatewayResponse:  strPtr(errorPayload(callErr)),
			FailureReason:    strPtr(callErr.Error()),
			Retryable:        boolPtr(retryable),
			IncrementAttempt: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return failed, fmt.Errorf("%s: %w", op, callErr)
	}

	processing, err := s.transition(persistCtx, pending, models.StatusUpdate{
		To:               models.StatusProcessing,
		GatewayReference: strPtr(session.GatewayReference),
		GatewayResponse:  strPtr(string(session.Payload)),
		FailureReason:    strPtr(""),
		IncrementAttempt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return processing, nil
}

// ApplyGatewayOutcome settles a processing transaction. Outcomes for any other
// status, or for a different gateway reference, are discarded without error.
func (s *TransactionService) ApplyGatewayOutcome(ctx context.Context, id string, outcome gateway.Outcome) (*models.Transaction, error) {
	tx, _, err := s.applyOutcome(ctx, id, outcome)
	return tx, err
}

func (s *TransactionService) applyOutcome(ctx context.Context, id string, outcome gateway.Outcome) (*models.Transaction, models.CallbackDisposition, error) {
	const op = "ApplyGatewayOutcome"
	disposition := models.CallbackApplied

	tx, err := s.withLock(ctx, op, id, func() (*models.Transaction, error) {
		tx, err := s.Store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		log := logger.FromContext(ctx).With().
			Str("transaction_id", tx.ID).
			Str("status", string(tx.Status)).
			Bool("success", outcome.Success).
			Logger()

		if tx.Status != models.StatusProcessing {
			disposition = models.CallbackDiscarded
			log.Info().Msg("Gateway outcome discarded: transaction not processing")
			return tx, nil
		}
		if outcome.GatewayReference != "" && tx.GatewayReference != nil && *tx.GatewayReference != outcome.GatewayReference {
			disposition = models.CallbackDiscarded
			log.Warn().
				Str("expected", *tx.GatewayReference).
				Str("received", outcome.GatewayReference).
				Msg("Gateway outcome discarded: gateway reference mismatch")
			return tx, nil
		}

		update := models.StatusUpdate{
			To:              models.StatusCompleted,
			GatewayResponse: strPtr(string(outcome.Payload)),
		}
		if !outcome.Success {
			reason := outcome.Reason
			if reason == "" {
				reason = "gateway reported failure"
			}
			update.To = models.StatusFailed
			update.FailureReason = strPtr(reason)
			update.Retryable = boolPtr(true)
		}

		updated, err := s.transition(ctx, tx, update)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return updated, nil
	})
	return tx, disposition, err
}

// RetryTransaction re-opens a failed transaction with the same reference and
// financial fields. failed -> pending is only committed once the gateway has
// answered, so a timeout leaves the record failed.
func (s *TransactionService) RetryTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	const op = "RetryTransaction"
	return s.withLock(ctx, op, id, func() (*models.Transaction, error) {
		tx, err := s.Store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tx.Status != models.StatusFailed {
			return nil, fmt.Errorf("%s: transaction is %s: %w", op, tx.Status, models.ErrInvalidState)
		}
		if !tx.Retryable {
			return nil, fmt.Errorf("%s: %w: %w", op, models.ErrNotRetryable, models.ErrPermanentGateway)
		}

		return s.openSession(ctx, op, tx, func(persistCtx context.Context) (*models.Transaction, error) {
			return s.transition(persistCtx, tx, models.StatusUpdate{To: models.StatusPending})
		})
	})
}

// RequestRefund refunds a completed transaction. A failed refund leaves the
// record completed; it is never retried automatically.
func (s *TransactionService) RequestRefund(ctx context.Context, id string) (*models.Transaction, error) {
	const op = "RequestRefund"
	return s.withLock(ctx, op, id, func() (*models.Transaction, error) {
		tx, err := s.Store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tx.Status != models.StatusCompleted {
			return nil, fmt.Errorf("%s: transaction is %s: %w", op, tx.Status, models.ErrInvalidState)
		}
		if tx.GatewayReference == nil || *tx.GatewayReference == "" {
			return nil, fmt.Errorf("%s: no gateway reference: %w", op, models.ErrInvalidState)
		}

		adapter, err := s.Gateways.Get(tx.Gateway)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		started := time.Now()
		raw, callErr := adapter.Refund(callCtx, *tx.GatewayReference, tx.Amount)
		if timedOut(callCtx, callErr) {
			metrics.ObserveGatewayCall(tx.Gateway, "refund", "timeout", started)
			return nil, fmt.Errorf("%s: %w", op, models.ErrGatewayTimeout)
		}
		metrics.ObserveGatewayCall(tx.Gateway, "refund", gatewayResult(callErr), started)

		if callErr != nil {
			logger.FromContext(ctx).Warn().
				Err(callErr).
				Str("transaction_id", tx.ID).
				Msg("Refund rejected by gateway")
			return nil, fmt.Errorf("%s: %w: %w", op, models.ErrRefundFailed, callErr)
		}

		refunded, err := s.transition(context.WithoutCancel(ctx), tx, models.StatusUpdate{
			To:              models.StatusRefunded,
			GatewayResponse: strPtr(string(raw)),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return refunded, nil
	})
}

type CallbackResult struct {
	Disposition models.CallbackDisposition
	Transaction *models.Transaction
}

// HandleGatewayCallback verifies and normalizes a raw gateway callback, finds
// its transaction and applies the outcome. Unknown, duplicate and
// informational callbacks are acknowledged with a disposition, not an error.
func (s *TransactionService) HandleGatewayCallback(ctx context.Context, gatewayName string, headers http.Header, body []byte) (*CallbackResult, error) {
	const op = "HandleGatewayCallback"

	adapter, err := s.Gateways.Get(gatewayName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entry := models.CallbackLog{Gateway: gatewayName, Source: SourceWebhook, Payload: string(body)}

	outcome, err := adapter.ParseCallback(ctx, headers, body)
	if err != nil {
		if errors.Is(err, gateway.ErrUnhandledEvent) {
			entry.Disposition = models.CallbackDiscarded
			entry.Note = err.Error()
			s.logCallback(ctx, entry)
			return &CallbackResult{Disposition: models.CallbackDiscarded}, nil
		}
		entry.Disposition = models.CallbackRejected
		entry.Note = err.Error()
		s.logCallback(ctx, entry)
		return &CallbackResult{Disposition: models.CallbackRejected}, fmt.Errorf("%s: %w", op, err)
	}
	entry.GatewayReference = outcome.GatewayReference

	tx, err := s.Store.GetByGatewayReference(ctx, gatewayName, outcome.GatewayReference)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			entry.Disposition = models.CallbackUnmatched
			s.logCallback(ctx, entry)
			logger.FromContext(ctx).Warn().
				Str("gateway", gatewayName).
				Str("gateway_reference", outcome.GatewayReference).
				Msg("Callback does not match any transaction")
			return &CallbackResult{Disposition: models.CallbackUnmatched}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	entry.TransactionID = tx.ID

	applied, disposition, err := s.applyOutcome(ctx, tx.ID, *outcome)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	entry.Disposition = disposition
	s.logCallback(ctx, entry)

	return &CallbackResult{Disposition: disposition, Transaction: applied}, nil
}

// AuthenticateCallback runs the gateway's signature and decoding checks on a
// callback without touching any transaction. Rejections are written to the
// callback log; events the gateway adapter does not handle pass.
func (s *TransactionService) AuthenticateCallback(ctx context.Context, gatewayName string, headers http.Header, body []byte) error {
	const op = "AuthenticateCallback"

	adapter, err := s.Gateways.Get(gatewayName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = adapter.ParseCallback(ctx, headers, body)
	if err == nil || errors.Is(err, gateway.ErrUnhandledEvent) {
		return nil
	}
	if !gateway.IsPermanent(err) {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logCallback(ctx, models.CallbackLog{
		Gateway:     gatewayName,
		Source:      SourceWebhook,
		Payload:     string(body),
		Disposition: models.CallbackRejected,
		Note:        err.Error(),
	})
	return fmt.Errorf("%s: %w", op, err)
}

// VerifyTransaction polls the gateway for a processing transaction and applies
// a terminal answer. Open sessions are left alone.
func (s *TransactionService) VerifyTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	const op = "VerifyTransaction"

	tx, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tx.Status != models.StatusProcessing || tx.GatewayReference == nil {
		return tx, nil
	}

	adapter, err := s.Gateways.Get(tx.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	started := time.Now()
	outcome, err := adapter.Verify(callCtx, *tx.GatewayReference)
	if timedOut(callCtx, err) {
		metrics.ObserveGatewayCall(tx.Gateway, "verify", "timeout", started)
		return tx, fmt.Errorf("%s: %w", op, models.ErrGatewayTimeout)
	}
	metrics.ObserveGatewayCall(tx.Gateway, "verify", gatewayResult(err), started)

	if errors.Is(err, gateway.ErrAwaitingCallback) {
		return tx, nil
	}
	if err != nil {
		return tx, fmt.Errorf("%s: %w", op, err)
	}

	applied, disposition, err := s.applyOutcome(ctx, tx.ID, *outcome)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logCallback(ctx, models.CallbackLog{
		Gateway:          tx.Gateway,
		TransactionID:    tx.ID,
		GatewayReference: outcome.GatewayReference,
		Source:           SourceVerify,
		Payload:          string(outcome.Payload),
		Disposition:      disposition,
	})
	return applied, nil
}
