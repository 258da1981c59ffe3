// Package events publishes committed transaction transitions.
package events

import (
	"context"
	"time"

	"payment-engine/internal/models"
)

const EventTypeTransition = "transaction.transitioned"

type TransitionEvent struct {
	EventID       string                   `json:"event_id"`
	EventType     string                   `json:"event_type"`
	TransactionID string                   `json:"transaction_id"`
	Reference     string                   `json:"reference"`
	Gateway       string                   `json:"gateway"`
	From          models.TransactionStatus `json:"from"`
	To            models.TransactionStatus `json:"to"`
	Amount        string                   `json:"amount"`
	Currency      models.Currency          `json:"currency"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

func NewTransitionEvent(tx *models.Transaction, from models.TransactionStatus) TransitionEvent {
	return TransitionEvent{
		EventType:     EventTypeTransition,
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Gateway:       tx.Gateway,
		From:          from,
		To:            tx.Status,
		Amount:        tx.Amount.StringFixed(2),
		Currency:      tx.Currency,
		OccurredAt:    tx.UpdatedAt,
	}
}

type Publisher interface {
	PublishTransition(ctx context.Context, event TransitionEvent) error
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransition(context.Context, TransitionEvent) error { return nil }
func (NoopPublisher) Close() error                                           { return nil }
