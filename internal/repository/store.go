// Package repository holds the durable storage for payment transactions.
// Writers outside the transaction service must not use it to change status.
package repository

import (
	"context"

	"payment-engine/internal/models"
)

// TransactionStore is the single source of truth for transaction records.
// Records are never deleted; Transition is the only mutating call after Create.
type TransactionStore interface {
	// Create inserts a new record. A reference collision returns
	// models.ErrDuplicateReference and leaves the existing record untouched.
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetByGatewayReference(ctx context.Context, gateway, gatewayReference string) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter, page, limit int) ([]models.Transaction, int64, error)
	// Transition atomically moves a record from `from` to update.To and writes
	// the lifecycle columns in the same statement. If the stored status is no
	// longer `from` it returns models.ErrInvalidState and writes nothing.
	Transition(ctx context.Context, id string, from models.TransactionStatus, update models.StatusUpdate) (*models.Transaction, error)
	Aggregate(ctx context.Context, filter models.TransactionFilter) ([]models.AggregateRow, error)
	LogCallback(ctx context.Context, entry *models.CallbackLog) error
}

// CredentialStore resolves gateway credentials at call time.
type CredentialStore interface {
	Credentials(ctx context.Context, gateway string) (*models.GatewayCredential, error)
	SaveCredential(ctx context.Context, cred *models.GatewayCredential) error
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	return page, limit
}
