package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
)

// MemoryStore keeps everything in process. It backs DB_DRIVER=memory for
// local runs and the service tests; semantics match GormStore.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*models.Transaction
	byReference map[string]string
	callbacks   []models.CallbackLog
	credentials map[string]models.GatewayCredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*models.Transaction),
		byReference: make(map[string]string),
		credentials: make(map[string]models.GatewayCredential),
	}
}

func clone(tx *models.Transaction) *models.Transaction {
	c := *tx
	if tx.GatewayReference != nil {
		ref := *tx.GatewayReference
		c.GatewayReference = &ref
	}
	return &c
}

func (s *MemoryStore) Create(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byReference[tx.Reference]; ok {
		return fmt.Errorf("Create: %w", models.ErrDuplicateReference)
	}
	if _, ok := s.byID[tx.ID]; ok {
		return fmt.Errorf("Create: duplicate id %s", tx.ID)
	}
	s.byID[tx.ID] = clone(tx)
	s.byReference[tx.Reference] = tx.ID
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", models.ErrNotFound)
	}
	return clone(tx), nil
}

func (s *MemoryStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReference[reference]
	if !ok {
		return nil, fmt.Errorf("GetByReference: %w", models.ErrNotFound)
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) GetByGatewayReference(ctx context.Context, gateway, gatewayReference string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.byID {
		if tx.Gateway == gateway && tx.GatewayReference != nil && *tx.GatewayReference == gatewayReference {
			return clone(tx), nil
		}
	}
	return nil, fmt.Errorf("GetByGatewayReference: %w", models.ErrNotFound)
}

func (s *MemoryStore) matching(filter models.TransactionFilter) []*models.Transaction {
	var out []*models.Transaction
	for _, tx := range s.byID {
		if filter.UserID != "" && tx.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !tx.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (s *MemoryStore) List(ctx context.Context, filter models.TransactionFilter, page, limit int) ([]models.Transaction, int64, error) {
	page, limit = normalizePage(page, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.matching(filter)
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Transaction{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	results := make([]models.Transaction, 0, end-start)
	for _, tx := range all[start:end] {
		results = append(results, *clone(tx))
	}
	return results, total, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from models.TransactionStatus, update models.StatusUpdate) (*models.Transaction, error) {
	if !models.CanTransition(from, update.To) {
		return nil, fmt.Errorf("Transition: %s -> %s: %w", from, update.To, models.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("Transition: %w", models.ErrNotFound)
	}
	if tx.Status != from {
		return nil, fmt.Errorf("Transition: expected %s, found %s: %w", from, tx.Status, models.ErrInvalidState)
	}

	tx.Status = update.To
	tx.UpdatedAt = update.At
	if update.GatewayReference != nil {
		ref := *update.GatewayReference
		tx.GatewayReference = &ref
	}
	if update.GatewayResponse != nil {
		tx.GatewayResponse = *update.GatewayResponse
	}
	if update.FailureReason != nil {
		tx.FailureReason = *update.FailureReason
	}
	if update.Retryable != nil {
		tx.Retryable = *update.Retryable
	}
	if update.IncrementAttempt {
		tx.Attempts++
	}
	return clone(tx), nil
}

type aggregateKey struct {
	status   models.TransactionStatus
	method   models.PaymentMethod
	txType   models.TransactionType
	currency models.Currency
}

func (s *MemoryStore) Aggregate(ctx context.Context, filter models.TransactionFilter) ([]models.AggregateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[aggregateKey]*models.AggregateRow)
	var order []aggregateKey
	for _, tx := range s.matching(filter) {
		key := aggregateKey{tx.Status, tx.Method, tx.Type, tx.Currency}
		row, ok := buckets[key]
		if !ok {
			row = &models.AggregateRow{Status: tx.Status, Method: tx.Method, Type: tx.Type, Currency: tx.Currency, Total: decimal.Zero}
			buckets[key] = row
			order = append(order, key)
		}
		row.Count++
		row.Total = row.Total.Add(tx.Amount)
	}

	rows := make([]models.AggregateRow, 0, len(order))
	for _, key := range order {
		rows = append(rows, *buckets[key])
	}
	return rows, nil
}

func (s *MemoryStore) LogCallback(ctx context.Context, entry *models.CallbackLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uint(len(s.callbacks) + 1)
	s.callbacks = append(s.callbacks, *entry)
	return nil
}

// Callbacks returns a copy of the callback audit log.
func (s *MemoryStore) Callbacks() []models.CallbackLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CallbackLog, len(s.callbacks))
	copy(out, s.callbacks)
	return out
}

func (s *MemoryStore) Credentials(ctx context.Context, gateway string) (*models.GatewayCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[gateway]
	if !ok || cred.Status != 1 {
		return nil, fmt.Errorf("Credentials: %s: %w", gateway, models.ErrNotFound)
	}
	return &cred, nil
}

func (s *MemoryStore) SaveCredential(ctx context.Context, cred *models.GatewayCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[cred.Gateway] = *cred
	return nil
}
