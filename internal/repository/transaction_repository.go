package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payment-engine/internal/models"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, tx *models.Transaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("Create: %w", models.ErrDuplicateReference)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return s.first(ctx, "GetByID", "id = ?", id)
}

func (s *GormStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return s.first(ctx, "GetByReference", "reference = ?", reference)
}

func (s *GormStore) GetByGatewayReference(ctx context.Context, gateway, gatewayReference string) (*models.Transaction, error) {
	return s.first(ctx, "GetByGatewayReference", "gateway = ? AND gateway_reference = ?", gateway, gatewayReference)
}

func (s *GormStore) first(ctx context.Context, op string, query string, args ...interface{}) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where(query, args...).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tx, nil
}

func (s *GormStore) List(ctx context.Context, filter models.TransactionFilter, page, limit int) ([]models.Transaction, int64, error) {
	page, limit = normalizePage(page, limit)

	query := s.filtered(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	var results []models.Transaction
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return results, total, nil
}

func (s *GormStore) Transition(ctx context.Context, id string, from models.TransactionStatus, update models.StatusUpdate) (*models.Transaction, error) {
	if !models.CanTransition(from, update.To) {
		return nil, fmt.Errorf("Transition: %s -> %s: %w", from, update.To, models.ErrInvalidState)
	}

	updates := map[string]interface{}{
		"status":     update.To,
		"updated_at": update.At,
	}
	if update.GatewayReference != nil {
		updates["gateway_reference"] = *update.GatewayReference
	}
	if update.GatewayResponse != nil {
		updates["gateway_response"] = *update.GatewayResponse
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}
	if update.Retryable != nil {
		updates["retryable"] = *update.Retryable
	}
	if update.IncrementAttempt {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}

	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("Transition: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("Transition: %w", err)
		}
		return nil, fmt.Errorf("Transition: expected %s, found %s: %w", from, current.Status, models.ErrInvalidState)
	}

	return s.GetByID(ctx, id)
}

func (s *GormStore) Aggregate(ctx context.Context, filter models.TransactionFilter) ([]models.AggregateRow, error) {
	var rows []models.AggregateRow
	err := s.filtered(ctx, filter).
		Select("status, payment_method, transaction_type, currency, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("status, payment_method, transaction_type, currency").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("Aggregate: %w", err)
	}
	return rows, nil
}

func (s *GormStore) filtered(ctx context.Context, filter models.TransactionFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", filter.UpdatedBefore)
	}
	return query
}

func (s *GormStore) LogCallback(ctx context.Context, entry *models.CallbackLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("LogCallback: %w", err)
	}
	return nil
}

func (s *GormStore) Credentials(ctx context.Context, gateway string) (*models.GatewayCredential, error) {
	var cred models.GatewayCredential
	err := s.db.WithContext(ctx).Where("gateway = ? AND status = ?", gateway, 1).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("Credentials: %s: %w", gateway, models.ErrNotFound)
		}
		return nil, fmt.Errorf("Credentials: %w", err)
	}
	return &cred, nil
}

// SaveCredential upserts by gateway name.
func (s *GormStore) SaveCredential(ctx context.Context, cred *models.GatewayCredential) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "base_url", "secret_key", "public_key", "merchant_id", "webhook_secret", "status", "updated_at"}),
	}).Create(cred).Error
	if err != nil {
		return fmt.Errorf("SaveCredential: %w", err)
	}
	return nil
}
