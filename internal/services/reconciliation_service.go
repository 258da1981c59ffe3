package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"payment-engine/internal/models"
	"payment-engine/internal/repository"
)

// Bucket is a count plus per-currency sums. Amounts in different currencies
// are never added together.
type Bucket struct {
	Count   int64                              `json:"count"`
	Amounts map[models.Currency]decimal.Decimal `json:"amounts"`
}

func newBucket() *Bucket {
	b := &Bucket{Amounts: make(map[models.Currency]decimal.Decimal, len(models.Currencies))}
	for _, c := range models.Currencies {
		b.Amounts[c] = decimal.Zero
	}
	return b
}

func (b *Bucket) add(row models.AggregateRow) {
	b.Count += row.Count
	b.Amounts[row.Currency] = b.Amounts[row.Currency].Add(row.Total)
}

type ReportFilter struct {
	// UserID scopes the report to one owner; empty means the global admin view.
	UserID string
}

type Report struct {
	UserID   string                                `json:"user_id,omitempty"`
	Total    *Bucket                               `json:"total"`
	ByStatus map[models.TransactionStatus]*Bucket `json:"by_status"`
	ByMethod map[models.PaymentMethod]*Bucket     `json:"by_method"`
	ByType   map[models.TransactionType]*Bucket   `json:"by_type"`
}

func newReport(userID string) *Report {
	r := &Report{
		UserID:   userID,
		Total:    newBucket(),
		ByStatus: make(map[models.TransactionStatus]*Bucket, len(models.Statuses)),
		ByMethod: make(map[models.PaymentMethod]*Bucket, len(models.PaymentMethods)),
		ByType:   make(map[models.TransactionType]*Bucket, len(models.TransactionTypes)),
	}
	for _, s := range models.Statuses {
		r.ByStatus[s] = newBucket()
	}
	for _, m := range models.PaymentMethods {
		r.ByMethod[m] = newBucket()
	}
	for _, t := range models.TransactionTypes {
		r.ByType[t] = newBucket()
	}
	return r
}

// ReconciliationService aggregates stored transactions. It is read-only.
type ReconciliationService struct {
	Store repository.TransactionStore
}

func NewReconciliationService(store repository.TransactionStore) *ReconciliationService {
	return &ReconciliationService{Store: store}
}

func (s *ReconciliationService) Summarize(ctx context.Context, filter ReportFilter) (*Report, error) {
	rows, err := s.Store.Aggregate(ctx, models.TransactionFilter{UserID: filter.UserID})
	if err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}

	report := newReport(filter.UserID)
	for _, row := range rows {
		report.Total.add(row)
		bucketFor(report.ByStatus, row.Status).add(row)
		bucketFor(report.ByMethod, row.Method).add(row)
		bucketFor(report.ByType, row.Type).add(row)
	}
	return report, nil
}

// bucketFor tolerates values outside the known enums, such as legacy rows.
func bucketFor[K comparable](m map[K]*Bucket, key K) *Bucket {
	b, ok := m[key]
	if !ok {
		b = newBucket()
		m[key] = b
	}
	return b
}
