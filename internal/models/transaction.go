package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusRefunded   TransactionStatus = "refunded"
)

var Statuses = []TransactionStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded}

type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypeFullPayment TransactionType = "full_payment"
	TypeInstallment TransactionType = "installment"
	TypeCommission  TransactionType = "commission"
)

var TransactionTypes = []TransactionType{TypeDeposit, TypeFullPayment, TypeInstallment, TypeCommission}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodUSSD         PaymentMethod = "ussd"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankDeposit  PaymentMethod = "bank_deposit"
	MethodCrypto       PaymentMethod = "crypto"
)

var PaymentMethods = []PaymentMethod{MethodCard, MethodBankTransfer, MethodUSSD, MethodMobileMoney, MethodBankDeposit, MethodCrypto}

type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
)

var Currencies = []Currency{CurrencyNGN, CurrencyUSD, CurrencyGHS, CurrencyKES}

// Transaction is a single payment attempt against one gateway. Financial fields
// and foreign keys are written once on insert; only the lifecycle columns
// (status, gateway_reference, gateway_response, failure_reason, retryable,
// attempts, updated_at) are ever updated.
type Transaction struct {
	ID               string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	Reference        string            `gorm:"column:reference;size:100;not null;uniqueIndex" json:"reference"`
	UserID           string            `gorm:"column:user_id;size:64;not null;index:idx_ptx_user" json:"user_id"`
	PropertyID       string            `gorm:"column:property_id;size:64;not null;index" json:"property_id"`
	Amount           decimal.Decimal   `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Currency         Currency          `gorm:"column:currency;size:3;not null" json:"currency"`
	Type             TransactionType   `gorm:"column:transaction_type;size:30;not null" json:"type"`
	Method           PaymentMethod     `gorm:"column:payment_method;size:30;not null" json:"method"`
	Gateway          string            `gorm:"column:gateway;size:50;not null;index:idx_ptx_gateway_ref" json:"gateway"`
	Status           TransactionStatus `gorm:"column:status;size:20;not null;index" json:"status"`
	GatewayReference *string           `gorm:"column:gateway_reference;size:191;index:idx_ptx_gateway_ref" json:"gateway_reference"`
	GatewayResponse  string            `gorm:"column:gateway_response;type:text" json:"gateway_response,omitempty"`
	FailureReason    string            `gorm:"column:failure_reason;size:500" json:"failure_reason,omitempty"`
	Retryable        bool              `gorm:"column:retryable;default:true" json:"retryable"`
	Attempts         int               `gorm:"column:attempts;default:0" json:"attempts"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;index" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}

// StatusUpdate carries the mutable columns written by a single transition.
// Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	To               TransactionStatus
	GatewayReference *string
	GatewayResponse  *string
	FailureReason    *string
	Retryable        *bool
	IncrementAttempt bool
	At               time.Time
}

// AggregateRow is one GROUP BY bucket over status, method, type and currency.
type AggregateRow struct {
	Status   TransactionStatus `gorm:"column:status"`
	Method   PaymentMethod     `gorm:"column:payment_method"`
	Type     TransactionType   `gorm:"column:transaction_type"`
	Currency Currency          `gorm:"column:currency"`
	Count    int64             `gorm:"column:count"`
	Total    decimal.Decimal   `gorm:"column:total"`
}

// TransactionFilter narrows list and aggregate queries. Zero values match everything.
type TransactionFilter struct {
	UserID        string
	Status        TransactionStatus
	UpdatedBefore time.Time
}
