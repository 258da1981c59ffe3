package models

import (
	"time"
)

type CallbackDisposition string

const (
	CallbackApplied   CallbackDisposition = "applied"
	CallbackDiscarded CallbackDisposition = "discarded"
	CallbackUnmatched CallbackDisposition = "unmatched"
	CallbackRejected  CallbackDisposition = "rejected"
)

// CallbackLog is an append-only record of every gateway callback or
// verification result the engine has seen.
type CallbackLog struct {
	ID               uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	Gateway          string              `gorm:"column:gateway;size:50;not null;index" json:"gateway"`
	TransactionID    string              `gorm:"column:transaction_id;size:36;index" json:"transaction_id"`
	GatewayReference string              `gorm:"column:gateway_reference;size:191" json:"gateway_reference"`
	Source           string              `gorm:"column:source;size:20" json:"source"` // webhook or verify
	Payload          string              `gorm:"column:payload;type:text" json:"payload"`
	Disposition      CallbackDisposition `gorm:"column:disposition;size:20" json:"disposition"`
	Note             string              `gorm:"column:note;size:255" json:"note"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CallbackLog) TableName() string {
	return "gateway_callback_logs"
}
