package models

import (
	"time"
)

type GatewayCredential struct {
	ID            int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Gateway       string    `gorm:"column:gateway;size:50;not null;uniqueIndex" json:"gateway"`
	DisplayName   string    `gorm:"column:display_name;size:200" json:"display_name"`
	BaseUrl       string    `gorm:"column:base_url;size:150" json:"base_url"`
	SecretKey     string    `gorm:"column:secret_key;type:text" json:"-"`
	PublicKey     string    `gorm:"column:public_key;type:text" json:"public_key"`
	MerchantId    string    `gorm:"column:merchant_id;size:150" json:"merchant_id"`
	WebhookSecret string    `gorm:"column:webhook_secret;type:text" json:"-"`
	Status        int       `gorm:"column:status;default:1" json:"status"` // 1: enabled, 0: disabled
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GatewayCredential) TableName() string {
	return "gateway_credentials"
}
