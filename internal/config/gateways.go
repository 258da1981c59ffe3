package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"

	"payment-engine/internal/models"
)

type GatewaySecrets struct {
	PublicKey     string `env:"PUBLIC_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	MerchantID    string `env:"MERCHANT_ID"`
	BaseURL       string `env:"BASE_URL"`
}

// GatewaySeeds holds the credentials cmd/migrate writes into gateway_credentials.
// A gateway is seeded only when its secret key is set.
type GatewaySeeds struct {
	Paystack    GatewaySecrets `envPrefix:"PAYSTACK_"`
	Flutterwave GatewaySecrets `envPrefix:"FLUTTERWAVE_"`
	Korapay     GatewaySecrets `envPrefix:"KORAPAY_"`
}

var defaultBaseURLs = map[string]string{
	"paystack":    "https://api.paystack.co",
	"flutterwave": "https://api.flutterwave.com/v3",
	"korapay":     "https://api.korapay.com/merchant/api/v1",
}

var displayNames = map[string]string{
	"paystack":    "Paystack",
	"flutterwave": "Flutterwave",
	"korapay":     "Korapay",
}

func LoadGatewaySeeds() (*GatewaySeeds, error) {
	seeds, err := env.ParseAs[GatewaySeeds]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadGatewaySeeds: %w", err)
	}
	return &seeds, nil
}

// Credentials converts the configured seeds into rows, skipping gateways
// without a secret key.
func (s *GatewaySeeds) Credentials() []models.GatewayCredential {
	all := []struct {
		name    string
		secrets GatewaySecrets
	}{
		{"paystack", s.Paystack},
		{"flutterwave", s.Flutterwave},
		{"korapay", s.Korapay},
	}

	var out []models.GatewayCredential
	for _, g := range all {
		if g.secrets.SecretKey == "" {
			continue
		}
		baseURL := g.secrets.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[g.name]
		}
		out = append(out, models.GatewayCredential{
			Gateway:       g.name,
			DisplayName:   displayNames[g.name],
			BaseUrl:       baseURL,
			SecretKey:     g.secrets.SecretKey,
			PublicKey:     g.secrets.PublicKey,
			MerchantId:    g.secrets.MerchantID,
			WebhookSecret: g.secrets.WebhookSecret,
			Status:        1,
		})
	}
	return out
}
