package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"text/template"
	"time"

	"payment-engine/internal/models"
	"payment-engine/internal/repository"
	"payment-engine/pkg/common"
)

const receiptContentType = "text/plain; charset=utf-8"

var receiptTemplate = template.Must(template.New("receipt").Parse(`PAYMENT RECEIPT
================================
Receipt No:        {{.ID}}
Issued:            {{.Issued}}

Transaction ID:    {{.Tx.ID}}
Reference:         {{.Tx.Reference}}
Gateway Reference: {{.GatewayReference}}
Gateway:           {{.Tx.Gateway}}

Payer:             {{.Tx.UserID}}
Property:          {{.Tx.PropertyID}}
Payment Type:      {{.Type}}
Payment Method:    {{.Method}}

Amount Paid:       {{.Formatted}}
Exact Amount:      {{.Exact}} {{.Tx.Currency}}
Status:            COMPLETED
================================
`))

type ReceiptHandle struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	ContentType   string    `json:"content_type"`
	Checksum      string    `json:"checksum"`
	DownloadURL   string    `json:"download_url"`
	IssuedAt      time.Time `json:"issued_at"`
	Content       []byte    `json:"-"`
}

// ReceiptService renders receipts on demand. Nothing is cached: the same
// completed transaction always renders byte-identical content.
type ReceiptService struct {
	Store   repository.TransactionStore
	BaseURL string
}

func NewReceiptService(store repository.TransactionStore, baseURL string) *ReceiptService {
	return &ReceiptService{Store: store, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *ReceiptService) GenerateReceipt(ctx context.Context, id string) (*ReceiptHandle, error) {
	tx, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GenerateReceipt: %w", err)
	}
	if tx.Status != models.StatusCompleted {
		return nil, fmt.Errorf("GenerateReceipt: transaction is %s: %w", tx.Status, models.ErrInvalidState)
	}

	gatewayRef := ""
	if tx.GatewayReference != nil {
		gatewayRef = *tx.GatewayReference
	}

	receiptID := receiptID(tx, gatewayRef)
	issued := tx.UpdatedAt.UTC()

	var buf bytes.Buffer
	err = receiptTemplate.Execute(&buf, map[string]interface{}{
		"ID":               receiptID,
		"Issued":           issued.Format("2006-01-02 15:04:05 UTC"),
		"Tx":               tx,
		"GatewayReference": gatewayRef,
		"Type":             humanize(string(tx.Type)),
		"Method":           humanize(string(tx.Method)),
		"Formatted":        common.FormatAmount(tx.Amount, string(tx.Currency)),
		"Exact":            tx.Amount.StringFixed(2),
	})
	if err != nil {
		return nil, fmt.Errorf("GenerateReceipt: render: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &ReceiptHandle{
		ID:            receiptID,
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		ContentType:   receiptContentType,
		Checksum:      hex.EncodeToString(sum[:]),
		DownloadURL:   fmt.Sprintf("%s/transactions/%s/receipt/download", s.BaseURL, tx.ID),
		IssuedAt:      issued,
		Content:       buf.Bytes(),
	}, nil
}

func receiptID(tx *models.Transaction, gatewayRef string) string {
	seed := strings.Join([]string{tx.ID, tx.Reference, gatewayRef, tx.Amount.StringFixed(2), string(tx.Currency)}, "|")
	sum := sha256.Sum256([]byte(seed))
	return "RCT-" + strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// humanize turns full_payment into Full Payment.
func humanize(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "ussd" {
			words[i] = "USSD"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
