package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-engine/internal/models"
)

func TestGenerateReceiptIsDeterministic(t *testing.T) {
	h := newHarness(t)
	tx := h.completed(t, "PROP-42")
	receipts := NewReceiptService(h.store, "https://pay.example.com/api/v1/")

	first, err := receipts.GenerateReceipt(context.Background(), tx.ID)
	require.NoError(t, err)
	second, err := receipts.GenerateReceipt(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Checksum, second.Checksum)

	sum := sha256.Sum256(first.Content)
	assert.Equal(t, hex.EncodeToString(sum[:]), first.Checksum)
	assert.Len(t, first.ID, len("RCT-")+16)
	assert.Equal(t, "text/plain; charset=utf-8", first.ContentType)
	assert.Equal(t, "https://pay.example.com/api/v1/transactions/"+tx.ID+"/receipt/download", first.DownloadURL)
	assert.True(t, first.IssuedAt.Equal(tx.UpdatedAt))

	content := string(first.Content)
	assert.Contains(t, content, "₦500,000")
	assert.Contains(t, content, "500000.00 NGN")
	assert.Contains(t, content, "PROP-42")
	assert.Contains(t, content, "Bank Transfer")
	assert.Contains(t, content, "Deposit")
}

func TestGenerateReceiptRequiresCompleted(t *testing.T) {
	for _, status := range models.Statuses {
		if status == models.StatusCompleted {
			continue
		}
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			tx := h.seed(t, "PROP-RC", status)
			receipts := NewReceiptService(h.store, "")

			_, err := receipts.GenerateReceipt(context.Background(), tx.ID)
			assert.ErrorIs(t, err, models.ErrInvalidState)
		})
	}
}

func TestGenerateReceiptNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := NewReceiptService(h.store, "").GenerateReceipt(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Full Payment", humanize("full_payment"))
	assert.Equal(t, "USSD", humanize("ussd"))
	assert.Equal(t, "Mobile Money", humanize("mobile_money"))
}
