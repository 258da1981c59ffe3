package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]TransactionStatus]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusFailed}:       true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
		{StatusFailed, StatusPending}:       true,
		{StatusCompleted, StatusRefunded}:   true,
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := allowed[[2]TransactionStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_NoSkips(t *testing.T) {
	assert.False(t, CanTransition(StatusPending, StatusRefunded))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
	assert.False(t, CanTransition(StatusFailed, StatusProcessing))
	assert.False(t, CanTransition(StatusRefunded, StatusCompleted))
}

func TestValidEnums(t *testing.T) {
	assert.True(t, ValidCurrency(CurrencyNGN))
	assert.False(t, ValidCurrency("EUR"))
	assert.True(t, ValidType(TypeInstallment))
	assert.False(t, ValidType("rent"))
	assert.True(t, ValidMethod(MethodCrypto))
	assert.False(t, ValidMethod("cheque"))
}
