package policy

import (
	"testing"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestCanDebit(t *testing.T) {
	assert.True(t, CanDebit(100, 100))
	assert.True(t, CanDebit(100, 1))
	assert.False(t, CanDebit(100, 101))
	assert.False(t, CanDebit(0, 1))
	assert.False(t, CanDebit(100, 0))
	assert.False(t, CanDebit(100, -5))
}

func TestResultingBalance(t *testing.T) {
	assert.Equal(t, int64(75), ResultingBalance(100, -25))
	assert.Equal(t, int64(100), ResultingBalance(0, 100))
	assert.Equal(t, int64(0), ResultingBalance(25, -25))
}

func TestValidateShape(t *testing.T) {
	t.Run("credit types require positive amounts", func(t *testing.T) {
		for _, typ := range []model.TransactionType{
			model.TransactionTypePurchase,
			model.TransactionTypeBonus,
			model.TransactionTypeAdjustment,
			model.TransactionTypeRefund,
		} {
			assert.NoError(t, ValidateShape(typ, 10), string(typ))
			assert.ErrorIs(t, ValidateShape(typ, 0), ErrInvalidAmount, string(typ))
			assert.ErrorIs(t, ValidateShape(typ, -10), ErrInvalidAmount, string(typ))
		}
	})

	t.Run("usage requires negative amount", func(t *testing.T) {
		assert.NoError(t, ValidateShape(model.TransactionTypeUsage, -10))
		assert.ErrorIs(t, ValidateShape(model.TransactionTypeUsage, 0), ErrInvalidAmount)
		assert.ErrorIs(t, ValidateShape(model.TransactionTypeUsage, 10), ErrInvalidAmount)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		assert.ErrorIs(t, ValidateShape("chargeback", 10), ErrInvalidAmount)
	})
}
