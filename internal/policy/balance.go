// Package policy holds the pure balance rules. Nothing here touches storage
// or the network; callers feed in the current balance and a proposed delta.
package policy

import (
	"errors"
	"fmt"

	"github.com/inboxly/mail-assistant/internal/model"
)

var ErrInvalidAmount = errors.New("invalid amount for transaction type")

// CanDebit reports whether amount credits can be taken from balance without
// going negative. amount is the positive number of credits to remove.
func CanDebit(balance, amount int64) bool {
	return amount > 0 && balance-amount >= 0
}

// ResultingBalance is the balance after applying a signed delta. Debits must
// pass CanDebit first; this function does not re-check.
func ResultingBalance(balance, delta int64) int64 {
	return balance + delta
}

// ValidateShape enforces the sign convention per transaction type:
// purchase, bonus, adjustment and refund add credits (positive amounts),
// usage removes them (negative amounts). Refunds restore balance, so they
// are recorded as positive deltas.
func ValidateShape(t model.TransactionType, amount int64) error {
	switch t {
	case model.TransactionTypePurchase, model.TransactionTypeBonus,
		model.TransactionTypeAdjustment, model.TransactionTypeRefund:
		if amount <= 0 {
			return fmt.Errorf("%w: %s requires a positive amount, got %d", ErrInvalidAmount, t, amount)
		}
	case model.TransactionTypeUsage:
		if amount >= 0 {
			return fmt.Errorf("%w: usage requires a negative amount, got %d", ErrInvalidAmount, amount)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAmount, t)
	}
	return nil
}
