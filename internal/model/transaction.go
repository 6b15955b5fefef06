package model

import "time"

type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeUsage      TransactionType = "usage"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// ValidTransactionType reports whether t is one of the recognized ledger entry types.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeUsage, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Transaction is a single immutable ledger entry. Once written, only Metadata
// may change (annotation), everything else is append-only history.
type Transaction struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	Type          TransactionType   `json:"type"`
	CreditAmount  int64             `json:"credit_amount"`
	BalanceAfter  int64             `json:"balance_after"`
	Description   string            `json:"description"`
	ReferenceID   *string           `json:"reference_id,omitempty"`
	ReferenceType *string           `json:"reference_type,omitempty"`
	UsdAmount     *float64          `json:"usd_amount,omitempty"`
	UsdPerCredit  *float64          `json:"usd_per_credit,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// TransactionFilter narrows ledger queries. Results are ordered newest first.
type TransactionFilter struct {
	UserID int64
	Type   *TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
