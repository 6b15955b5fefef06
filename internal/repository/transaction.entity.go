package repository

import (
	"time"

	"github.com/inboxly/mail-assistant/internal/model"
)

type TransactionEntity struct {
	ID            int64             `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64             `db:"user_id"        gorm:"column:user_id;not null;index:idx_transactions_user_created"`
	Type          string            `db:"type"           gorm:"column:type;not null;index"`
	CreditAmount  int64             `db:"credit_amount"  gorm:"column:credit_amount;not null"`
	BalanceAfter  int64             `db:"balance_after"  gorm:"column:balance_after;not null"`
	Description   string            `db:"description"    gorm:"column:description"`
	ReferenceID   *string           `db:"reference_id"   gorm:"column:reference_id;uniqueIndex:idx_transactions_reference"`
	ReferenceType *string           `db:"reference_type" gorm:"column:reference_type;uniqueIndex:idx_transactions_reference"`
	UsdAmount     *float64          `db:"usd_amount"     gorm:"column:usd_amount"`
	UsdPerCredit  *float64          `db:"usd_per_credit" gorm:"column:usd_per_credit"`
	Metadata      map[string]string `db:"metadata"       gorm:"column:metadata;serializer:json"`
	CreatedAt     time.Time         `db:"created_at"     gorm:"column:created_at;autoCreateTime;index:idx_transactions_user_created"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:            m.ID,
		UserID:        m.UserID,
		Type:          string(m.Type),
		CreditAmount:  m.CreditAmount,
		BalanceAfter:  m.BalanceAfter,
		Description:   m.Description,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		UsdAmount:     m.UsdAmount,
		UsdPerCredit:  m.UsdPerCredit,
		Metadata:      m.Metadata,
		CreatedAt:     m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:            e.ID,
		UserID:        e.UserID,
		Type:          model.TransactionType(e.Type),
		CreditAmount:  e.CreditAmount,
		BalanceAfter:  e.BalanceAfter,
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
		ReferenceType: e.ReferenceType,
		UsdAmount:     e.UsdAmount,
		UsdPerCredit:  e.UsdPerCredit,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
