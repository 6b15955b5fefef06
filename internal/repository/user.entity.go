package repository

import (
	"time"

	"github.com/inboxly/mail-assistant/internal/model"
)

type UserEntity struct {
	ID                int64     `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	Email             string    `db:"email"               gorm:"column:email;not null;unique"`
	CreditBalance     int64     `db:"credit_balance"      gorm:"column:credit_balance;not null;default:0"`
	PaymentCustomerID *string   `db:"payment_customer_id" gorm:"column:payment_customer_id;index"`
	GmailAddress      *string   `db:"gmail_address"       gorm:"column:gmail_address"`
	GmailTokenSealed  []byte    `db:"gmail_token_sealed"  gorm:"column:gmail_token_sealed"`
	CreatedAt         time.Time `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:                m.ID,
		Email:             m.Email,
		CreditBalance:     m.CreditBalance,
		PaymentCustomerID: m.PaymentCustomerID,
		GmailAddress:      m.GmailAddress,
		GmailTokenSealed:  m.GmailTokenSealed,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:                e.ID,
		Email:             e.Email,
		CreditBalance:     e.CreditBalance,
		PaymentCustomerID: e.PaymentCustomerID,
		GmailAddress:      e.GmailAddress,
		GmailTokenSealed:  e.GmailTokenSealed,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
