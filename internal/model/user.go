package model

import "time"

// User is an account record. CreditBalance is a cache of the ledger's
// balance_after on the newest transaction; the ledger stays authoritative.
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	CreditBalance     int64     `json:"credit_balance"`
	PaymentCustomerID *string   `json:"payment_customer_id,omitempty"`
	GmailAddress      *string   `json:"gmail_address,omitempty"`
	GmailTokenSealed  []byte    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UserPatch carries optional profile updates. Nil fields are left untouched.
type UserPatch struct {
	Email        *string
	GmailAddress *string
}

type UserCreateRequest struct {
	Email string `json:"email"`
}

func (r UserCreateRequest) Validate() error {
	if r.Email == "" {
		return ErrEmptyEmail
	}
	return nil
}
