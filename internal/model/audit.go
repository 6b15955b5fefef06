package model

import "time"

const (
	AuditCustomerCreated   = "billing.customer_created"
	AuditCheckoutStarted   = "billing.checkout_started"
	AuditPurchaseCompleted = "billing.purchase_completed"
	AuditUsageDeducted     = "billing.usage_deducted"
	AuditCreditsGranted    = "billing.credits_granted"
	AuditCreditsRevoked    = "billing.credits_revoked"
	AuditCreditsRefunded   = "billing.credits_refunded"
	AuditGmailConnected    = "account.gmail_connected"
	AuditGmailDisconnected = "account.gmail_disconnected"
	AuditEmailJobProcessed = "jobs.email_processed"
)

// AuditEvent is an append-only operational trail record. Writes to the audit
// trail never roll back a billing change that already hit the ledger.
type AuditEvent struct {
	ID        int64             `json:"id"`
	UserID    *int64            `json:"user_id,omitempty"`
	EventType string            `json:"event_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
