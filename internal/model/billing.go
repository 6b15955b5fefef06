package model

import (
	"errors"
	"time"
)

var ErrEmptyEmail = errors.New("email cannot be empty")

// CreditPackage is a purchasable bundle of credits. Packages are static
// configuration, not database rows.
type CreditPackage struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Credits   int64   `json:"credits"`
	UsdAmount float64 `json:"usd_amount"`
}

func (p CreditPackage) UsdPerCredit() float64 {
	if p.Credits == 0 {
		return 0
	}
	return p.UsdAmount / float64(p.Credits)
}

// DefaultCreditPackages is the stock catalog, keyed by package key.
func DefaultCreditPackages() map[string]CreditPackage {
	return map[string]CreditPackage{
		"starter": {Key: "starter", Name: "Starter", Credits: 100, UsdAmount: 9.99},
		"plus":    {Key: "plus", Name: "Plus", Credits: 500, UsdAmount: 44.99},
		"pro":     {Key: "pro", Name: "Pro", Credits: 1000, UsdAmount: 79.99},
	}
}

// CheckoutSession is what StartPurchase hands back to the HTTP layer.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// WebhookOutcome is the terminal state of a single webhook delivery.
type WebhookOutcome string

const (
	WebhookProcessed        WebhookOutcome = "processed"
	WebhookAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookIgnored          WebhookOutcome = "ignored"
)

type BillingSummary struct {
	CurrentBalance    int64      `json:"current_balance"`
	TotalPurchased    int64      `json:"total_purchased"`
	TotalUsed         int64      `json:"total_used"`
	TotalTransactions int64      `json:"total_transactions"`
	LastPurchaseDate  *time.Time `json:"last_purchase_date,omitempty"`
	LastUsageDate     *time.Time `json:"last_usage_date,omitempty"`
}

type UsageAnalytics struct {
	TotalCreditsUsed       int64            `json:"total_credits_used"`
	TotalUsageTransactions int64            `json:"total_usage_transactions"`
	AverageDailyUsage      float64          `json:"average_daily_usage"`
	UsageByDay             map[string]int64 `json:"usage_by_day"`
}
