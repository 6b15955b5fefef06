package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	gateway "github.com/inboxly/mail-assistant/internal/gateways"
	"github.com/inboxly/mail-assistant/internal/model"
)

var (
	TestUser1 = model.User{
		ID:            1,
		Email:         "alice@example.com",
		CreditBalance: 1000,
	}

	TestUser2 = model.User{
		ID:            2,
		Email:         "bob@example.com",
		CreditBalance: 500,
	}

	TestUserLowBalance = model.User{
		ID:            3,
		Email:         "carol@example.com",
		CreditBalance: 1,
	}

	TestUserZeroBalance = model.User{
		ID:            4,
		Email:         "dave@example.com",
		CreditBalance: 0,
	}
)

func NewTestEmailJob(jobID string, userID int64, messageID string, creditCost int64) model.EmailJob {
	return model.EmailJob{
		JobID:      jobID,
		UserID:     userID,
		MessageID:  messageID,
		Subject:    "Re: quarterly numbers",
		CreditCost: creditCost,
	}
}

func NewTestTransaction(userID int64, amount int64, txnType model.TransactionType) *model.Transaction {
	return &model.Transaction{
		UserID:       userID,
		Type:         txnType,
		CreditAmount: amount,
		BalanceAfter: amount,
		CreatedAt:    time.Now(),
	}
}

// CheckoutCompletedPayload builds the raw webhook body the payment processor
// sends when a checkout session finishes.
func CheckoutCompletedPayload(sessionID string, userID, credits, amountTotal int64) []byte {
	event := map[string]any{
		"id":   "evt_" + sessionID,
		"type": gateway.EventCheckoutCompleted,
		"data": map[string]any{
			"object": map[string]any{
				"id":           sessionID,
				"customer":     "cus_test",
				"amount_total": amountTotal,
				"metadata": map[string]string{
					"user_id":     fmt.Sprintf("%d", userID),
					"credits":     fmt.Sprintf("%d", credits),
					"package_key": "starter",
				},
			},
		},
	}
	payload, _ := json.Marshal(event)
	return payload
}

// SignPayload produces a valid signature header for the given body.
func SignPayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, gateway.ComputeSignature([]byte(secret), ts, payload))
}

var ValidEmails = []string{
	"a@example.com",
	"long.address+tag@example.co.uk",
	"x@y.io",
}

func TransactionFilterForUser(userID int64) model.TransactionFilter {
	return model.TransactionFilter{
		UserID: userID,
		Limit:  50,
		Offset: 0,
	}
}

func TransactionFilterByType(userID int64, txnType model.TransactionType) model.TransactionFilter {
	return model.TransactionFilter{
		UserID: userID,
		Type:   &txnType,
		Limit:  50,
		Offset: 0,
	}
}

func TransactionFilterByTimeRange(userID int64, from, to time.Time) model.TransactionFilter {
	return model.TransactionFilter{
		UserID: userID,
		From:   &from,
		To:     &to,
		Limit:  50,
		Offset: 0,
	}
}
