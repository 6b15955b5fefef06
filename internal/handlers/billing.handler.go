package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/fasthttp/router"

	gateway "github.com/inboxly/mail-assistant/internal/gateways"
	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/services"
	xhttp "github.com/inboxly/mail-assistant/pkg/http"
	"github.com/inboxly/mail-assistant/pkg/prom"
)

// SignatureHeader carries the webhook signature from the payment processor.
const SignatureHeader = "Webhook-Signature"

type BillingService interface {
	StartPurchase(ctx context.Context, userID int64, packageKey string) (*model.CheckoutSession, error)
	ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (model.WebhookOutcome, error)
	DeductUsage(ctx context.Context, userID int64, amount int64, description string) (*model.Transaction, error)
	AddPromotionalCredits(ctx context.Context, userID int64, amount int64, note string) (*model.Transaction, error)
	DeductManualCredits(ctx context.Context, userID int64, amount int64, reason string) (*model.Transaction, error)
	RefundCredits(ctx context.Context, userID int64, amount int64, originalTxnID int64, reason string) (*model.Transaction, error)
	GetBillingSummary(ctx context.Context, userID int64) (*model.BillingSummary, error)
	GetUsageAnalytics(ctx context.Context, userID int64, days int) (*model.UsageAnalytics, error)
	GetBillingPortalURL(ctx context.Context, userID int64) (string, error)
}

type BillingHandler struct {
	svc BillingService
}

func NewBillingHandler(svc BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

func RegisterBillingRoutes(e *router.Group, h *BillingHandler) {
	e.POST("/billing/checkout", h.StartCheckout)
	e.POST("/billing/webhook", h.Webhook)
	e.GET("/billing/portal/{user_id}", h.Portal)
	e.GET("/billing/summary/{user_id}", h.Summary)
	e.GET("/billing/usage/{user_id}", h.Usage)
	e.POST("/admin/credits/grant", h.GrantCredits)
	e.POST("/admin/credits/deduct", h.DeductCredits)
	e.POST("/admin/credits/refund", h.RefundCredits)
}

type checkoutRequest struct {
	UserID     int64  `json:"user_id"`
	PackageKey string `json:"package_key"`
}

type creditAdjustmentRequest struct {
	UserID int64  `json:"user_id"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

func (h *BillingHandler) StartCheckout(ctx *xhttp.RequestCtx) {
	var req checkoutRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	session, err := h.svc.StartPurchase(ctx, req.UserID, req.PackageKey)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 201, session)
}

// Webhook hands the raw body straight to the verifier. Any re-serialization
// here would break the signature.
func (h *BillingHandler) Webhook(ctx *xhttp.RequestCtx) {
	signature := string(ctx.Request.Header.Peek(SignatureHeader))
	outcome, err := h.svc.ProcessWebhook(ctx, ctx.PostBody(), signature)
	if err != nil {
		if errors.Is(err, gateway.ErrWebhookVerification) {
			prom.IncWebhookOutcome("rejected")
			writeError(ctx, 400, "signature verification failed")
			return
		}
		prom.IncWebhookOutcome("error")
		writeBillingError(ctx, err)
		return
	}
	prom.IncWebhookOutcome(string(outcome))
	writeJSON(ctx, 200, map[string]string{"outcome": string(outcome)})
}

func (h *BillingHandler) Portal(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	url, err := h.svc.GetBillingPortalURL(ctx, userID)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]string{"url": url})
}

func (h *BillingHandler) Summary(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	summary, err := h.svc.GetBillingSummary(ctx, userID)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 200, summary)
}

func (h *BillingHandler) Usage(ctx *xhttp.RequestCtx) {
	userID, err := pathInt64(ctx, "user_id")
	if err != nil {
		writeError(ctx, 400, "invalid user id")
		return
	}

	days := 30
	if v := query(ctx, "days"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			days = n
		}
	}

	analytics, err := h.svc.GetUsageAnalytics(ctx, userID, days)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 200, analytics)
}

func (h *BillingHandler) GrantCredits(ctx *xhttp.RequestCtx) {
	var req creditAdjustmentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.AddPromotionalCredits(ctx, req.UserID, req.Amount, req.Note)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 201, txn)
}

func (h *BillingHandler) DeductCredits(ctx *xhttp.RequestCtx) {
	var req creditAdjustmentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.DeductManualCredits(ctx, req.UserID, req.Amount, req.Note)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 201, txn)
}

type refundRequest struct {
	UserID        int64  `json:"user_id"`
	Amount        int64  `json:"amount"`
	TransactionID int64  `json:"transaction_id"`
	Reason        string `json:"reason"`
}

func (h *BillingHandler) RefundCredits(ctx *xhttp.RequestCtx) {
	var req refundRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.RefundCredits(ctx, req.UserID, req.Amount, req.TransactionID, req.Reason)
	if err != nil {
		writeBillingError(ctx, err)
		return
	}
	writeJSON(ctx, 201, txn)
}

func writeBillingError(ctx *xhttp.RequestCtx, err error) {
	var insufficient *services.InsufficientCreditsError
	var gwErr *gateway.GatewayError

	switch {
	case errors.As(err, &insufficient):
		writeJSON(ctx, 402, map[string]any{
			"error":     "insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, services.ErrUserNotFound):
		writeError(ctx, 404, "user not found")
	case errors.Is(err, services.ErrTransactionNotFound):
		writeError(ctx, 404, "transaction not found")
	case errors.Is(err, services.ErrAlreadyRefunded):
		writeError(ctx, 409, "transaction already refunded")
	case errors.Is(err, services.ErrBillingDisabled):
		writeError(ctx, 503, "billing is disabled")
	case errors.Is(err, services.ErrInvalidPackage),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrMissingWebhookData),
		errors.Is(err, services.ErrNoPaymentCustomer):
		writeError(ctx, 400, err.Error())
	case errors.As(err, &gwErr),
		errors.Is(err, gateway.ErrGatewayUnavailable),
		errors.Is(err, gateway.ErrCircuitOpen):
		writeError(ctx, 502, "payment provider unavailable")
	default:
		writeError(ctx, 500, "internal error")
	}
}
