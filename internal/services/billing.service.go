package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gateway "github.com/inboxly/mail-assistant/internal/gateways"
	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/policy"
	"github.com/inboxly/mail-assistant/internal/repository"
	"github.com/inboxly/mail-assistant/pkg/logger"
)

var (
	ErrBillingDisabled     = errors.New("billing is disabled")
	ErrInvalidPackage      = errors.New("unknown credit package")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMissingWebhookData  = errors.New("webhook session metadata incomplete")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoPaymentCustomer   = errors.New("user has no payment customer")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// InsufficientCreditsError reports how short the balance is. It is never
// retried and never partially applied.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required=%d available=%d", e.Required, e.Available)
}

type LedgerRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, id int64) (*model.Transaction, error)
	FindByReference(ctx context.Context, referenceID, referenceType string) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	CountForUser(ctx context.Context, userID int64, txType *model.TransactionType) (int64, error)
}

type UserStore interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	SetPaymentCustomerID(ctx context.Context, id int64, customerID string) error
	AddCredits(ctx context.Context, userID int64, amount int64) error
	DeductCredits(ctx context.Context, userID int64, amount int64) error
	GetBalance(ctx context.Context, userID int64) (int64, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditSink records billing events. Failures here never undo a ledger write;
// they are logged and swallowed.
type AuditSink interface {
	Create(ctx context.Context, userID *int64, eventType string, metadata map[string]string) (*model.AuditEvent, error)
}

type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, p gateway.CheckoutSessionParams) (*gateway.CheckoutSession, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error)
}

const (
	referenceTypeCheckoutSession = "checkout_session"
	referenceTypeRefund          = "refund_of_transaction"
)

// summaryPageSize bounds the history scan used by summaries and analytics.
const summaryPageSize = 1000

// BillingConfig is built once at startup and handed to the service; the
// orchestrator never reads ambient configuration.
type BillingConfig struct {
	Enabled         bool
	Packages        map[string]model.CreditPackage
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// BillingService is the only place ledger, balance policy, user cache and
// payment gateway meet. All credit movement goes through here.
type BillingService struct {
	ledger  LedgerRepository
	users   UserStore
	audit   AuditSink
	gateway PaymentGateway
	config  BillingConfig
}

func NewBillingService(ledger LedgerRepository, users UserStore, audit AuditSink, gw PaymentGateway, config BillingConfig) *BillingService {
	return &BillingService{
		ledger:  ledger,
		users:   users,
		audit:   audit,
		gateway: gw,
		config:  config,
	}
}

// StartPurchase resolves the gateway customer for the user, creating one on
// first purchase (the only write this service makes outside the ledger and
// balance cache), and opens a checkout session for the chosen package.
func (s *BillingService) StartPurchase(ctx context.Context, userID int64, packageKey string) (*model.CheckoutSession, error) {
	if !s.config.Enabled {
		return nil, ErrBillingDisabled
	}

	pkg, ok := s.config.Packages[packageKey]
	if !ok {
		return nil, ErrInvalidPackage
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	customerID, err := s.resolveCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionParams{
		CustomerID:  customerID,
		ProductName: pkg.Name,
		UsdAmount:   pkg.UsdAmount,
		SuccessURL:  s.config.SuccessURL,
		CancelURL:   s.config.CancelURL,
		Metadata: map[string]string{
			"user_id":     strconv.FormatInt(userID, 10),
			"credits":     strconv.FormatInt(pkg.Credits, 10),
			"package_key": pkg.Key,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, &userID, model.AuditCheckoutStarted, map[string]string{
		"session_id":  session.SessionID,
		"package_key": pkg.Key,
		"credits":     strconv.FormatInt(pkg.Credits, 10),
	})

	return &model.CheckoutSession{
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (s *BillingService) resolveCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.PaymentCustomerID != nil && *user.PaymentCustomerID != "" {
		return *user.PaymentCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, map[string]string{
		"user_id": strconv.FormatInt(user.ID, 10),
	})
	if err != nil {
		return "", err
	}

	if err := s.users.SetPaymentCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}

	s.logAudit(ctx, &user.ID, model.AuditCustomerCreated, map[string]string{
		"customer_id": customerID,
	})

	return customerID, nil
}

// GetBillingPortalURL opens a gateway-hosted portal for an existing customer.
func (s *BillingService) GetBillingPortalURL(ctx context.Context, userID int64) (string, error) {
	if !s.config.Enabled {
		return "", ErrBillingDisabled
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if user.PaymentCustomerID == nil || *user.PaymentCustomerID == "" {
		return "", ErrNoPaymentCustomer
	}

	return s.gateway.CreateBillingPortalSession(ctx, *user.PaymentCustomerID, s.config.PortalReturnURL)
}

// ProcessWebhook verifies and applies one webhook delivery. Processing the
// same checkout session twice yields exactly one ledger entry: a pre-check
// on the session id catches replays cheaply, and the ledger's unique
// reference constraint settles the race two concurrent deliveries can win.
func (s *BillingService) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (model.WebhookOutcome, error) {
	event, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		logger.Warn("webhook rejected", "error", err)
		return "", err
	}

	if event.Type != gateway.EventCheckoutCompleted {
		logger.Debug("ignoring webhook event", "event_type", event.Type)
		return model.WebhookIgnored, nil
	}

	session, err := event.CheckoutSession()
	if err != nil {
		return "", err
	}

	userID, credits, err := sessionIdentity(session)
	if err != nil {
		return "", err
	}

	existing, err := s.ledger.FindByReference(ctx, session.ID, referenceTypeCheckoutSession)
	if err != nil {
		return "", err
	}
	if existing != nil {
		logger.Info("checkout session already applied", "session_id", session.ID)
		return model.WebhookAlreadyProcessed, nil
	}

	usdAmount := float64(session.AmountTotal) / 100
	usdPerCredit := usdAmount / float64(credits)
	var created *model.Transaction

	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.AddCredits(ctx, userID, credits); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		balance, err := s.users.GetBalance(ctx, userID)
		if err != nil {
			return err
		}

		sessionID := session.ID
		refType := referenceTypeCheckoutSession
		created, err = s.ledger.Create(ctx, &model.Transaction{
			UserID:        userID,
			Type:          model.TransactionTypePurchase,
			CreditAmount:  credits,
			BalanceAfter:  balance,
			Description:   fmt.Sprintf("purchased %d credits", credits),
			ReferenceID:   &sessionID,
			ReferenceType: &refType,
			UsdAmount:     &usdAmount,
			UsdPerCredit:  &usdPerCredit,
			Metadata:      map[string]string{"package_key": session.Metadata["package_key"]},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// lost the duplicate-insert race; the other delivery won
			logger.Info("duplicate checkout webhook", "session_id", session.ID)
			return model.WebhookAlreadyProcessed, nil
		}
		return "", err
	}

	s.logAudit(ctx, &userID, model.AuditPurchaseCompleted, map[string]string{
		"session_id":     session.ID,
		"transaction_id": strconv.FormatInt(created.ID, 10),
		"credits":        strconv.FormatInt(credits, 10),
	})

	logger.Info("checkout session applied",
		"session_id", session.ID,
		"user_id", userID,
		"credits", credits,
		"balance_after", created.BalanceAfter)

	return model.WebhookProcessed, nil
}

func sessionIdentity(session *gateway.CheckoutSessionObject) (int64, int64, error) {
	rawUser, ok := session.Metadata["user_id"]
	if !ok || rawUser == "" {
		return 0, 0, fmt.Errorf("%w: user_id missing", ErrMissingWebhookData)
	}
	rawCredits, ok := session.Metadata["credits"]
	if !ok || rawCredits == "" {
		return 0, 0, fmt.Errorf("%w: credits missing", ErrMissingWebhookData)
	}

	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed user_id %q", ErrMissingWebhookData, rawUser)
	}
	credits, err := strconv.ParseInt(rawCredits, 10, 64)
	if err != nil || credits <= 0 {
		return 0, 0, fmt.Errorf("%w: malformed credits %q", ErrMissingWebhookData, rawCredits)
	}

	return userID, credits, nil
}

// DeductUsage charges amount credits for completed work. The balance check
// and both writes run inside one storage transaction; concurrent deductions
// serialize on the user row, so the ledger can never go negative.
func (s *BillingService) DeductUsage(ctx context.Context, userID int64, amount int64, description string) (*model.Transaction, error) {
	return s.debit(ctx, userID, amount, model.TransactionTypeUsage, description, model.AuditUsageDeducted)
}

// DeductManualCredits is the admin-initiated flavor of DeductUsage, with the
// same sufficiency guarantee.
func (s *BillingService) DeductManualCredits(ctx context.Context, userID int64, amount int64, reason string) (*model.Transaction, error) {
	return s.debit(ctx, userID, amount, model.TransactionTypeUsage, reason, model.AuditCreditsRevoked)
}

func (s *BillingService) debit(ctx context.Context, userID, amount int64, txType model.TransactionType, description, auditType string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := policy.ValidateShape(txType, -amount); err != nil {
		return nil, err
	}

	var created *model.Transaction
	err := s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.DeductCredits(ctx, userID, amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				available, balErr := s.users.GetBalance(ctx, userID)
				if balErr != nil {
					available = 0
				}
				return &InsufficientCreditsError{Required: amount, Available: available}
			}
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		balance, err := s.users.GetBalance(ctx, userID)
		if err != nil {
			return err
		}

		created, err = s.ledger.Create(ctx, &model.Transaction{
			UserID:       userID,
			Type:         txType,
			CreditAmount: -amount,
			BalanceAfter: balance,
			Description:  description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, &userID, auditType, map[string]string{
		"transaction_id": strconv.FormatInt(created.ID, 10),
		"credits":        strconv.FormatInt(amount, 10),
		"description":    description,
	})

	return created, nil
}

// RefundCredits restores amount credits against a prior debit. The original
// transaction id is the idempotence key: refunding the same transaction twice
// yields one ledger entry and an already-refunded signal on the second call.
func (s *BillingService) RefundCredits(ctx context.Context, userID int64, amount int64, originalTxnID int64, reason string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := policy.ValidateShape(model.TransactionTypeRefund, amount); err != nil {
		return nil, err
	}

	original, err := s.ledger.Get(ctx, originalTxnID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if original.UserID != userID {
		return nil, fmt.Errorf("transaction %d does not belong to user %d", originalTxnID, userID)
	}

	refID := strconv.FormatInt(originalTxnID, 10)
	refType := referenceTypeRefund

	var created *model.Transaction
	err = s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.AddCredits(ctx, userID, amount); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		balance, err := s.users.GetBalance(ctx, userID)
		if err != nil {
			return err
		}

		created, err = s.ledger.Create(ctx, &model.Transaction{
			UserID:        userID,
			Type:          model.TransactionTypeRefund,
			CreditAmount:  amount,
			BalanceAfter:  balance,
			Description:   reason,
			ReferenceID:   &refID,
			ReferenceType: &refType,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			return nil, ErrAlreadyRefunded
		}
		return nil, err
	}

	s.logAudit(ctx, &userID, model.AuditCreditsRefunded, map[string]string{
		"transaction_id": strconv.FormatInt(created.ID, 10),
		"original_id":    refID,
		"credits":        strconv.FormatInt(amount, 10),
	})

	return created, nil
}

// AddPromotionalCredits grants bonus credits outside a purchase.
func (s *BillingService) AddPromotionalCredits(ctx context.Context, userID int64, amount int64, note string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := policy.ValidateShape(model.TransactionTypeBonus, amount); err != nil {
		return nil, err
	}

	var created *model.Transaction
	err := s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.AddCredits(ctx, userID, amount); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		balance, err := s.users.GetBalance(ctx, userID)
		if err != nil {
			return err
		}

		created, err = s.ledger.Create(ctx, &model.Transaction{
			UserID:       userID,
			Type:         model.TransactionTypeBonus,
			CreditAmount: amount,
			BalanceAfter: balance,
			Description:  note,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, &userID, model.AuditCreditsGranted, map[string]string{
		"transaction_id": strconv.FormatInt(created.ID, 10),
		"credits":        strconv.FormatInt(amount, 10),
	})

	return created, nil
}

// GetBillingSummary folds the user's recent history into headline numbers.
func (s *BillingService) GetBillingSummary(ctx context.Context, userID int64) (*model.BillingSummary, error) {
	balance, err := s.users.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	transactions, total, err := s.ledger.List(ctx, model.TransactionFilter{
		UserID: userID,
		Limit:  summaryPageSize,
	})
	if err != nil {
		return nil, err
	}

	summary := &model.BillingSummary{
		CurrentBalance:    balance,
		TotalTransactions: total,
	}

	for _, txn := range transactions {
		switch txn.Type {
		case model.TransactionTypePurchase:
			summary.TotalPurchased += txn.CreditAmount
			if summary.LastPurchaseDate == nil {
				t := txn.CreatedAt
				summary.LastPurchaseDate = &t
			}
		case model.TransactionTypeUsage:
			summary.TotalUsed += -txn.CreditAmount
			if summary.LastUsageDate == nil {
				t := txn.CreatedAt
				summary.LastUsageDate = &t
			}
		}
	}

	return summary, nil
}

// GetUsageAnalytics buckets usage over the trailing window by calendar day.
func (s *BillingService) GetUsageAnalytics(ctx context.Context, userID int64, days int) (*model.UsageAnalytics, error) {
	if days <= 0 {
		days = 30
	}

	usage := model.TransactionTypeUsage
	from := time.Now().AddDate(0, 0, -days)
	transactions, _, err := s.ledger.List(ctx, model.TransactionFilter{
		UserID: userID,
		Type:   &usage,
		From:   &from,
		Limit:  summaryPageSize,
	})
	if err != nil {
		return nil, err
	}

	analytics := &model.UsageAnalytics{
		UsageByDay: make(map[string]int64),
	}
	for _, txn := range transactions {
		used := -txn.CreditAmount
		analytics.TotalCreditsUsed += used
		analytics.TotalUsageTransactions++
		analytics.UsageByDay[txn.CreatedAt.Format("2006-01-02")] += used
	}
	analytics.AverageDailyUsage = float64(analytics.TotalCreditsUsed) / float64(days)

	return analytics, nil
}

func (s *BillingService) logAudit(ctx context.Context, userID *int64, eventType string, metadata map[string]string) {
	if _, err := s.audit.Create(ctx, userID, eventType, metadata); err != nil {
		logger.Warn("failed to record audit event", "event_type", eventType, "error", err)
	}
}
