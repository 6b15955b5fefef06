package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	gateway "github.com/inboxly/mail-assistant/internal/gateways"
	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/internal/repository"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) FindByReference(ctx context.Context, referenceID, referenceType string) (*model.Transaction, error) {
	args := m.Called(ctx, referenceID, referenceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerRepository) CountForUser(ctx context.Context, userID int64, txType *model.TransactionType) (int64, error) {
	args := m.Called(ctx, userID, txType)
	return args.Get(0).(int64), args.Error(1)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Get(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserStore) SetPaymentCustomerID(ctx context.Context, id int64, customerID string) error {
	args := m.Called(ctx, id, customerID)
	return args.Error(0)
}

func (m *MockUserStore) AddCredits(ctx context.Context, userID int64, amount int64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockUserStore) DeductCredits(ctx context.Context, userID int64, amount int64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockUserStore) GetBalance(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) Create(ctx context.Context, userID *int64, eventType string, metadata map[string]string) (*model.AuditEvent, error) {
	args := m.Called(ctx, userID, eventType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditEvent), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, p gateway.CheckoutSessionParams) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *MockPaymentGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

func testBillingConfig() BillingConfig {
	return BillingConfig{
		Enabled: true,
		Packages: map[string]model.CreditPackage{
			"starter": {Key: "starter", Name: "Starter", Credits: 100, UsdAmount: 9.99},
			"pro":     {Key: "pro", Name: "Pro", Credits: 1000, UsdAmount: 79.99},
		},
		SuccessURL:      "https://app.example.com/billing/success",
		CancelURL:       "https://app.example.com/billing/cancel",
		PortalReturnURL: "https://app.example.com/settings",
	}
}

func newTestBillingService() (*BillingService, *MockLedgerRepository, *MockUserStore, *MockAuditSink, *MockPaymentGateway) {
	ledger := new(MockLedgerRepository)
	users := new(MockUserStore)
	audit := new(MockAuditSink)
	gw := new(MockPaymentGateway)
	svc := NewBillingService(ledger, users, audit, gw, testBillingConfig())
	return svc, ledger, users, audit, gw
}

func checkoutEvent(t *testing.T, sessionID string, amountTotal int64, metadata map[string]string) *gateway.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":           sessionID,
		"customer":     "cus_1",
		"amount_total": amountTotal,
		"metadata":     metadata,
	})
	require.NoError(t, err)
	return &gateway.Event{
		ID:   "evt_1",
		Type: gateway.EventCheckoutCompleted,
		Data: gateway.EventData{Object: raw},
	}
}

func TestBillingService_StartPurchase(t *testing.T) {
	svc, _, users, audit, gw := newTestBillingService()
	ctx := context.Background()

	customerID := "cus_9"
	users.On("Get", ctx, int64(7)).Return(&model.User{ID: 7, Email: "ada@example.com", PaymentCustomerID: &customerID}, nil)
	gw.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p gateway.CheckoutSessionParams) bool {
		return p.CustomerID == "cus_9" &&
			p.Metadata["user_id"] == "7" &&
			p.Metadata["credits"] == "100" &&
			p.UsdAmount == 9.99
	})).Return(&gateway.CheckoutSession{SessionID: "cs_1", CheckoutURL: "https://pay.example.com/cs_1"}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditCheckoutStarted, mock.Anything).Return(&model.AuditEvent{}, nil)

	session, err := svc.StartPurchase(ctx, 7, "starter")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_1", session.CheckoutURL)
	gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestBillingService_StartPurchase_CreatesCustomerOnce(t *testing.T) {
	svc, _, users, audit, gw := newTestBillingService()
	ctx := context.Background()

	users.On("Get", ctx, int64(7)).Return(&model.User{ID: 7, Email: "ada@example.com"}, nil)
	gw.On("CreateCustomer", ctx, "ada@example.com", map[string]string{"user_id": "7"}).Return("cus_new", nil)
	users.On("SetPaymentCustomerID", ctx, int64(7), "cus_new").Return(nil)
	gw.On("CreateCheckoutSession", ctx, mock.Anything).Return(&gateway.CheckoutSession{SessionID: "cs_2", CheckoutURL: "u"}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditCustomerCreated, mock.Anything).Return(&model.AuditEvent{}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditCheckoutStarted, mock.Anything).Return(&model.AuditEvent{}, nil)

	_, err := svc.StartPurchase(ctx, 7, "starter")
	require.NoError(t, err)
	users.AssertCalled(t, "SetPaymentCustomerID", ctx, int64(7), "cus_new")
}

func TestBillingService_StartPurchase_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("billing disabled", func(t *testing.T) {
		svc, _, _, _, _ := newTestBillingService()
		svc.config.Enabled = false
		_, err := svc.StartPurchase(ctx, 7, "starter")
		assert.ErrorIs(t, err, ErrBillingDisabled)
	})

	t.Run("unknown package", func(t *testing.T) {
		svc, _, _, _, _ := newTestBillingService()
		_, err := svc.StartPurchase(ctx, 7, "mega")
		assert.ErrorIs(t, err, ErrInvalidPackage)
	})

	t.Run("missing user", func(t *testing.T) {
		svc, _, users, _, _ := newTestBillingService()
		users.On("Get", ctx, int64(404)).Return(nil, repository.ErrUserNotFound)
		_, err := svc.StartPurchase(ctx, 404, "starter")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestBillingService_ProcessWebhook_AppliesPurchase(t *testing.T) {
	svc, ledger, users, audit, gw := newTestBillingService()
	ctx := context.Background()

	event := checkoutEvent(t, "cs_10", 999, map[string]string{"user_id": "7", "credits": "100", "package_key": "starter"})
	gw.On("VerifyWebhook", []byte("payload"), "sig").Return(event, nil)
	ledger.On("FindByReference", ctx, "cs_10", "checkout_session").Return(nil, nil)
	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("AddCredits", ctx, int64(7), int64(100)).Return(nil)
	users.On("GetBalance", ctx, int64(7)).Return(int64(150), nil)
	ledger.On("Create", ctx, mock.MatchedBy(func(txn *model.Transaction) bool {
		return txn.UserID == 7 &&
			txn.Type == model.TransactionTypePurchase &&
			txn.CreditAmount == 100 &&
			txn.BalanceAfter == 150 &&
			txn.ReferenceID != nil && *txn.ReferenceID == "cs_10" &&
			txn.UsdAmount != nil && *txn.UsdAmount == 9.99
	})).Return(&model.Transaction{ID: 1, BalanceAfter: 150}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditPurchaseCompleted, mock.Anything).Return(&model.AuditEvent{}, nil)

	outcome, err := svc.ProcessWebhook(ctx, []byte("payload"), "sig")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookProcessed, outcome)
	ledger.AssertExpectations(t)
}

func TestBillingService_ProcessWebhook_ReplayIsIdempotent(t *testing.T) {
	svc, ledger, users, _, gw := newTestBillingService()
	ctx := context.Background()

	event := checkoutEvent(t, "cs_10", 999, map[string]string{"user_id": "7", "credits": "100"})
	gw.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	ledger.On("FindByReference", ctx, "cs_10", "checkout_session").Return(&model.Transaction{ID: 1}, nil)

	outcome, err := svc.ProcessWebhook(ctx, []byte("payload"), "sig")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookAlreadyProcessed, outcome)
	users.AssertNotCalled(t, "AddCredits", mock.Anything, mock.Anything, mock.Anything)
}

func TestBillingService_ProcessWebhook_LostInsertRace(t *testing.T) {
	svc, ledger, users, _, gw := newTestBillingService()
	ctx := context.Background()

	event := checkoutEvent(t, "cs_11", 999, map[string]string{"user_id": "7", "credits": "100"})
	gw.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)
	ledger.On("FindByReference", ctx, "cs_11", "checkout_session").Return(nil, nil)
	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("AddCredits", ctx, int64(7), int64(100)).Return(nil)
	users.On("GetBalance", ctx, int64(7)).Return(int64(150), nil)
	ledger.On("Create", ctx, mock.Anything).Return(nil, repository.ErrDuplicateTransaction)

	outcome, err := svc.ProcessWebhook(ctx, []byte("payload"), "sig")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookAlreadyProcessed, outcome)
}

func TestBillingService_ProcessWebhook_IgnoresOtherEvents(t *testing.T) {
	svc, ledger, _, _, gw := newTestBillingService()
	ctx := context.Background()

	gw.On("VerifyWebhook", mock.Anything, mock.Anything).Return(&gateway.Event{ID: "evt_2", Type: "invoice.paid"}, nil)

	outcome, err := svc.ProcessWebhook(ctx, []byte("payload"), "sig")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookIgnored, outcome)
	ledger.AssertNotCalled(t, "FindByReference", mock.Anything, mock.Anything, mock.Anything)
}

func TestBillingService_ProcessWebhook_BadSignature(t *testing.T) {
	svc, _, _, _, gw := newTestBillingService()
	gw.On("VerifyWebhook", mock.Anything, mock.Anything).Return(nil, gateway.ErrWebhookVerification)

	_, err := svc.ProcessWebhook(context.Background(), []byte("payload"), "bad")
	assert.ErrorIs(t, err, gateway.ErrWebhookVerification)
}

func TestBillingService_ProcessWebhook_MissingMetadata(t *testing.T) {
	svc, _, users, _, gw := newTestBillingService()
	ctx := context.Background()

	event := checkoutEvent(t, "cs_12", 999, map[string]string{"credits": "100"})
	gw.On("VerifyWebhook", mock.Anything, mock.Anything).Return(event, nil)

	_, err := svc.ProcessWebhook(ctx, []byte("payload"), "sig")
	assert.ErrorIs(t, err, ErrMissingWebhookData)
	users.AssertNotCalled(t, "AddCredits", mock.Anything, mock.Anything, mock.Anything)
}

func TestBillingService_DeductUsage(t *testing.T) {
	svc, ledger, users, audit, _ := newTestBillingService()
	ctx := context.Background()

	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("DeductCredits", ctx, int64(7), int64(3)).Return(nil)
	users.On("GetBalance", ctx, int64(7)).Return(int64(97), nil)
	ledger.On("Create", ctx, mock.MatchedBy(func(txn *model.Transaction) bool {
		return txn.Type == model.TransactionTypeUsage &&
			txn.CreditAmount == -3 &&
			txn.BalanceAfter == 97
	})).Return(&model.Transaction{ID: 2, CreditAmount: -3, BalanceAfter: 97}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditUsageDeducted, mock.Anything).Return(&model.AuditEvent{}, nil)

	txn, err := svc.DeductUsage(ctx, 7, 3, "email draft")
	require.NoError(t, err)
	assert.Equal(t, int64(97), txn.BalanceAfter)
}

func TestBillingService_DeductUsage_InsufficientCredits(t *testing.T) {
	svc, ledger, users, _, _ := newTestBillingService()
	ctx := context.Background()

	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("DeductCredits", ctx, int64(7), int64(50)).Return(repository.ErrInsufficientBalance)
	users.On("GetBalance", ctx, int64(7)).Return(int64(10), nil)

	_, err := svc.DeductUsage(ctx, 7, 50, "email draft")
	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(50), insufficient.Required)
	assert.Equal(t, int64(10), insufficient.Available)
	ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBillingService_DeductUsage_RejectsNonPositiveAmount(t *testing.T) {
	svc, _, users, _, _ := newTestBillingService()

	for _, amount := range []int64{0, -5} {
		_, err := svc.DeductUsage(context.Background(), 7, amount, "noop")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	users.AssertNotCalled(t, "DeductCredits", mock.Anything, mock.Anything, mock.Anything)
}

func TestBillingService_AddPromotionalCredits(t *testing.T) {
	svc, ledger, users, audit, _ := newTestBillingService()
	ctx := context.Background()

	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("AddCredits", ctx, int64(7), int64(25)).Return(nil)
	users.On("GetBalance", ctx, int64(7)).Return(int64(125), nil)
	ledger.On("Create", ctx, mock.MatchedBy(func(txn *model.Transaction) bool {
		return txn.Type == model.TransactionTypeBonus && txn.CreditAmount == 25
	})).Return(&model.Transaction{ID: 3, BalanceAfter: 125}, nil)
	audit.On("Create", ctx, mock.Anything, model.AuditCreditsGranted, mock.Anything).Return(&model.AuditEvent{}, nil)

	txn, err := svc.AddPromotionalCredits(ctx, 7, 25, "launch promo")
	require.NoError(t, err)
	assert.Equal(t, int64(125), txn.BalanceAfter)
}

func TestBillingService_RefundCredits(t *testing.T) {
	t.Run("restores credits against the original debit", func(t *testing.T) {
		svc, ledger, users, audit, _ := newTestBillingService()
		ctx := context.Background()

		ledger.On("Get", ctx, int64(42)).Return(&model.Transaction{
			ID:           42,
			UserID:       7,
			Type:         model.TransactionTypeUsage,
			CreditAmount: -10,
		}, nil)
		users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
		users.On("AddCredits", ctx, int64(7), int64(10)).Return(nil)
		users.On("GetBalance", ctx, int64(7)).Return(int64(110), nil)
		ledger.On("Create", ctx, mock.MatchedBy(func(txn *model.Transaction) bool {
			return txn.Type == model.TransactionTypeRefund &&
				txn.CreditAmount == 10 &&
				txn.ReferenceID != nil && *txn.ReferenceID == "42"
		})).Return(&model.Transaction{ID: 43, BalanceAfter: 110}, nil)
		audit.On("Create", ctx, mock.Anything, model.AuditCreditsRefunded, mock.Anything).Return(&model.AuditEvent{}, nil)

		txn, err := svc.RefundCredits(ctx, 7, 10, 42, "duplicate charge")
		require.NoError(t, err)
		assert.Equal(t, int64(110), txn.BalanceAfter)
	})

	t.Run("second refund of the same transaction is rejected", func(t *testing.T) {
		svc, ledger, users, _, _ := newTestBillingService()
		ctx := context.Background()

		ledger.On("Get", ctx, int64(42)).Return(&model.Transaction{ID: 42, UserID: 7}, nil)
		users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
		users.On("AddCredits", ctx, int64(7), int64(10)).Return(nil)
		users.On("GetBalance", ctx, int64(7)).Return(int64(110), nil)
		ledger.On("Create", ctx, mock.Anything).Return(nil, repository.ErrDuplicateTransaction)

		_, err := svc.RefundCredits(ctx, 7, 10, 42, "duplicate charge")
		assert.ErrorIs(t, err, ErrAlreadyRefunded)
	})

	t.Run("unknown original transaction", func(t *testing.T) {
		svc, ledger, _, _, _ := newTestBillingService()
		ctx := context.Background()

		ledger.On("Get", ctx, int64(404)).Return(nil, repository.ErrTransactionNotFound)

		_, err := svc.RefundCredits(ctx, 7, 10, 404, "oops")
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})

	t.Run("original must belong to the user", func(t *testing.T) {
		svc, ledger, users, _, _ := newTestBillingService()
		ctx := context.Background()

		ledger.On("Get", ctx, int64(42)).Return(&model.Transaction{ID: 42, UserID: 8}, nil)

		_, err := svc.RefundCredits(ctx, 7, 10, 42, "oops")
		assert.Error(t, err)
		users.AssertNotCalled(t, "AddCredits")
	})
}

func TestBillingService_AuditFailureIsNotFatal(t *testing.T) {
	svc, ledger, users, audit, _ := newTestBillingService()
	ctx := context.Background()

	users.On("WithinTransaction", ctx, mock.Anything).Return(nil)
	users.On("AddCredits", ctx, int64(7), int64(25)).Return(nil)
	users.On("GetBalance", ctx, int64(7)).Return(int64(125), nil)
	ledger.On("Create", ctx, mock.Anything).Return(&model.Transaction{ID: 3}, nil)
	audit.On("Create", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("audit store down"))

	_, err := svc.AddPromotionalCredits(ctx, 7, 25, "launch promo")
	require.NoError(t, err)
}

func TestBillingService_GetBillingSummary(t *testing.T) {
	svc, ledger, users, _, _ := newTestBillingService()
	ctx := context.Background()

	now := time.Now()
	users.On("GetBalance", ctx, int64(7)).Return(int64(120), nil)
	ledger.On("List", ctx, mock.Anything).Return([]*model.Transaction{
		{Type: model.TransactionTypeUsage, CreditAmount: -30, CreatedAt: now},
		{Type: model.TransactionTypePurchase, CreditAmount: 100, CreatedAt: now.Add(-time.Hour)},
		{Type: model.TransactionTypeBonus, CreditAmount: 50, CreatedAt: now.Add(-2 * time.Hour)},
	}, int64(3), nil)

	summary, err := svc.GetBillingSummary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(120), summary.CurrentBalance)
	assert.Equal(t, int64(100), summary.TotalPurchased)
	assert.Equal(t, int64(30), summary.TotalUsed)
	assert.Equal(t, int64(3), summary.TotalTransactions)
	require.NotNil(t, summary.LastPurchaseDate)
	require.NotNil(t, summary.LastUsageDate)
}

func TestBillingService_GetUsageAnalytics(t *testing.T) {
	svc, ledger, _, _, _ := newTestBillingService()
	ctx := context.Background()

	day1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	ledger.On("List", ctx, mock.MatchedBy(func(f model.TransactionFilter) bool {
		return f.Type != nil && *f.Type == model.TransactionTypeUsage && f.From != nil
	})).Return([]*model.Transaction{
		{Type: model.TransactionTypeUsage, CreditAmount: -3, CreatedAt: day1},
		{Type: model.TransactionTypeUsage, CreditAmount: -2, CreatedAt: day1},
		{Type: model.TransactionTypeUsage, CreditAmount: -5, CreatedAt: day2},
	}, int64(3), nil)

	analytics, err := svc.GetUsageAnalytics(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), analytics.TotalCreditsUsed)
	assert.Equal(t, int64(3), analytics.TotalUsageTransactions)
	assert.Equal(t, int64(5), analytics.UsageByDay["2026-08-30"])
	assert.Equal(t, int64(5), analytics.UsageByDay["2026-08-31"])
	assert.InDelta(t, 1.0, analytics.AverageDailyUsage, 0.0001)
}

func TestBillingService_GetBillingPortalURL(t *testing.T) {
	ctx := context.Background()

	t.Run("existing customer", func(t *testing.T) {
		svc, _, users, _, gw := newTestBillingService()
		customerID := "cus_9"
		users.On("Get", ctx, int64(7)).Return(&model.User{ID: 7, PaymentCustomerID: &customerID}, nil)
		gw.On("CreateBillingPortalSession", ctx, "cus_9", svc.config.PortalReturnURL).Return("https://pay.example.com/portal", nil)

		url, err := svc.GetBillingPortalURL(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/portal", url)
	})

	t.Run("no customer yet", func(t *testing.T) {
		svc, _, users, _, _ := newTestBillingService()
		users.On("Get", ctx, int64(7)).Return(&model.User{ID: 7}, nil)

		_, err := svc.GetBillingPortalURL(ctx, 7)
		assert.ErrorIs(t, err, ErrNoPaymentCustomer)
	})
}
