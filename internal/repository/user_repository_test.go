package repository

import (
	"context"
	"testing"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUser(t *testing.T, repo *UserRepository, email string, balance int64) *model.User {
	t.Helper()
	user, err := repo.Create(context.Background(), &model.User{
		Email:         email,
		CreditBalance: balance,
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "ada@example.com", 0)
	assert.NotZero(t, user.ID)

	fetched, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", fetched.Email)
	assert.Equal(t, int64(0), fetched.CreditBalance)

	byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.Create(ctx, &model.User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepository_DeductCredits(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "deduct@example.com", 100)

	t.Run("successful deduction", func(t *testing.T) {
		err := repo.DeductCredits(ctx, user.ID, 25)
		require.NoError(t, err)

		balance, err := repo.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(75), balance)
	})

	t.Run("insufficient balance leaves cache untouched", func(t *testing.T) {
		err := repo.DeductCredits(ctx, user.ID, 100)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		balance, err := repo.GetBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(75), balance)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := repo.DeductCredits(ctx, 999, 1)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserRepository_AddCredits(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "add@example.com", 5)

	require.NoError(t, repo.AddCredits(ctx, user.ID, 10))
	balance, err := repo.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	err = repo.AddCredits(ctx, 999, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_PaymentCustomerID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "pay@example.com", 0)

	require.NoError(t, repo.SetPaymentCustomerID(ctx, user.ID, "cus_123"))

	fetched, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.PaymentCustomerID)
	assert.Equal(t, "cus_123", *fetched.PaymentCustomerID)

	assert.ErrorIs(t, repo.SetPaymentCustomerID(ctx, 999, "cus_x"), ErrUserNotFound)
}

func TestUserRepository_GmailToken(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "gmail@example.com", 0)

	addr := "gmail@example.com"
	sealed := []byte{0x01, 0x02, 0x03}
	require.NoError(t, repo.SetGmailToken(ctx, user.ID, &addr, sealed))

	fetched, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.GmailAddress)
	assert.Equal(t, addr, *fetched.GmailAddress)
	assert.Equal(t, sealed, fetched.GmailTokenSealed)

	// disconnect
	require.NoError(t, repo.SetGmailToken(ctx, user.ID, nil, nil))
	fetched, err = repo.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, fetched.GmailAddress)
	assert.Empty(t, fetched.GmailTokenSealed)
}

func TestUserRepository_Update(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, repo, "old@example.com", 0)

	email := "new@example.com"
	updated, err := repo.Update(ctx, user.ID, model.UserPatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)

	_, err = repo.Update(ctx, 999, model.UserPatch{Email: &email})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
