package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrConcurrentUpdate    = errors.New("concurrent balance update detected")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
)

// UserRepository owns account rows, including the cached credit balance.
// The cache mirrors the ledger; balance mutations here go through
// SELECT FOR UPDATE so the read-validate-write sequence is serialized
// per user row.
type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	entity := toUserEntity(user)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return toUserModel(entity), nil
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("email = ?", email).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	updates := map[string]interface{}{}
	if patch.Email != nil {
		updates["email"] = *patch.Email
	}
	if patch.GmailAddress != nil {
		updates["gmail_address"] = *patch.GmailAddress
	}

	if len(updates) > 0 {
		result := r.Write(ctx).WithContext(ctx).
			Model(&UserEntity{}).
			Where("id = ?", id).
			Updates(updates)
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				return nil, ErrDuplicateEmail
			}
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	return r.Get(ctx, id)
}

func (r *UserRepository) SetPaymentCustomerID(ctx context.Context, id int64, customerID string) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Update("payment_customer_id", customerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetGmailToken stores the sealed OAuth token blob. A nil token disconnects
// the mailbox.
func (r *UserRepository) SetGmailToken(ctx context.Context, id int64, gmailAddress *string, sealed []byte) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gmail_address":      gmailAddress,
			"gmail_token_sealed": sealed,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeductCredits performs an atomic cached-balance deduction with automatic
// retry. Permanent failures (not found, insufficient balance) surface
// immediately; transient conflicts back off exponentially.
func (r *UserRepository) DeductCredits(ctx context.Context, userID int64, amount int64) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.deductCreditsAttempt(ctx, userID, amount)

		if err == nil {
			return nil
		}

		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInsufficientBalance) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *UserRepository) deductCreditsAttempt(ctx context.Context, userID int64, amount int64) error {
	var entity UserEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if entity.CreditBalance < amount {
		return ErrInsufficientBalance
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ? AND credit_balance >= ?", userID, amount).
		Update("credit_balance", gorm.Expr("credit_balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

// AddCredits performs an atomic cached-balance addition with automatic retry
// using SELECT FOR UPDATE.
func (r *UserRepository) AddCredits(ctx context.Context, userID int64, amount int64) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.addCreditsAttempt(ctx, userID, amount)

		if err == nil {
			return nil
		}

		if errors.Is(err, ErrUserNotFound) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *UserRepository) addCreditsAttempt(ctx context.Context, userID int64, amount int64) error {
	var entity UserEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("credit_balance", gorm.Expr("credit_balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("credit_balance").
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return entity.CreditBalance, nil
}
