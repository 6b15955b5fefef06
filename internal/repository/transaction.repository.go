package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrTransactionNotFound is returned when a ledger entry does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidTransactionType is returned for a type outside the recognized set.
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	// ErrDuplicateTransaction signals that a ledger entry with the same
	// (reference_id, reference_type) pair already exists. Callers treat this
	// as "already handled", not as a failure.
	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
)

// TransactionRepository is the ledger store: append-only transaction history
// per user. Entries are never updated after insert except their metadata.
type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create validates and persists a new ledger entry. The pre-insert reference
// lookup catches most duplicates; the unique index on the reference pair is
// the final guard when two deliveries race between check and insert.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if !model.ValidTransactionType(txn.Type) {
		return nil, ErrInvalidTransactionType
	}

	if txn.ReferenceID != nil && txn.ReferenceType != nil {
		existing, err := r.FindByReference(ctx, *txn.ReferenceID, *txn.ReferenceType)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateTransaction
		}
	}

	entity := toTransactionEntity(txn)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// FindByReference returns the entry matching the idempotence key, or nil
// when none exists.
func (r *TransactionRepository) FindByReference(ctx context.Context, referenceID, referenceType string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("reference_id = ? AND reference_type = ?", referenceID, referenceType).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// List returns ledger entries for a user, newest first.
func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{}).
		Where("user_id = ?", f.UserID)

	if f.Type != nil {
		q = q.Where("type = ?", string(*f.Type))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

// UpdateMetadata shallow-merges patch into the entry's metadata. New keys
// override existing ones. This is the single documented mutation allowed on
// a written ledger entry.
func (r *TransactionRepository) UpdateMetadata(ctx context.Context, id int64, patch map[string]string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	merged := make(map[string]string, len(entity.Metadata)+len(patch))
	for k, v := range entity.Metadata {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	entity.Metadata = merged

	// Struct-based update so the metadata serializer applies; a raw column
	// Update would hand the map to the driver unserialized.
	err = r.Write(ctx).WithContext(ctx).
		Model(&entity).
		Select("metadata").
		Updates(&entity).
		Error
	if err != nil {
		return nil, err
	}

	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) CountForUser(ctx context.Context, userID int64, txType *model.TransactionType) (int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{}).
		Where("user_id = ?", userID)
	if txType != nil {
		q = q.Where("type = ?", string(*txType))
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// isUniqueViolation matches unique-constraint failures across the drivers we
// run against (pgx in production, sqlite in tests).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
