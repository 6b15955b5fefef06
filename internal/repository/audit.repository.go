package repository

import (
	"context"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/inboxly/mail-assistant/pkg/pg"
)

// AuditRepository is an append-only operational trail. It is best-effort from
// the caller's point of view: billing never rolls back because an audit write
// failed.
type AuditRepository struct {
	*pg.DB
}

func NewAuditRepository(db *pg.DB) *AuditRepository {
	return &AuditRepository{
		db,
	}
}

func (r *AuditRepository) Create(ctx context.Context, userID *int64, eventType string, metadata map[string]string) (*model.AuditEvent, error) {
	entity := &AuditEventEntity{
		UserID:    userID,
		EventType: eventType,
		Metadata:  metadata,
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toAuditEventModel(entity), nil
}

func (r *AuditRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entities []*AuditEventEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toAuditEventModels(entities), nil
}
