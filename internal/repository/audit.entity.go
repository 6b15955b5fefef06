package repository

import (
	"time"

	"github.com/inboxly/mail-assistant/internal/model"
)

type AuditEventEntity struct {
	ID        int64             `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	UserID    *int64            `db:"user_id"    gorm:"column:user_id;index"`
	EventType string            `db:"event_type" gorm:"column:event_type;not null;index"`
	Metadata  map[string]string `db:"metadata"   gorm:"column:metadata;serializer:json"`
	CreatedAt time.Time         `db:"created_at" gorm:"column:created_at;autoCreateTime;index"`
}

func (AuditEventEntity) TableName() string {
	return "audit_events"
}

func toAuditEventModel(e *AuditEventEntity) *model.AuditEvent {
	if e == nil {
		return nil
	}
	return &model.AuditEvent{
		ID:        e.ID,
		UserID:    e.UserID,
		EventType: e.EventType,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func toAuditEventModels(entities []*AuditEventEntity) []*model.AuditEvent {
	if entities == nil {
		return nil
	}
	models := make([]*model.AuditEvent, len(entities))
	for i, e := range entities {
		models[i] = toAuditEventModel(e)
	}
	return models
}
