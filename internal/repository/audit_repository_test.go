package repository

import (
	"context"
	"testing"

	"github.com/inboxly/mail-assistant/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewAuditRepository(db)
	ctx := context.Background()

	userID := int64(1)
	ev, err := repo.Create(ctx, &userID, model.AuditPurchaseCompleted, map[string]string{
		"session_id": "cs_1",
		"credits":    "100",
	})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())

	// system-level event without a user
	_, err = repo.Create(ctx, nil, "system.startup", nil)
	require.NoError(t, err)

	_, err = repo.Create(ctx, &userID, model.AuditUsageDeducted, map[string]string{"credits": "5"})
	require.NoError(t, err)

	events, err := repo.ListForUser(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.AuditUsageDeducted, events[0].EventType)
	assert.Equal(t, "cs_1", events[1].Metadata["session_id"])
}
