package audit

import (
	"context"
	"encoding/json"
	"testing"

	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	id := uuid.New()
	require.NoError(t, Record(db, Entry{
		EntityType: domain.EntityJIB, EntityID: id, Action: "create", To: "DRAFT", Actor: "u1",
	}))
	require.NoError(t, Record(db, Entry{
		EntityType: domain.EntityJIB, EntityID: id, Action: "finalize", From: "DRAFT", To: "SENT", Actor: "u2",
		Data: map[string]interface{}{"total_costs": "10000.00"},
	}))
	require.NoError(t, Record(db, Entry{EntityType: domain.EntityJIB, EntityID: uuid.New(), Action: "create", Actor: "u1"}))

	svc := &Service{DB: db}
	events, err := svc.ListForEntity(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].FromStatus)
	assert.Equal(t, "DRAFT", *events[1].FromStatus)
	assert.Equal(t, "SENT", *events[1].ToStatus)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(events[1].EventData, &data))
	assert.Equal(t, "10000.00", data["total_costs"])
}
