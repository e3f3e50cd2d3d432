package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "phaseten:game:6ba7b810-9dad-11d1-80b4-00c04fd430c8:actions", ActionsKey(id))
}

func TestDecodeRecords(t *testing.T) {
	gameID := uuid.New()
	actor := uuid.New()
	rec := GameActionRecord{
		GameID:        gameID,
		ActionIndex:   3,
		ActorUserID:   actor,
		ActionType:    "discard",
		ActionPayload: map[string]interface{}{"card": "R7"},
		Timestamp:     1700000000000,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	got, err := decodeRecords([]string{string(data)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, gameID, got[0].GameID)
	assert.Equal(t, actor, got[0].ActorUserID)
	assert.Equal(t, "R7", got[0].ActionPayload["card"])

	_, err = decodeRecords([]string{"{"})
	assert.Error(t, err)
}

func TestConnectFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
