// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActionsChannel is the pub/sub channel every action record is published on.
const ActionsChannel = "phaseten:game_actions"

// GameActionRecord is one entry in a game's action history.
type GameActionRecord struct {
	GameID        uuid.UUID              `json:"gameId"`
	ActionIndex   int                    `json:"actionIndex"`
	ActorUserID   uuid.UUID              `json:"actorUserId"`
	ActionType    string                 `json:"actionType"`
	ActionPayload map[string]interface{} `json:"actionPayload"`
	Timestamp     int64                  `json:"timestamp"`
}

// ActionsKey is the list that holds the history of one game.
func ActionsKey(gameID uuid.UUID) string {
	return "phaseten:game:" + gameID.String() + ":actions"
}

// Historian appends game actions to Redis and publishes them for live
// consumers.
type Historian struct {
	rdb *redis.Client
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*Historian, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Historian{rdb: rdb}, nil
}

// NewHistorian wraps an existing client.
func NewHistorian(rdb *redis.Client) *Historian {
	return &Historian{rdb: rdb}
}

// PublishGameAction stores rec at the tail of its game's list and publishes
// it on ActionsChannel in a single transaction.
func (h *Historian) PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action %d: %w", rec.ActionIndex, err)
	}
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, ActionsKey(rec.GameID), data)
	pipe.Publish(ctx, ActionsChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish action %d: %w", rec.ActionIndex, err)
	}
	return nil
}

// GameActions returns the recorded history of a game in order.
func (h *Historian) GameActions(ctx context.Context, gameID uuid.UUID) ([]GameActionRecord, error) {
	raw, err := h.rdb.LRange(ctx, ActionsKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	return decodeRecords(raw)
}

func decodeRecords(raw []string) ([]GameActionRecord, error) {
	out := make([]GameActionRecord, 0, len(raw))
	for i, s := range raw {
		var rec GameActionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the underlying client.
func (h *Historian) Close() error {
	return h.rdb.Close()
}
