// Package storage holds the hub's Redis-backed working state: unread
// notification sets, presence last-seen keys, and the pub/sub bridge that
// lets several hub instances fan room events out to each other.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mingle/backend/internal/models"
)

const (
	unreadKeyPrefix   = "unread:"
	presenceKeyPrefix = "presence:"
	roomEventsChannel = "hub:room-events"
)

// RoomEnvelope wraps a room-scoped event for the cross-instance bridge.
// Origin carries the publishing hub's id so instances can drop their own
// echoes.
type RoomEnvelope struct {
	Origin string       `json:"origin"`
	RoomID string       `json:"roomId"`
	Event  models.Event `json:"event"`
}

type Store interface {
	MarkUnread(userID, chatID, messageID string) (bool, error)
	ClearUnread(userID, chatID string) error
	SetOnline(userID string) error
	SetLastSeen(userID string, at time.Time) error
	PublishRoomEvent(env RoomEnvelope) error
}

// Service is the Redis implementation of Store.
type Service struct {
	Redis *redis.Client
	Ctx   context.Context
}

func NewService(rdb *redis.Client) *Service {
	return &Service{
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

func unreadKey(userID, chatID string) string {
	return unreadKeyPrefix + userID + ":" + chatID
}

// MarkUnread records a message as unread for a user in a chat. It reports
// whether the record is new; re-delivery of an already-recorded message id
// returns false so reconnects never double-count.
func (s *Service) MarkUnread(userID, chatID, messageID string) (bool, error) {
	added, err := s.Redis.SAdd(s.Ctx, unreadKey(userID, chatID), messageID).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

// ClearUnread drops the unread set for a user in a chat, called when the
// user joins the chat's room.
func (s *Service) ClearUnread(userID, chatID string) error {
	return s.Redis.Del(s.Ctx, unreadKey(userID, chatID)).Err()
}

// SetOnline flags a user as currently connected.
func (s *Service) SetOnline(userID string) error {
	return s.Redis.Set(s.Ctx, presenceKeyPrefix+userID, "online", 0).Err()
}

// SetLastSeen records when a user's last connection went away. Best-effort
// presence; readers treat the timestamp value as "offline since".
func (s *Service) SetLastSeen(userID string, at time.Time) error {
	return s.Redis.Set(s.Ctx, presenceKeyPrefix+userID, at.UTC().Format(time.RFC3339), 0).Err()
}

// PublishRoomEvent broadcasts a room event to every hub instance.
func (s *Service) PublishRoomEvent(env RoomEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, roomEventsChannel, raw).Err()
}

// SubscribeRoomEvents opens the cross-instance bridge subscription.
func (s *Service) SubscribeRoomEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, roomEventsChannel)
}
