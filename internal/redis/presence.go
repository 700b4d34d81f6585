package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore tracks live sessions per user so any instance can answer
// whether someone is online. Keys:
//   - <prefix>:conn:<userID>      set of session ids
//   - <prefix>:presence:<userID>  json {status, lastSeen}
type PresenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Presence struct {
	UserID      string `json:"userId"`
	Status      string `json:"status"`
	LastSeen    int64  `json:"lastSeen,omitempty"`
	Connections int64  `json:"connections"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

func NewPresenceStore(r *redis.Client, prefix string, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: r, prefix: prefix, ttl: ttl}
}

func (s *PresenceStore) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, userID)
}

func (s *PresenceStore) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func presenceValue(status string, at time.Time) []byte {
	b, _ := json.Marshal(map[string]any{"status": status, "lastSeen": at.Unix()})
	return b
}

// AddConnection records sessionID as live for userID.
func (s *PresenceStore) AddConnection(ctx context.Context, userID, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.connKey(userID), sessionID)
		p.Expire(ctx, s.connKey(userID), s.ttl)
		p.Set(ctx, s.presenceKey(userID), presenceValue(StatusOnline, time.Now()), s.ttl)
		return nil
	})
	return err
}

// RemoveConnection forgets sessionID and marks the user offline once no
// session is left.
func (s *PresenceStore) RemoveConnection(ctx context.Context, userID, sessionID string) error {
	key := s.connKey(userID)
	if err := s.client.SRem(ctx, key, sessionID).Err(); err != nil {
		return err
	}
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.client.Set(ctx, s.presenceKey(userID), presenceValue(StatusOffline, time.Now()), 0).Err()
	}
	return nil
}

func (s *PresenceStore) GetPresence(ctx context.Context, userID string) (Presence, error) {
	out := Presence{UserID: userID, Status: StatusOffline}
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	var stored struct {
		Status   string `json:"status"`
		LastSeen int64  `json:"lastSeen"`
	}
	if err := json.Unmarshal(b, &stored); err != nil {
		return out, fmt.Errorf("decode presence: %w", err)
	}
	out.Status = stored.Status
	out.LastSeen = stored.LastSeen

	n, err := s.client.SCard(ctx, s.connKey(userID)).Result()
	if err != nil {
		return out, err
	}
	out.Connections = n
	if n == 0 {
		out.Status = StatusOffline
	}
	return out, nil
}
