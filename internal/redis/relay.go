package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LocalDeliverer is the in-process side of the hub.
type LocalDeliverer interface {
	DeliverLocal(room string, frame []byte) int
}

type relayMessage struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// RoomRelay forwards room frames between instances over one pub/sub
// channel. Each instance ignores what it published itself.
type RoomRelay struct {
	client   *redis.Client
	channel  string
	instance string
	local    LocalDeliverer
	log      *zap.SugaredLogger
}

func NewRoomRelay(client *redis.Client, channel, instanceID string, local LocalDeliverer, log *zap.SugaredLogger) *RoomRelay {
	return &RoomRelay{client: client, channel: channel, instance: instanceID, local: local, log: log}
}

func (r *RoomRelay) encode(room string, frame []byte) ([]byte, error) {
	return json.Marshal(relayMessage{Origin: r.instance, Room: room, Frame: frame})
}

func (r *RoomRelay) Publish(ctx context.Context, room string, frame []byte) error {
	b, err := r.encode(room, frame)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run subscribes and delivers remote frames until ctx is cancelled.
func (r *RoomRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Infow("room relay subscribed", "channel", r.channel, "instance", r.instance)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RoomRelay) handle(payload string) int {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.log.Warnw("bad relay message", "err", err)
		return 0
	}
	if m.Origin == r.instance || m.Room == "" {
		return 0
	}
	return r.local.DeliverLocal(m.Room, m.Frame)
}
