package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	room   string
	frames [][]byte
}

func (c *captured) DeliverLocal(room string, frame []byte) int {
	c.room = room
	c.frames = append(c.frames, frame)
	return 1
}

func TestRelayIgnoresOwnFrames(t *testing.T) {
	local := &captured{}
	a := NewRoomRelay(nil, "rooms", "instance-a", local, zap.NewNop().Sugar())
	b := NewRoomRelay(nil, "rooms", "instance-b", local, zap.NewNop().Sugar())

	frame := []byte(`{"type":"receiveMessage","payload":{"message":"hi"}}`)
	fromA, err := a.encode("user:42", frame)
	require.NoError(t, err)

	assert.Zero(t, a.handle(string(fromA)))
	assert.Empty(t, local.frames)

	assert.Equal(t, 1, b.handle(string(fromA)))
	assert.Equal(t, "user:42", local.room)
	require.Len(t, local.frames, 1)
	assert.JSONEq(t, string(frame), string(local.frames[0]))
}

func TestRelayDropsGarbage(t *testing.T) {
	local := &captured{}
	r := NewRoomRelay(nil, "rooms", "i", local, zap.NewNop().Sugar())
	assert.Zero(t, r.handle("not json"))
	assert.Zero(t, r.handle(`{"origin":"x","frame":{}}`))
	assert.Empty(t, local.frames)
}

func TestPresenceKeys(t *testing.T) {
	s := NewPresenceStore(nil, "rt", time.Hour)
	assert.Equal(t, "rt:conn:u1", s.connKey("u1"))
	assert.Equal(t, "rt:presence:u1", s.presenceKey("u1"))
	assert.JSONEq(t, `{"status":"online","lastSeen":0}`, string(presenceValue(StatusOnline, time.Unix(0, 0))))
}

func TestRateLimiterKey(t *testing.T) {
	r := NewRateLimiter(nil, "rt", 10, time.Minute)
	assert.Equal(t, "rt:rl:10.0.0.1", r.key("10.0.0.1"))
}
