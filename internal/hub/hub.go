package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/metrics"
)

// Member is anything that can sit in a room: in practice one websocket session.
type Member interface {
	ID() string
	// Deliver queues a frame without blocking and reports whether it was accepted.
	Deliver(frame []byte) bool
}

// Registry maps room names to the members currently subscribed to them.
type Registry interface {
	Join(room string, m Member)
	Leave(room string, m Member)
	LeaveAll(m Member)
	Publish(ctx context.Context, room, event string, payload any) int
}

// Relay carries frames to hubs running in other processes.
type Relay interface {
	Publish(ctx context.Context, room string, frame []byte) error
}

// Hub is the in-process Registry. The lock only guards the membership maps;
// frames are handed to members after it is released.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Member   // room -> memberID -> member
	memberRooms map[string]map[string]struct{} // memberID -> rooms
	relay       Relay
	log         *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[string]Member),
		memberRooms: make(map[string]map[string]struct{}),
		log:         log,
	}
}

// SetRelay enables cross-instance delivery. Call before serving traffic.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

func (h *Hub) Join(room string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]Member)
	}
	h.rooms[room][m.ID()] = m
	if h.memberRooms[m.ID()] == nil {
		h.memberRooms[m.ID()] = make(map[string]struct{})
	}
	h.memberRooms[m.ID()][room] = struct{}{}
}

func (h *Hub) Leave(room string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, m.ID())
}

func (h *Hub) LeaveAll(m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.memberRooms[m.ID()] {
		h.leaveLocked(room, m.ID())
	}
	delete(h.memberRooms, m.ID())
}

func (h *Hub) leaveLocked(room, memberID string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.memberRooms[memberID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.memberRooms, memberID)
		}
	}
}

// Publish encodes the event once, delivers it to local members and forwards
// it to the relay when one is set. It returns the local delivery count.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		h.log.Errorw("encode event", "event", event, "room", room, "err", err)
		return 0
	}
	metrics.Published.WithLabelValues(event).Inc()

	n := h.DeliverLocal(room, frame)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, room, frame); err != nil {
			h.log.Warnw("relay publish failed", "room", room, "event", event, "err", err)
		}
	}
	return n
}

// DeliverLocal hands an encoded frame to every member of room in this process.
func (h *Hub) DeliverLocal(room string, frame []byte) int {
	h.mu.RLock()
	members := make([]Member, 0, len(h.rooms[room]))
	for _, m := range h.rooms[room] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, m := range members {
		if h.deliver(room, m, frame) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) deliver(room string, m Member, frame []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorw("deliver panicked", "room", room, "member", m.ID(), "panic", r)
			ok = false
		}
	}()
	if !m.Deliver(frame) {
		metrics.DroppedFrames.Inc()
		h.log.Warnw("member buffer full, frame dropped", "room", room, "member", m.ID())
		return false
	}
	return true
}

// Size returns the number of members in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RoomsOf lists the rooms a member currently belongs to.
func (h *Hub) RoomsOf(m Member) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.memberRooms[m.ID()]))
	for room := range h.memberRooms[m.ID()] {
		out = append(out, room)
	}
	return out
}
