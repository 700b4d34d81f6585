package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/auth"
	"github.com/mdawoud27/job-search-app-sub000/internal/handlers"
	"github.com/mdawoud27/job-search-app-sub000/internal/hub"
	"github.com/mdawoud27/job-search-app-sub000/internal/metrics"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// CloseUnauthorized is sent when the handshake token does not verify.
const CloseUnauthorized = 4401

type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	HandlerTimeout time.Duration
	RateLimit      float64 // events per second
	RateBurst      int
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		PingInterval:   25 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		HandlerTimeout: 10 * time.Second,
		RateLimit:      20,
		RateBurst:      40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = d.HandlerTimeout
	}
	if o.RateLimit <= 0 {
		o.RateLimit = d.RateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = d.RateBurst
	}
	return o
}

// Presence records which users have a live connection somewhere.
type Presence interface {
	AddConnection(ctx context.Context, userID, sessionID string) error
	RemoveConnection(ctx context.Context, userID, sessionID string) error
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Gateway authenticates connections and feeds their events to handlers.
type Gateway struct {
	verifier auth.Verifier
	rooms    hub.Registry
	table    map[string]handlers.Handler
	presence Presence
	opts     Options
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]map[string]*Session // userID -> sessionID -> session
}

func NewGateway(v auth.Verifier, rooms hub.Registry, table map[string]handlers.Handler, opts Options, log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		verifier: v,
		rooms:    rooms,
		table:    table,
		opts:     opts.withDefaults(),
		log:      log,
		sessions: make(map[string]map[string]*Session),
	}
}

func (g *Gateway) WithPresence(p Presence) *Gateway {
	g.presence = p
	return g
}

// Serve runs one connection until it disconnects or is kicked. token is the
// bearer token captured during the upgrade request. Frames are read on one
// goroutine and handled in order on this one.
func (g *Gateway) Serve(ctx context.Context, conn Transport, token string) {
	s := newSession(ctx, conn, g.opts)
	s.setState(StateAuthenticating)

	id, err := g.verifier.VerifyToken(token)
	if err != nil {
		metrics.AuthFailures.Inc()
		g.log.Infow("handshake rejected", "session", s.id, "err", err)
		g.reject(conn, err)
		s.close()
		return
	}
	s.userID = id.UserID
	s.role = id.Role
	s.onClose = func() { g.detach(s) }
	s.setState(StateActive)

	g.register(s)
	defer g.cleanup(s)

	go g.writePump(s)
	go g.readPump(s)
	g.dispatchLoop(s)
}

func (g *Gateway) reject(conn Transport, cause error) {
	frame, _ := hub.Encode(handlers.EventError, errorPayload{Kind: apperr.Kind(cause), Message: apperr.PublicMessage(cause)})
	_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseUnauthorized, "unauthorized"))
	_ = conn.Close()
}

func (g *Gateway) register(s *Session) {
	g.mu.Lock()
	if g.sessions[s.userID] == nil {
		g.sessions[s.userID] = make(map[string]*Session)
	}
	g.sessions[s.userID][s.id] = s
	g.mu.Unlock()

	g.rooms.Join(models.UserRoom(s.userID), s)
	metrics.Connections.Inc()
	if g.presence != nil {
		if err := g.presence.AddConnection(context.Background(), s.userID, s.id); err != nil {
			g.log.Warnw("presence add failed", "user", s.userID, "err", err)
		}
	}
	g.log.Infow("connection active", "session", s.id, "user", s.userID, "role", s.role)
}

// detach drops s from every room and from the session index. It runs as
// soon as the session closes, whatever its handler is doing.
func (g *Gateway) detach(s *Session) {
	g.rooms.LeaveAll(s)

	g.mu.Lock()
	if byID, ok := g.sessions[s.userID]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(g.sessions, s.userID)
		}
	}
	g.mu.Unlock()
}

// cleanup runs once the dispatcher has returned.
func (g *Gateway) cleanup(s *Session) {
	s.close()
	<-s.writerDone
	<-s.readerDone
	// A handler may have joined a room between close and its return.
	g.detach(s)

	metrics.Connections.Dec()
	if g.presence != nil {
		if err := g.presence.RemoveConnection(context.Background(), s.userID, s.id); err != nil {
			g.log.Warnw("presence remove failed", "user", s.userID, "err", err)
		}
	}
	g.log.Infow("connection closed", "session", s.id, "user", s.userID)
}

func (g *Gateway) readPump(s *Session) {
	defer func() {
		close(s.inbound)
		close(s.readerDone)
	}()

	conn := s.conn
	conn.SetReadLimit(g.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Debugw("read failed", "session", s.id, "err", err)
			}
			s.close()
			return
		}
		if s.State() != StateActive {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !s.limiter.Allow() {
			g.sendError(s, "", apperr.Validation("too many events, slow down"))
			continue
		}
		select {
		case s.inbound <- data:
		case <-s.ctx.Done():
			return
		}
	}
}

func (g *Gateway) dispatchLoop(s *Session) {
	for {
		select {
		case data, ok := <-s.inbound:
			if !ok {
				return
			}
			g.dispatch(s, data)
		case <-s.ctx.Done():
			s.close()
			return
		}
	}
}

// dispatch runs a single event. Nothing a handler does, including a panic,
// gets past this function.
func (g *Gateway) dispatch(s *Session, data []byte) {
	var env hub.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		g.sendError(s, "", apperr.Validation("malformed frame"))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.Events.WithLabelValues(env.Type, "panic").Inc()
			g.log.Errorw("handler panicked", "event", env.Type, "session", s.id, "panic", r)
			g.sendError(s, env.Type, fmt.Errorf("handler panic: %v", r))
		}
	}()

	h, ok := g.table[env.Type]
	if !ok {
		metrics.Events.WithLabelValues("unknown", "error").Inc()
		g.sendError(s, env.Type, apperr.Validation("unknown event "+env.Type))
		return
	}

	hctx, cancel := context.WithTimeout(s.ctx, g.opts.HandlerTimeout)
	defer cancel()
	reply, err := h(hctx, s, env.Payload)
	if err != nil {
		metrics.Events.WithLabelValues(env.Type, "error").Inc()
		g.logHandlerError(s, env.Type, err)
		g.sendError(s, env.Type, err)
		return
	}
	metrics.Events.WithLabelValues(env.Type, "ok").Inc()
	if reply != nil {
		g.sendFrame(s, reply.Event, reply.Payload)
	}
}

func (g *Gateway) logHandlerError(s *Session, event string, err error) {
	switch apperr.Kind(err) {
	case "storage", "internal":
		g.log.Errorw("event failed", "event", event, "session", s.id, "user", s.userID, "err", err)
	default:
		g.log.Debugw("event rejected", "event", event, "session", s.id, "user", s.userID, "err", err)
	}
}

func (g *Gateway) sendError(s *Session, event string, err error) {
	g.sendFrame(s, handlers.EventError, errorPayload{
		Kind:    apperr.Kind(err),
		Message: apperr.PublicMessage(err),
		Event:   event,
	})
}

func (g *Gateway) sendFrame(s *Session, event string, payload any) {
	frame, err := hub.Encode(event, payload)
	if err != nil {
		g.log.Errorw("encode reply", "event", event, "err", err)
		return
	}
	if !s.Deliver(frame) {
		metrics.DroppedFrames.Inc()
		g.log.Warnw("reply dropped", "event", event, "session", s.id)
	}
}

func (g *Gateway) writePump(s *Session) {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.writerDone)
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.log.Debugw("write failed", "session", s.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				g.log.Debugw("ping failed", "session", s.id, "err", err)
				return
			}
		}
	}
}

// Kick disconnects every session of userID and reports how many there were.
func (g *Gateway) Kick(userID string) int {
	g.mu.Lock()
	victims := make([]*Session, 0, len(g.sessions[userID]))
	for _, s := range g.sessions[userID] {
		victims = append(victims, s)
	}
	g.mu.Unlock()

	for _, s := range victims {
		s.close()
	}
	return len(victims)
}

// Shutdown closes every open session.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	var all []*Session
	for _, byID := range g.sessions {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	g.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

// Online reports whether userID has a session on this instance.
func (g *Gateway) Online(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions[userID]) > 0
}

var errNoToken = errors.New("no bearer token")

// Token picks the bearer token from the Authorization header value or,
// failing that, the token query parameter.
func Token(authorization, query string) (string, error) {
	if authorization != "" {
		return auth.ParseBearerToken(authorization)
	}
	if query != "" {
		return query, nil
	}
	return "", errNoToken
}
