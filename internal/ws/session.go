package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// Transport is the part of a websocket connection the gateway uses.
// *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Transport = (*websocket.Conn)(nil)

// inboundBuffer is how many read frames may wait for the dispatcher.
const inboundBuffer = 16

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Session is one websocket connection. Identity fields are set once the
// handshake succeeds and never change afterwards.
type Session struct {
	id        string
	userID    string
	role      models.Role
	createdAt time.Time

	conn    Transport
	limiter *rate.Limiter
	state   atomic.Int32

	// ctx is cancelled on close and is the parent of every handler context.
	ctx     context.Context
	cancel  context.CancelFunc
	onClose func()

	mu     sync.RWMutex // guards send against close
	send   chan []byte
	closed bool

	inbound    chan []byte
	writerDone chan struct{}
	readerDone chan struct{}
}

func newSession(ctx context.Context, conn Transport, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:         uuid.NewString(),
		createdAt:  time.Now().UTC(),
		conn:       conn,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan []byte, opts.SendBuffer),
		inbound:    make(chan []byte, inboundBuffer),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

func (s *Session) Role() models.Role { return s.role }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Deliver queues frame for the writer. It never blocks: a full buffer or a
// closed session rejects the frame.
func (s *Session) Deliver(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the writer, cancels in-flight handlers and runs onClose. Only
// the first call has any effect.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.setState(StateClosed)
	close(s.send)
	s.mu.Unlock()

	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
}
