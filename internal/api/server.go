package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/chat"
	"github.com/mdawoud27/job-search-app-sub000/internal/handlers"
	"github.com/mdawoud27/job-search-app-sub000/internal/metrics"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
	rdb "github.com/mdawoud27/job-search-app-sub000/internal/redis"
	"github.com/mdawoud27/job-search-app-sub000/internal/ws"
)

const internalTokenHeader = "X-Internal-Token"

// Limiter throttles HTTP requests per client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PresenceSource answers presence across all instances.
type PresenceSource interface {
	GetPresence(ctx context.Context, userID string) (rdb.Presence, error)
}

type Deps struct {
	Gateway       *ws.Gateway
	Notifier      *handlers.Notifier
	Chat          *chat.Service
	Presence      PresenceSource // optional
	Limiter       Limiter        // optional
	InternalToken string
	AccessLog     bool
	Log           *zap.SugaredLogger
}

type Server struct {
	app  *fiber.App
	deps Deps
	ctx  context.Context
}

// NewServer builds the Fiber app. ctx is handed to every websocket session
// and is cancelled on shutdown.
func NewServer(ctx context.Context, d Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Log),
	})
	s := &Server{app: app, deps: d, ctx: ctx}

	app.Use(recover.New())
	if d.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1", s.rateLimit)
	v1.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	v1.Get("/ws", s.upgrade, websocket.New(s.serveWS))
	v1.Get("/presence/:user_id", s.presence)

	internal := app.Group("/internal", s.internalAuth)
	internal.Post("/applications/notify", s.notifyApplication)
	internal.Delete("/users/:user_id/conversations", s.deleteConversations)

	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// upgrade captures the bearer token while the HTTP request is still
// available; the websocket handler only sees Locals.
func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token, _ := ws.Token(c.Get(fiber.HeaderAuthorization), c.Query("token"))
	c.Locals("token", token)
	return c.Next()
}

func (s *Server) serveWS(conn *websocket.Conn) {
	token, _ := conn.Locals("token").(string)
	s.deps.Gateway.Serve(s.ctx, conn, token)
}

func (s *Server) presence(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	if uid == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "user_id required"})
	}
	if s.deps.Presence != nil {
		p, err := s.deps.Presence.GetPresence(c.UserContext(), uid)
		if err == nil {
			return c.JSON(fiber.Map{"user_id": uid, "online": p.Status == rdb.StatusOnline, "last_seen": p.LastSeen, "connections": p.Connections})
		}
		s.deps.Log.Warnw("presence lookup failed, using local state", "user", uid, "err", err)
	}
	return c.JSON(fiber.Map{"user_id": uid, "online": s.deps.Gateway.Online(uid)})
}

// rateLimit fails open: a broken limiter must not take the socket endpoint down.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.deps.Limiter == nil {
		return c.Next()
	}
	ok, err := s.deps.Limiter.Allow(c.UserContext(), c.IP())
	if err != nil {
		s.deps.Log.Warnw("rate limiter unavailable", "err", err)
		return c.Next()
	}
	if !ok {
		return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
	}
	return c.Next()
}

func (s *Server) internalAuth(c *fiber.Ctx) error {
	want := s.deps.InternalToken
	got := c.Get(internalTokenHeader)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid internal token"})
	}
	return c.Next()
}

func (s *Server) notifyApplication(c *fiber.Ctx) error {
	var evt models.ApplicationCreated
	if err := c.BodyParser(&evt); err != nil {
		return apperr.Validation("invalid body")
	}
	n, err := s.deps.Notifier.NewApplication(c.UserContext(), evt)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"delivered": n})
}

// deleteConversations is called when an account is removed. Live sessions
// of that user are dropped too.
func (s *Server) deleteConversations(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	n, err := s.deps.Chat.DeleteForUser(c.UserContext(), uid)
	if err != nil {
		return err
	}
	kicked := s.deps.Gateway.Kick(uid)
	return c.JSON(fiber.Map{"deleted": n, "disconnected": kicked})
}

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "authorization":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			log.Errorw("request failed", "path", c.Path(), "err", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": apperr.PublicMessage(err)})
	}
}
