package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/auth"
	"github.com/mdawoud27/job-search-app-sub000/internal/chat"
	"github.com/mdawoud27/job-search-app-sub000/internal/directory"
	"github.com/mdawoud27/job-search-app-sub000/internal/handlers"
	"github.com/mdawoud27/job-search-app-sub000/internal/hub"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
	"github.com/mdawoud27/job-search-app-sub000/internal/repository"
	"github.com/mdawoud27/job-search-app-sub000/internal/ws"
)

type member struct {
	mu     sync.Mutex
	frames [][]byte
}

func (m *member) ID() string { return "recruiter-conn" }

func (m *member) Deliver(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return true
}

type fixture struct {
	srv   *Server
	rooms *hub.Hub
	store *repository.MemoryStore
	chat  *chat.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	dir := directory.NewMemory()
	dir.AddUser(models.User{ID: "hr", Role: models.RoleHR})
	dir.AddUser(models.User{ID: "u1", Role: models.RoleUser})
	rooms := hub.NewHub(log)
	store := repository.NewMemoryStore()
	svc := chat.NewService(store, dir, log)
	verifier, err := auth.NewJWTVerifierHS256("secret")
	require.NoError(t, err)
	gw := ws.NewGateway(verifier, rooms, handlers.New(rooms, svc, dir, log).Table(), ws.DefaultOptions(), log)

	srv := NewServer(context.Background(), Deps{
		Gateway:       gw,
		Notifier:      handlers.NewNotifier(rooms, log),
		Chat:          svc,
		InternalToken: "internal-secret",
		Log:           log,
	})
	return &fixture{srv: srv, rooms: rooms, store: store, chat: svc}
}

func do(t *testing.T, s *Server, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(b) > 0 {
		_ = json.Unmarshal(b, &out)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestWSRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	code, _ := do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestPresenceFallsBackToLocalState(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/presence/u1", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, false, body["online"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	code, _ := do(t, f.srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, code)
}

func notifyRequest(token, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/internal/applications/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(internalTokenHeader, token)
	}
	return req
}

func TestInternalRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	body := `{"jobId":"j1","companyId":"c1"}`

	code, _ := do(t, f.srv, notifyRequest("", body))
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, f.srv, notifyRequest("wrong", body))
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodDelete, "/internal/users/u1/conversations", nil)
	code, _ = do(t, f.srv, req)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestNotifyApplication(t *testing.T) {
	f := newFixture(t)
	m := &member{}
	f.rooms.Join(models.CompanyRoom("c1"), m)

	code, body := do(t, f.srv, notifyRequest("internal-secret",
		`{"applicationId":"a1","jobId":"j1","jobTitle":"Go Dev","companyId":"c1","applicantName":"Ann","applicantEmail":"ann@x.io"}`))
	assert.Equal(t, http.StatusAccepted, code)
	assert.EqualValues(t, 1, body["delivered"])

	require.Len(t, m.frames, 1)
	var env hub.Envelope
	require.NoError(t, json.Unmarshal(m.frames[0], &env))
	assert.Equal(t, handlers.EventNewApplication, env.Type)
	assert.JSONEq(t, `{"applicationId":"a1","jobId":"j1","jobTitle":"Go Dev","applicantName":"Ann","applicantEmail":"ann@x.io"}`, string(env.Payload))

	code, body = do(t, f.srv, notifyRequest("internal-secret", `{"jobId":"j1"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestDeleteConversations(t *testing.T) {
	f := newFixture(t)
	_, err := f.chat.Send(context.Background(), "hr", models.RoleHR, "u1", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Count())

	req := httptest.NewRequest(http.MethodDelete, "/internal/users/u1/conversations", nil)
	req.Header.Set(internalTokenHeader, "internal-secret")
	code, body := do(t, f.srv, req)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["deleted"])
	assert.EqualValues(t, 0, body["disconnected"])
	assert.Zero(t, f.store.Count())
}

type countingLimiter struct {
	limit int
	seen  int
	err   error
}

func (l *countingLimiter) Allow(context.Context, string) (bool, error) {
	l.seen++
	return l.seen <= l.limit, l.err
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	f.srv.deps.Limiter = &countingLimiter{limit: 1}

	code, _ := do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, code)

	f.srv.deps.Limiter = &countingLimiter{limit: 0, err: errors.New("redis down")}
	code, _ = do(t, f.srv, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, code, "limiter errors let the request through")
}
