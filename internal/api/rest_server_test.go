package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/voxel-server/internal/audit"
	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/network"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSaver struct {
	calls int
	err   error
}

func (f *fakeSaver) SaveNow(ctx context.Context) error {
	f.calls++
	return f.err
}

type testEnv struct {
	rest      *RestServer
	positions *storage.MemoryPositionRepo
	events    *audit.MemoryLog
	saver     *fakeSaver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	g := world.NewGrid(16, 16, 8)
	world.FillFlat(g, 4)
	srv := network.NewGameServer(g, network.Config{MaxPlayers: 4})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-srv.Done()
	})

	users := auth.NewMemoryUserRepo()
	_, err := users.SeedAdmin("admin", "secret", true)
	require.NoError(t, err)
	hash, err := auth.HashPassword("viewer")
	require.NoError(t, err)
	_, err = users.CreateUser("viewer", hash, false)
	require.NoError(t, err)

	env := &testEnv{
		positions: storage.NewMemoryPositionRepo(),
		events:    audit.NewMemoryLog(16),
		saver:     &fakeSaver{},
	}
	env.rest = NewRestServer(Config{
		UserRepo:      users,
		Game:          srv,
		Positions:     env.positions,
		Events:        env.events,
		Saver:         env.saver,
		AllowedOrigin: "http://play.example",
		Registry:      prometheus.NewRegistry(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.rest.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (e *testEnv) login(t *testing.T, user, password string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(LoginRequest{Username: user, Password: password}))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.rest.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Token
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Equal(t, "http://play.example", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxel_rest_http_request_duration_seconds")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := env.login(t, "ADMIN", "secret")
	claims, ok := auth.ValidateJWT(token)
	require.True(t, ok)
	assert.True(t, claims.IsAdmin())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/players", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/players", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	viewer := env.login(t, "viewer", "viewer")
	w, _ = env.do(t, http.MethodGet, "/api/players", viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/world/save", viewer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, env.saver.calls)
}

func TestServerInfo(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin", "secret")

	w, resp := env.do(t, http.MethodGet, "/api/server", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 0, data["sessions"])
	assert.Equal(t, map[string]interface{}{"sx": 16.0, "sy": 16.0, "sz": 8.0}, data["world"])

	proc := data["process"].(map[string]interface{})
	assert.NotEmpty(t, proc["uptime"])
	assert.Greater(t, proc["goroutines"].(float64), 0.0)
}

func TestLastPosition(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "viewer", "viewer")
	require.NoError(t, env.positions.Save(context.Background(), "Bob", mgl64.Vec3{1, 2, 3}))

	w, resp := env.do(t, http.MethodGet, "/api/players/bob/last", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, data["position"])

	w, _ = env.do(t, http.MethodGet, "/api/players/nobody/last", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "viewer", "viewer")
	ctx := context.Background()
	require.NoError(t, env.events.Record(ctx, &eventbus.Envelope{ID: "1", EventType: eventbus.EventChat}))
	require.NoError(t, env.events.Record(ctx, &eventbus.Envelope{ID: "2", EventType: eventbus.EventBlockChanged}))

	w, resp := env.do(t, http.MethodGet, "/api/events?limit=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])

	w, resp = env.do(t, http.MethodGet, "/api/events?type=Chat", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := resp.Data.(map[string]interface{})["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].(map[string]interface{})["id"])

	w, _ = env.do(t, http.MethodGet, "/api/events?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminWorldRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin", "secret")

	w, _ := env.do(t, http.MethodPost, "/api/world/save", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.saver.calls)

	env.saver.err = errors.New("disk full")
	w, _ = env.do(t, http.MethodPost, "/api/world/save", token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/world/block?x=1&y=1&z=3", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, block.DirtBlockID, data["mat"])

	w, _ = env.do(t, http.MethodGet, "/api/world/block?x=1&y=1&z=99", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/world/block?x=1&y=one&z=3", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKickUnknownPlayer(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin", "secret")

	w, _ := env.do(t, http.MethodPost, "/api/players/ghost/kick", token, KickRequest{Reason: "bye"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodOptions, "/api/players", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
