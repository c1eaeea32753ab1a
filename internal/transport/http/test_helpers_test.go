package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/config"
	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/service/rooms"
	"github.com/vovakirdan/studyroom-server/internal/store"
	"github.com/vovakirdan/studyroom-server/internal/store/sqlite"
)

type testServer struct {
	*httptest.Server
	store *sqlite.SQLiteStore
	users *auth.Service
	hub   *core.Hub
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.APIRateLimit = 0
	cfg.WSRateLimit = 0
	return &cfg
}

// startTestServer runs the full HTTP stack on an in-memory store.
func startTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	users := auth.NewService(st)
	hub := core.NewHub(st, users, &logger)
	t.Cleanup(hub.Shutdown)
	roomSvc := rooms.New(st, hub, &logger)

	server := NewServer(hub, users, roomSvc, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: st, users: users, hub: hub}
}

func (ts *testServer) newUser(t *testing.T) *store.User {
	t.Helper()
	u, err := ts.users.CreateUser(context.Background())
	require.NoError(t, err)
	return u
}

// do sends a JSON request authenticated with token (if any) and decodes
// the response into out (if non-nil).
func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createRoom(t *testing.T, token string, body map[string]any) int64 {
	t.Helper()
	var created CreateRoomResponse
	status := ts.do(t, http.MethodPost, "/api/room/create", token, body, &created)
	require.Equal(t, http.StatusCreated, status)
	return created.ID
}
