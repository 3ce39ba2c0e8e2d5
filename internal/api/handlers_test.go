package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/config"
	"github.com/npezzotti/go-roomchat/internal/server"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/npezzotti/go-roomchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testConfig = &config.Config{
	ServerAddr:     ":0",
	AllowedOrigins: []string{"http://allowed.example"},
	MaxUploadBytes: config.DefaultMaxUploadBytes,
	RateLimit:      config.DefaultRateLimit,
	RateBurst:      config.DefaultRateBurst,
}

// newRunningChatServer starts a chat server that is shut down with the test.
func newRunningChatServer(t *testing.T) *server.ChatServer {
	t.Helper()
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(5)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("Set", mock.Anything, mock.Anything).Return().Maybe()

	cs, err := server.NewChatServer(testutil.TestLogger(t), su)
	require.NoError(t, err, "failed to create chat server")

	go cs.Run()
	t.Cleanup(func() { cs.Shutdown(context.Background()) })

	return cs
}

// newTestServer serves the app's full handler chain.
func newTestServer(t *testing.T, cs *server.ChatServer) *httptest.Server {
	t.Helper()
	app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, testConfig)

	srv := httptest.NewServer(app.mux.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntil reads frames until one for event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["event"] == event {
			return frame
		}
	}
}

func emit(t *testing.T, conn *websocket.Conn, id int, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"id": id, "event": event, "data": data}))
}

func Test_healthCheck(t *testing.T) {
	app := &GoChatApp{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	app.healthCheck(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
	assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
}

func Test_getRooms(t *testing.T) {
	cs := newRunningChatServer(t)
	srv := newTestServer(t, cs)

	conn := dial(t, srv)
	emit(t, conn, 1, server.EventJoinRoom, map[string]string{"username": "Ann", "room": "Lobby"})
	readUntil(t, conn, server.EventAck)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var rooms []types.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []types.RoomSummary{
		{Name: "General", Description: "No description", Members: 0},
		{Name: "Lobby", Description: "No description", Members: 1},
	}, rooms)
}

func Test_getRooms_Unavailable(t *testing.T) {
	cs := newRunningChatServer(t)
	require.NoError(t, cs.Shutdown(context.Background()))

	app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, testConfig)
	rr := httptest.NewRecorder()
	app.getRooms(rr, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var apiErr ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
	assert.Equal(t, "service unavailable", apiErr.Message)
}

func Test_checkOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://allowed.example"}, "", true},
		{"allowed origin", []string{"http://allowed.example"}, "http://allowed.example", true},
		{"other origin", []string{"http://allowed.example"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"nothing allowed", nil, "http://allowed.example", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := &GoChatApp{allowedOrigins: tc.allowed}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			assert.Equal(t, tc.want, app.checkOrigin(req))
		})
	}
}

func Test_serveWs_ForbiddenOrigin(t *testing.T) {
	srv := newTestServer(t, newRunningChatServer(t))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_serveWs_AfterShutdown(t *testing.T) {
	cs := newRunningChatServer(t)
	srv := newTestServer(t, cs)
	require.NoError(t, cs.Shutdown(context.Background()))

	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "expected going away close, got %v", err)
}

func Test_serveWs_Conversation(t *testing.T) {
	srv := newTestServer(t, newRunningChatServer(t))

	ann := dial(t, srv)
	emit(t, ann, 1, server.EventJoinRoom, map[string]string{"username": "Ann", "room": "General"})
	snapshot := readUntil(t, ann, server.EventInitRoom)
	assert.Equal(t, []any{"Ann"}, snapshot["data"].(map[string]any)["users"])
	readUntil(t, ann, server.EventAck)

	ben := dial(t, srv)
	emit(t, ben, 1, server.EventJoinRoom, map[string]string{"username": "Ben", "room": "General"})
	readUntil(t, ben, server.EventAck)

	notice := readUntil(t, ann, server.EventSystemMessage)
	assert.Equal(t, "Ben joined", notice["data"].(map[string]any)["text"])
	users := readUntil(t, ann, server.EventRoomUsers)
	assert.Equal(t, []any{"Ann", "Ben"}, users["data"])

	emit(t, ben, 2, server.EventChatMessage, map[string]string{"text": "hi"})
	ack := readUntil(t, ben, server.EventAck)
	assert.Equal(t, float64(2), ack["id"])

	posted := readUntil(t, ann, server.EventNewMessage)["data"].(map[string]any)
	assert.Equal(t, "Ben", posted["user"])
	assert.Equal(t, "hi", posted["text"])
	assert.Equal(t, false, posted["edited"])

	ben.Close()
	left := readUntil(t, ann, server.EventSystemMessage)
	assert.Equal(t, "Ben left", left["data"].(map[string]any)["text"])
	assert.Equal(t, []any{"Ann"}, readUntil(t, ann, server.EventRoomUsers)["data"])
}
