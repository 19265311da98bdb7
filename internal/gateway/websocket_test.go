package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampus/internal/common"
	"gocampus/internal/config"
)

type wsFixture struct {
	hub    *Hub
	jwt    *common.JWTManager
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{SendBuffer: 16, WriteTimeout: time.Second, PingInterval: time.Second, PongWait: 3 * time.Second, RoomShards: 4},
		Auth:    config.AuthConfig{JWTSecret: "test-secret", Issuer: "test", TokenTTL: time.Hour},
	}
	hub := NewHub(cfg, common.NopLogger())
	auth := &stubAuthorizer{participants: map[string][]uint64{"c1": {1, 2}}}
	router := NewRouter(hub, auth, stubGroups{}, &stubTyping{}, common.NopLogger())
	jwt := common.NewJWTManager(cfg)

	srv := httptest.NewServer(NewWebSocketServer(cfg, hub, router, jwt, common.NopLogger()))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &wsFixture{hub: hub, jwt: jwt, server: srv}
}

func (f *wsFixture) dial(t *testing.T, userID uint64, handle string) *websocket.Conn {
	t.Helper()
	token, err := f.jwt.GenerateToken(userID, handle)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: raw}))
}

func read(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	f := newWSFixture(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing", ""},
		{"garbage", "?token=not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(f.server.URL, "http") + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, common.CodeUnauthenticated, body["code"])
		})
	}
}

func TestWebSocket_BearerHeader(t *testing.T) {
	f := newWSFixture(t)
	token, err := f.jwt.GenerateToken(4, "dana")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	assert.Eventually(t, func() bool { return f.hub.ConnectionCount(4) == 1 }, time.Second, 5*time.Millisecond)
}

// A and B share a conversation; both see the message and the read receipt.
func TestWebSocket_ConversationFanout(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t, 1, "alice")
	b := f.dial(t, 2, "bob")

	send(t, a, EventConversationJoin, map[string]string{"conversationId": "c1"})
	send(t, b, EventConversationJoin, map[string]string{"conversationId": "c1"})
	require.Eventually(t, func() bool { return f.hub.RoomSize(ConversationRoom("c1")) == 2 }, time.Second, 5*time.Millisecond)

	f.hub.Broadcast(ConversationRoom("c1"), Event{Name: EventMessageNew, Data: map[string]any{"id": 1, "content": "hello"}})
	for _, conn := range []*websocket.Conn{a, b} {
		fr := read(t, conn)
		assert.Equal(t, EventMessageNew, fr.Event)
		assert.JSONEq(t, `{"id":1,"content":"hello"}`, string(fr.Data))
	}

	f.hub.Broadcast(ConversationRoom("c1"), Event{Name: EventMessagesRead, Data: map[string]any{"conversationId": "c1", "messageIds": []int{1}, "readerId": 2}})
	assert.Equal(t, EventMessagesRead, read(t, a).Event)
	assert.Equal(t, EventMessagesRead, read(t, b).Event)
}

func TestWebSocket_ForbiddenJoinReportsError(t *testing.T) {
	f := newWSFixture(t)
	c := f.dial(t, 3, "carol")

	send(t, c, EventConversationJoin, map[string]string{"conversationId": "c1"})

	fr := read(t, c)
	assert.Equal(t, EventError, fr.Event)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Data, &payload))
	assert.Equal(t, common.CodeForbidden, payload.Code)
	assert.Equal(t, EventConversationJoin, payload.Event)

	// connection stays usable
	assert.Equal(t, 1, f.hub.ConnectionCount(3))
}

func TestWebSocket_UngracefulDisconnectAndRejoin(t *testing.T) {
	f := newWSFixture(t)
	a := f.dial(t, 1, "alice")
	b := f.dial(t, 2, "bob")

	send(t, a, EventConversationJoin, map[string]string{"conversationId": "c1"})
	send(t, b, EventConversationJoin, map[string]string{"conversationId": "c1"})
	require.Eventually(t, func() bool { return f.hub.RoomSize(ConversationRoom("c1")) == 2 }, time.Second, 5*time.Millisecond)

	// drop the TCP connection without a close frame
	require.NoError(t, b.UnderlyingConn().Close())
	require.Eventually(t, func() bool { return f.hub.ConnectionCount(2) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.hub.RoomSize(ConversationRoom("c1")))

	assert.Equal(t, 1, f.hub.Broadcast(ConversationRoom("c1"), Event{Name: EventMessageNew, Data: map[string]any{"id": 2}}))
	assert.Equal(t, EventMessageNew, read(t, a).Event)

	b2 := f.dial(t, 2, "bob")
	send(t, b2, EventConversationJoin, map[string]string{"conversationId": "c1"})
	require.Eventually(t, func() bool { return f.hub.RoomSize(ConversationRoom("c1")) == 2 }, time.Second, 5*time.Millisecond)

	f.hub.Broadcast(ConversationRoom("c1"), Event{Name: EventMessageNew, Data: map[string]any{"id": 3}})
	fr := read(t, b2)
	assert.Equal(t, EventMessageNew, fr.Event)
	assert.JSONEq(t, `{"id":3}`, string(fr.Data))
}
