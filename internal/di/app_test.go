package di

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampus/internal/chat/handler"
	"gocampus/internal/chat/repository"
	"gocampus/internal/chat/service"
	"gocampus/internal/chatclient"
	"gocampus/internal/common"
	"gocampus/internal/config"
	"gocampus/internal/dbmysql"
	"gocampus/internal/dbmysql/dbtest"
	"gocampus/internal/gateway"
	"gocampus/internal/notif"
	"gocampus/internal/presence"
	"gocampus/internal/studygroup"
)

type testApp struct {
	server *httptest.Server
	jwt    *common.JWTManager
	hub    *gateway.Hub
	online *presence.Tracker
}

// newTestApp composes the same graph as InitializeApplication on SQLite.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := &config.Config{
		Gateway:      config.GatewayConfig{SendBuffer: 32, WriteTimeout: time.Second, PingInterval: time.Second, PongWait: 3 * time.Second, RoomShards: 4},
		Chat:         config.ChatConfig{MaxContentLength: 500, DefaultPageSize: 50, MaxPageSize: 100, TypingTimeout: time.Second},
		Auth:         config.AuthConfig{JWTSecret: "e2e-secret", Issuer: "test", TokenTTL: time.Hour},
		Notification: config.NotificationConfig{Workers: 1, ChannelBufferSize: 16, Enabled: true},
	}
	logger := common.NopLogger()
	db := dbtest.Open(t)
	dbtest.SeedUsers(t, db,
		dbmysql.User{UserID: 1, Handle: "alice"},
		dbmysql.User{UserID: 2, Handle: "bob"},
	)

	verifier := common.NewJWTManager(cfg)
	hub, stopHub := ProvideHub(cfg, logger)
	chatRepo := repository.NewChatRepository(db)
	tracker := ProvideTracker(hub, chatRepo, presence.NewMemoryStore(), logger)
	notifications, stopNotifications, err := ProvideNotificationService(cfg, dbmysql.NewNotificationRepository(db), logger)
	require.NoError(t, err)

	conversations := service.NewConversationService(cfg, chatRepo, repository.NewUserDirectory(db), hub, tracker, notifications, logger)
	groups := studygroup.NewService(studygroup.NewRepository(db), hub, notifications, logger)
	coord, stopTyping := ProvideTypingCoordinator(cfg, hub, logger)
	router := gateway.NewRouter(hub, conversations, groups, coord, logger)

	h := ProvideHTTPHandler(logger, verifier,
		gateway.NewWebSocketServer(cfg, hub, router, verifier, logger),
		handler.NewChatHandler(conversations, logger),
		studygroup.NewHandler(groups, logger),
		presence.NewHandler(tracker),
		notif.NewNotificationHandler(notifications, logger),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		stopTyping()
		stopHub()
		srv.Close()
		stopNotifications()
	})
	return &testApp{server: srv, jwt: verifier, hub: hub, online: tracker}
}

func (a *testApp) token(t *testing.T, userID uint64, handle string) string {
	t.Helper()
	tok, err := a.jwt.GenerateToken(userID, handle)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testApp) session(t *testing.T, token string) *chatclient.Session {
	t.Helper()
	s, err := chatclient.Dial(context.Background(), "ws"+strings.TrimPrefix(a.server.URL, "http")+"/ws", token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func await(t *testing.T, s *chatclient.Session, event string) gateway.Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-s.Events():
			require.True(t, ok, "session closed waiting for %s", event)
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("no %s event", event)
		}
	}
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/v1/conversations", "", nil).StatusCode)
}

func TestConversationRoundTrip(t *testing.T) {
	app := newTestApp(t)
	aliceTok := app.token(t, 1, "alice")
	bobTok := app.token(t, 2, "bob")

	resp := app.do(t, http.MethodPost, "/api/v1/conversations", aliceTok, map[string]uint64{"participantId": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv dbmysql.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	require.NotEmpty(t, conv.ID)

	alice := app.session(t, aliceTok)
	bob := app.session(t, bobTok)
	require.NoError(t, alice.Join(conv.ID))
	require.NoError(t, bob.Join(conv.ID))
	require.Eventually(t, func() bool { return app.hub.RoomSize(gateway.ConversationRoom(conv.ID)) == 2 }, 3*time.Second, 10*time.Millisecond)

	state := chatclient.AddProvisional(chatclient.NewState(), "tmp-1", chatclient.Message{ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, Content: "hey bob"})

	resp = app.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", aliceTok, map[string]any{
		"receiverId": 2, "content": "  hey bob ", "tempId": "tmp-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent struct {
		chatclient.Message
		ClientTempID string `json:"clientTempId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.Equal(t, "tmp-1", sent.ClientTempID)
	assert.Equal(t, "hey bob", sent.Content)

	state = chatclient.Commit(state, sent.ClientTempID, sent.Message)
	state = chatclient.ApplyServerEvent(state, await(t, alice, gateway.EventMessageNew))
	require.Len(t, state.Messages(conv.ID), 1)

	got := await(t, bob, gateway.EventMessageNew)
	assert.Contains(t, string(got.Data), `"content":"hey bob"`)

	resp = app.do(t, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/read", bobTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state = chatclient.ApplyServerEvent(state, await(t, alice, gateway.EventMessagesRead))
	assert.True(t, state.Messages(conv.ID)[0].Read)

	resp = app.do(t, http.MethodGet, "/api/v1/conversations", bobTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.EqualValues(t, 0, list[0]["unreadCount"])
}

func TestPresenceVisibleOverREST(t *testing.T) {
	app := newTestApp(t)
	aliceTok := app.token(t, 1, "alice")
	_ = app.session(t, app.token(t, 2, "bob"))
	require.Eventually(t, func() bool { return app.online.IsOnline(2) }, 3*time.Second, 10*time.Millisecond)

	resp := app.do(t, http.MethodGet, "/api/v1/presence?userIds=1,2", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []presence.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.False(t, records[0].Online)
	assert.True(t, records[1].Online)
}
