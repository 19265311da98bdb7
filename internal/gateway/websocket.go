package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gocampus/internal/common"
	"gocampus/internal/config"
)

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteEvent(ctx context.Context, ev Event) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return t.conn.WriteJSON(ev)
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// WebSocketServer upgrades authenticated HTTP requests into gateway clients.
type WebSocketServer struct {
	hub      *Hub
	router   *Router
	verifier common.TokenVerifier
	upgrader websocket.Upgrader

	pingInterval time.Duration
	pongWait     time.Duration
	writeTimeout time.Duration
	maxFrame     int64
	logger       *slog.Logger
}

func NewWebSocketServer(cfg *config.Config, hub *Hub, router *Router, verifier common.TokenVerifier, logger *slog.Logger) *WebSocketServer {
	g := cfg.Gateway
	s := &WebSocketServer{
		hub:          hub,
		router:       router,
		verifier:     verifier,
		pingInterval: g.PingInterval,
		pongWait:     g.PongWait,
		writeTimeout: g.WriteTimeout,
		maxFrame:     g.MaxFrameBytes,
		logger:       logger.With("component", "gateway-ws"),
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 25 * time.Second
	}
	if s.pongWait <= s.pingInterval {
		s.pongWait = s.pingInterval * 2
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	if s.maxFrame <= 0 {
		s.maxFrame = 64 * 1024
	}

	allowed := make(map[string]bool, len(g.AllowedOrigins))
	for _, o := range g.AllowedOrigins {
		allowed[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
	return s
}

// tokenFrom prefers the query string: browsers cannot set headers on a websocket handshake.
func tokenFrom(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	tok, _ := common.BearerToken(r.Header.Get("Authorization"))
	return tok
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifier.Verify(tokenFrom(r))
	if err != nil {
		common.WriteError(w, s.logger, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Debug("upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := s.hub.NewClient(claims.UserID, claims.Handle, &wsTransport{conn: conn})
	s.hub.Register(client)
	s.logger.Info("websocket connected", "client_id", client.ID, "user_id", client.UserID)

	go s.pingLoop(conn, client)
	s.readLoop(r.Context(), conn, client)

	s.hub.Unregister(client)
	s.logger.Info("websocket disconnected", "client_id", client.ID, "user_id", client.UserID)
}

func (s *WebSocketServer) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(s.maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "client_id", client.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("malformed frame dropped", "client_id", client.ID, "error", err)
			continue
		}
		s.router.Dispatch(ctx, client, f)
	}
}

func (s *WebSocketServer) pingLoop(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.hub.Unregister(client)
				return
			}
		case <-client.Done():
			return
		}
	}
}
