package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gocampus/internal/gateway"
)

const writeWait = 10 * time.Second

// Session is one live realtime connection. Callers own it explicitly and
// must Close it; there is no package-level connection.
type Session struct {
	conn   *websocket.Conn
	events chan gateway.Frame

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var ErrClosed = errors.New("session closed")

// Dial connects to the gateway at wsURL (e.g. ws://host:8080/ws) using token.
func Dial(ctx context.Context, wsURL, token string) (*Session, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial gateway: unauthorized: %w", err)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan gateway.Frame, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events yields server events until the connection ends, then closes.
func (s *Session) Events() <-chan gateway.Frame {
	return s.events
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		var f gateway.Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case s.events <- f:
		case <-s.done:
			return
		}
	}
}

func (s *Session) send(event string, data any) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(gateway.Frame{Event: event, Data: raw})
}

func (s *Session) Join(conversationID string) error {
	return s.send(gateway.EventConversationJoin, map[string]string{"conversationId": conversationID})
}

func (s *Session) Leave(conversationID string) error {
	return s.send(gateway.EventConversationLeave, map[string]string{"conversationId": conversationID})
}

func (s *Session) StartTyping(conversationID string, receiverID uint64) error {
	return s.send(gateway.EventTypingStart, map[string]any{"conversationId": conversationID, "receiverId": receiverID})
}

func (s *Session) StopTyping(conversationID string, receiverID uint64) error {
	return s.send(gateway.EventTypingStop, map[string]any{"conversationId": conversationID, "receiverId": receiverID})
}

func (s *Session) SubscribeGroup(groupID uint64) error {
	return s.send(gateway.EventGroupSubscribe, map[string]uint64{"groupId": groupID})
}

func (s *Session) UnsubscribeGroup(groupID uint64) error {
	return s.send(gateway.EventGroupUnsubscribe, map[string]uint64{"groupId": groupID})
}

// Close sends a close frame and tears down the connection. Safe to call twice.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
