// Package typing keeps the ephemeral "who is typing where" map.
package typing

import (
	"log/slog"
	"sync"
	"time"

	"gocampus/internal/gateway"
)

type Broadcaster interface {
	Broadcast(room string, ev gateway.Event) int
}

type Indicator struct {
	ConversationID string    `json:"conversationId"`
	UserID         uint64    `json:"userId"`
	ReceiverID     uint64    `json:"receiverId,omitempty"`
	UserName       string    `json:"userName"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type startPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	UserName       string `json:"userName"`
}

type stopPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         uint64 `json:"userId"`
}

type key struct {
	conversationID string
	userID         uint64
}

type entry struct {
	Indicator
	gen   uint64
	timer *time.Timer
}

// Coordinator holds at most one indicator per (conversation, typer).
// Each entry owns a timer; a generation number keeps a stale timer from
// removing an entry that was refreshed after it fired.
type Coordinator struct {
	mu      sync.Mutex
	entries map[key]*entry
	nextGen uint64

	timeout time.Duration
	hub     Broadcaster
	logger  *slog.Logger
}

func NewCoordinator(hub Broadcaster, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Coordinator{
		entries: make(map[key]*entry),
		timeout: timeout,
		hub:     hub,
		logger:  logger.With("component", "typing"),
	}
}

func (c *Coordinator) StartTyping(conversationID string, fromUserID, toUserID uint64, userName string) {
	k := key{conversationID: conversationID, userID: fromUserID}

	c.mu.Lock()
	c.nextGen++
	gen := c.nextGen
	e, ok := c.entries[k]
	if ok {
		e.timer.Stop()
	} else {
		e = &entry{}
		c.entries[k] = e
	}
	e.Indicator = Indicator{
		ConversationID: conversationID,
		UserID:         fromUserID,
		ReceiverID:     toUserID,
		UserName:       userName,
		ExpiresAt:      time.Now().Add(c.timeout),
	}
	e.gen = gen
	e.timer = time.AfterFunc(c.timeout, func() { c.expire(k, gen) })
	c.mu.Unlock()

	c.hub.Broadcast(gateway.ConversationRoom(conversationID), gateway.Event{
		Name: gateway.EventTypingStart,
		Data: startPayload{ConversationID: conversationID, UserID: fromUserID, UserName: userName},
	})
}

func (c *Coordinator) StopTyping(conversationID string, fromUserID uint64) {
	k := key{conversationID: conversationID, userID: fromUserID}

	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(c.entries, k)
	c.mu.Unlock()

	c.broadcastStop(k)
}

func (c *Coordinator) expire(k key, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.entries, k)
	c.mu.Unlock()

	c.logger.Debug("typing expired", "conversation_id", k.conversationID, "user_id", k.userID)
	c.broadcastStop(k)
}

func (c *Coordinator) broadcastStop(k key) {
	c.hub.Broadcast(gateway.ConversationRoom(k.conversationID), gateway.Event{
		Name: gateway.EventTypingStop,
		Data: stopPayload{ConversationID: k.conversationID, UserID: k.userID},
	})
}

// Active returns the current typers of a conversation.
func (c *Coordinator) Active(conversationID string) []Indicator {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Indicator
	for k, e := range c.entries {
		if k.conversationID == conversationID {
			out = append(out, e.Indicator)
		}
	}
	return out
}

// Shutdown stops every timer without broadcasting.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, k)
	}
}
