package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"gocampus/internal/common"
)

// ConversationAuthorizer answers whether a user may listen to a conversation.
type ConversationAuthorizer interface {
	IsParticipant(ctx context.Context, conversationID string, userID uint64) (bool, error)
}

// GroupDirectory answers whether a study group exists.
type GroupDirectory interface {
	Exists(ctx context.Context, groupID uint64) (bool, error)
}

// TypingCoordinator receives typing signals from joined connections.
type TypingCoordinator interface {
	StartTyping(conversationID string, fromUserID, toUserID uint64, userName string)
	StopTyping(conversationID string, fromUserID uint64)
}

type conversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     uint64 `json:"receiverId"`
}

type groupPayload struct {
	GroupID uint64 `json:"groupId"`
}

// Router applies inbound client events to the hub.
type Router struct {
	hub           *Hub
	conversations ConversationAuthorizer
	groups        GroupDirectory
	typing        TypingCoordinator
	logger        *slog.Logger
}

func NewRouter(hub *Hub, conversations ConversationAuthorizer, groups GroupDirectory, typing TypingCoordinator, logger *slog.Logger) *Router {
	return &Router{
		hub:           hub,
		conversations: conversations,
		groups:        groups,
		typing:        typing,
		logger:        logger.With("component", "gateway-router"),
	}
}

// Dispatch handles one inbound frame. Malformed frames are logged and dropped;
// authorization failures are reported to the sender as an error event.
func (r *Router) Dispatch(ctx context.Context, c *Client, f Frame) {
	var err error
	switch f.Event {
	case EventConversationJoin:
		err = r.joinConversation(ctx, c, f.Data)
	case EventConversationLeave:
		err = r.leaveConversation(c, f.Data)
	case EventTypingStart:
		err = r.typingSignal(c, f.Data, true)
	case EventTypingStop:
		err = r.typingSignal(c, f.Data, false)
	case EventGroupSubscribe:
		err = r.subscribeGroup(ctx, c, f.Data)
	case EventGroupUnsubscribe:
		err = r.unsubscribeGroup(c, f.Data)
	default:
		r.logger.Debug("unknown event dropped", "client_id", c.ID, "event", f.Event)
		return
	}
	if err == nil {
		return
	}

	if errors.Is(err, errMalformed) {
		r.logger.Debug("malformed frame dropped", "client_id", c.ID, "event", f.Event)
		return
	}
	if common.ErrorCode(err) == common.CodeInternal {
		r.logger.Error("event failed", "client_id", c.ID, "user_id", c.UserID, "event", f.Event, "error", err)
	}
	c.Enqueue(Event{Name: EventError, Data: ErrorPayload{
		Event:   f.Event,
		Code:    common.ErrorCode(err),
		Message: common.PublicMessage(err),
	}})
}

var errMalformed = errors.New("malformed payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformed
	}
	return nil
}

func (r *Router) joinConversation(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p conversationPayload
	if err := decode(raw, &p); err != nil || p.ConversationID == "" {
		return errMalformed
	}
	ok, err := r.conversations.IsParticipant(ctx, p.ConversationID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return common.Forbidden("not a participant of this conversation")
	}
	return r.hub.Join(c, ConversationRoom(p.ConversationID))
}

func (r *Router) leaveConversation(c *Client, raw json.RawMessage) error {
	var p conversationPayload
	if err := decode(raw, &p); err != nil || p.ConversationID == "" {
		return errMalformed
	}
	r.hub.Leave(c, ConversationRoom(p.ConversationID))
	return nil
}

func (r *Router) typingSignal(c *Client, raw json.RawMessage, start bool) error {
	var p typingPayload
	if err := decode(raw, &p); err != nil || p.ConversationID == "" {
		return errMalformed
	}
	if !c.InRoom(ConversationRoom(p.ConversationID)) {
		return common.Forbidden("join the conversation before typing")
	}
	if start {
		r.typing.StartTyping(p.ConversationID, c.UserID, p.ReceiverID, c.Handle)
	} else {
		r.typing.StopTyping(p.ConversationID, c.UserID)
	}
	return nil
}

func (r *Router) subscribeGroup(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p groupPayload
	if err := decode(raw, &p); err != nil || p.GroupID == 0 {
		return errMalformed
	}
	ok, err := r.groups.Exists(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		return common.NotFound("study group %d not found", p.GroupID)
	}
	return r.hub.Join(c, GroupRoom(p.GroupID))
}

func (r *Router) unsubscribeGroup(c *Client, raw json.RawMessage) error {
	var p groupPayload
	if err := decode(raw, &p); err != nil || p.GroupID == 0 {
		return errMalformed
	}
	r.hub.Leave(c, GroupRoom(p.GroupID))
	return nil
}
