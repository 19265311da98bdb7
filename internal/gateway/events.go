package gateway

import (
	"encoding/json"
	"strconv"
)

// Client -> server events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventGroupSubscribe    = "group:subscribe"
	EventGroupUnsubscribe  = "group:unsubscribe"
)

// Server -> client events. typing:start and typing:stop are echoed back with the same names.
const (
	EventMessageNew          = "message:new"
	EventMessagesRead        = "messages:read"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventConversationDeleted = "conversation:deleted"
	EventGroupMembers        = "group:members"
	EventGroupDeleted        = "group:deleted"
	EventError               = "error"
)

// Event is one outbound frame: {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Frame is one inbound frame. Data is decoded by the router per event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

func GroupRoom(groupID uint64) string {
	return "group:" + strconv.FormatUint(groupID, 10)
}
