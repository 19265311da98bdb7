// Package handler exposes the conversation service over REST.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"gocampus/internal/chat/service"
	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
)

type ChatHandler struct {
	chatService service.ConversationService
	logger      *slog.Logger
}

func NewChatHandler(chatService service.ConversationService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations", h.StartConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", h.GetMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/read", h.MarkRead).Methods(http.MethodPut)
	r.HandleFunc("/conversations/{id}", h.DeleteConversation).Methods(http.MethodDelete)
}

type startConversationRequest struct {
	ParticipantID uint64 `json:"participantId"`
}

type sendMessageRequest struct {
	ReceiverID uint64 `json:"receiverId"`
	Content    string `json:"content"`
	TempID     string `json:"tempId,omitempty"`
}

// sendMessageResponse echoes the client's provisional id next to the stored message.
type sendMessageResponse struct {
	*dbmysql.Message
	ClientTempID string `json:"clientTempId,omitempty"`
}

func (h *ChatHandler) identity(w http.ResponseWriter, r *http.Request) (common.Identity, bool) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok {
		common.WriteError(w, h.logger, common.Unauthenticated("authorization required"))
	}
	return id, ok
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	list, err := h.chatService.ListConversations(r.Context(), id.UserID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}

func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req startConversationRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	conv, err := h.chatService.GetOrCreateConversation(r.Context(), id.UserID, req.ParticipantID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	limit, err := common.QueryUint(r, "limit", 0)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	before, err := common.QueryUint(r, "before", 0)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	msgs, err := h.chatService.GetMessages(r.Context(), mux.Vars(r)["id"], id.UserID, int(limit), before)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	msg, err := h.chatService.AppendMessage(r.Context(), mux.Vars(r)["id"], id.UserID, req.ReceiverID, req.Content)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, sendMessageResponse{Message: msg, ClientTempID: req.TempID})
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	receipt, err := h.chatService.MarkRead(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, receipt)
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.chatService.DeleteConversation(r.Context(), mux.Vars(r)["id"], id.UserID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
