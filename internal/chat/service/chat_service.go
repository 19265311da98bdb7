package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gocampus/internal/chat/repository"
	"gocampus/internal/common"
	"gocampus/internal/config"
	"gocampus/internal/dbmysql"
	"gocampus/internal/gateway"
	"gocampus/internal/presence"
)

//go:generate mockgen -destination=mocks/mock_chat_service.go -package=mocks gocampus/internal/chat/service ConversationService

// ConversationService defines the interface exposed to the handler layer.
// It is the single writer of conversation and message state.
type ConversationService interface {
	ListConversations(ctx context.Context, userID uint64) ([]*ConversationSummary, error)
	GetOrCreateConversation(ctx context.Context, userID, participantID uint64) (*dbmysql.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, requesterID uint64, limit int, beforeID uint64) ([]*dbmysql.Message, error)
	AppendMessage(ctx context.Context, conversationID string, senderID, receiverID uint64, content string) (*dbmysql.Message, error)
	MarkRead(ctx context.Context, conversationID string, userID uint64) (*ReadReceipt, error)
	DeleteConversation(ctx context.Context, conversationID string, userID uint64) error
	IsParticipant(ctx context.Context, conversationID string, userID uint64) (bool, error)
}

// Fanout is the slice of the gateway the service pushes through.
type Fanout interface {
	Broadcast(room string, ev gateway.Event) int
	SendToUser(userID uint64, ev gateway.Event) int
	CloseRoom(room string) int
}

type PresenceReader interface {
	IsOnline(userID uint64) bool
	Lookup(ctx context.Context, userIDs []uint64) map[uint64]presence.Record
}

type MessageNotifier interface {
	SendMessageNotification(conversationID string, recipientID, senderID uint64, senderHandle, content string)
}

type ParticipantSummary struct {
	UserID      uint64     `json:"userId"`
	Handle      string     `json:"handle"`
	DisplayName string     `json:"displayName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

type LastMessage struct {
	ID        uint64    `json:"id"`
	SenderID  uint64    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConversationSummary struct {
	ID          string             `json:"id"`
	Participant ParticipantSummary `json:"participant"`
	LastMessage *LastMessage       `json:"lastMessage,omitempty"`
	UnreadCount int                `json:"unreadCount"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type ReadReceipt struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []uint64 `json:"messageIds"`
	ReaderID       uint64   `json:"readerId"`
}

type deletedPayload struct {
	ConversationID string `json:"conversationId"`
}

type conversationService struct {
	repo     repository.ChatRepository
	users    repository.UserDirectory
	fanout   Fanout
	presence PresenceReader
	notifier MessageNotifier
	locks    *common.KeyedMutex
	cfg      config.ChatConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Constructor used in DI/wire
func NewConversationService(
	cfg *config.Config,
	repo repository.ChatRepository,
	users repository.UserDirectory,
	fanout Fanout,
	presence PresenceReader,
	notifier MessageNotifier,
	logger *slog.Logger,
) ConversationService {
	chat := cfg.Chat
	if chat.DefaultPageSize <= 0 {
		chat.DefaultPageSize = 50
	}
	if chat.MaxPageSize < chat.DefaultPageSize {
		chat.MaxPageSize = chat.DefaultPageSize
	}
	if chat.MaxContentLength <= 0 {
		chat.MaxContentLength = 5000
	}
	return &conversationService{
		repo:     repo,
		users:    users,
		fanout:   fanout,
		presence: presence,
		notifier: notifier,
		locks:    common.NewKeyedMutex(),
		cfg:      chat,
		logger:   logger.With("component", "conversations"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *conversationService) ListConversations(ctx context.Context, userID uint64) ([]*ConversationSummary, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	others := make([]uint64, 0, len(convs))
	for _, c := range convs {
		others = append(others, c.Other(userID))
	}
	profiles, err := s.users.Profiles(ctx, others)
	if err != nil {
		return nil, err
	}
	online := s.presence.Lookup(ctx, others)

	out := make([]*ConversationSummary, 0, len(convs))
	for _, c := range convs {
		other := c.Other(userID)
		p := ParticipantSummary{UserID: other}
		if u, ok := profiles[other]; ok {
			p.Handle = u.Handle
			p.DisplayName = u.DisplayName
			p.AvatarURL = u.AvatarURL
		}
		if rec, ok := online[other]; ok {
			p.Online = rec.Online
			p.LastSeen = rec.LastSeen
		}

		summary := &ConversationSummary{
			ID:          c.ID,
			Participant: p,
			UnreadCount: c.UnreadFor(userID),
			UpdatedAt:   c.UpdatedAt,
		}
		if c.LastMessageID != nil {
			lm := &LastMessage{ID: *c.LastMessageID, Content: c.LastMessageContent}
			if c.LastMessageSenderID != nil {
				lm.SenderID = *c.LastMessageSenderID
			}
			if c.LastMessageAt != nil {
				lm.CreatedAt = *c.LastMessageAt
			}
			summary.LastMessage = lm
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *conversationService) GetOrCreateConversation(ctx context.Context, userID, participantID uint64) (*dbmysql.Conversation, error) {
	if err := common.ValidateUserID("participantId", participantID); err != nil {
		return nil, err
	}
	if participantID == userID {
		return nil, common.Invalid("cannot start a conversation with yourself")
	}

	low, high := dbmysql.NormalizePair(userID, participantID)
	unlock := s.locks.Lock(fmt.Sprintf("pair:%d:%d", low, high))
	defer unlock()

	existing, err := s.repo.FindConversationByPair(ctx, low, high)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	profiles, err := s.users.Profiles(ctx, []uint64{participantID})
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[participantID]; !ok {
		return nil, common.NotFound("user %d not found", participantID)
	}

	conv, err := s.repo.CreateConversation(ctx, &dbmysql.Conversation{
		ID:         uuid.NewString(),
		UserLowID:  low,
		UserHighID: high,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID, "participant_id", participantID)
	return conv, nil
}

// loadForParticipant returns the conversation or a not-found / forbidden error.
func (s *conversationService) loadForParticipant(ctx context.Context, conversationID string, userID uint64) (*dbmysql.Conversation, error) {
	if conversationID == "" {
		return nil, common.Invalid("conversation ID is required")
	}
	conv, err := s.repo.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, common.Forbidden("not a participant of this conversation")
	}
	return conv, nil
}

func (s *conversationService) GetMessages(ctx context.Context, conversationID string, requesterID uint64, limit int, beforeID uint64) ([]*dbmysql.Message, error) {
	if _, err := s.loadForParticipant(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return s.repo.FetchMessages(ctx, conversationID, limit, beforeID)
}

// AppendMessage persists first and broadcasts second. The per-conversation lock
// spans both so listeners see messages in persisted order.
func (s *conversationService) AppendMessage(ctx context.Context, conversationID string, senderID, receiverID uint64, content string) (*dbmysql.Message, error) {
	content, err := common.NormalizeContent(content, s.cfg.MaxContentLength)
	if err != nil {
		return nil, err
	}
	if err := common.ValidateUserID("receiverId", receiverID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("conv:" + conversationID)
	defer unlock()

	conv, err := s.loadForParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if receiverID != conv.Other(senderID) || receiverID == senderID {
		return nil, common.Invalid("receiver is not the other participant")
	}

	msg := &dbmysql.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AppendMessage(ctx, conv, msg); err != nil {
		return nil, err
	}

	s.fanout.Broadcast(gateway.ConversationRoom(conversationID), gateway.Event{
		Name: gateway.EventMessageNew,
		Data: msg,
	})

	if !s.presence.IsOnline(receiverID) {
		s.notifyOffline(ctx, msg)
	}
	return msg, nil
}

func (s *conversationService) notifyOffline(ctx context.Context, msg *dbmysql.Message) {
	handle := fmt.Sprintf("user %d", msg.SenderID)
	profiles, err := s.users.Profiles(ctx, []uint64{msg.SenderID})
	if err != nil {
		s.logger.Warn("sender profile lookup failed", "user_id", msg.SenderID, "error", err)
	} else if u, ok := profiles[msg.SenderID]; ok {
		handle = u.Handle
	}
	s.notifier.SendMessageNotification(msg.ConversationID, msg.ReceiverID, msg.SenderID, handle, msg.Content)
}

// MarkRead is idempotent: a second call changes nothing and broadcasts nothing.
func (s *conversationService) MarkRead(ctx context.Context, conversationID string, userID uint64) (*ReadReceipt, error) {
	unlock := s.locks.Lock("conv:" + conversationID)
	defer unlock()

	conv, err := s.loadForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	ids, err := s.repo.MarkRead(ctx, conv, userID)
	if err != nil {
		return nil, err
	}

	receipt := &ReadReceipt{ConversationID: conversationID, MessageIDs: ids, ReaderID: userID}
	if receipt.MessageIDs == nil {
		receipt.MessageIDs = []uint64{}
	}
	if len(ids) > 0 {
		s.fanout.Broadcast(gateway.ConversationRoom(conversationID), gateway.Event{
			Name: gateway.EventMessagesRead,
			Data: receipt,
		})
	}
	return receipt, nil
}

func (s *conversationService) DeleteConversation(ctx context.Context, conversationID string, userID uint64) error {
	unlock := s.locks.Lock("conv:" + conversationID)
	defer unlock()

	conv, err := s.loadForParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}

	ev := gateway.Event{Name: gateway.EventConversationDeleted, Data: deletedPayload{ConversationID: conversationID}}
	room := gateway.ConversationRoom(conversationID)
	// participants outside the room still need to drop it from their list
	s.fanout.SendToUser(conv.UserLowID, ev)
	s.fanout.SendToUser(conv.UserHighID, ev)
	s.fanout.CloseRoom(room)

	s.logger.Info("conversation deleted", "conversation_id", conversationID, "user_id", userID)
	return nil
}

func (s *conversationService) IsParticipant(ctx context.Context, conversationID string, userID uint64) (bool, error) {
	conv, err := s.repo.FindConversation(ctx, conversationID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}
