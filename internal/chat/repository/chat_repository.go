package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
)

// ChatRepository is the message store. Only the conversation service writes through it.
type ChatRepository interface {
	FindConversation(ctx context.Context, id string) (*dbmysql.Conversation, error)
	FindConversationByPair(ctx context.Context, a, b uint64) (*dbmysql.Conversation, error)
	// CreateConversation returns the stored row, which is the existing one if another writer won the race.
	CreateConversation(ctx context.Context, conv *dbmysql.Conversation) (*dbmysql.Conversation, error)
	ListConversations(ctx context.Context, userID uint64) ([]*dbmysql.Conversation, error)
	ConversationIDs(ctx context.Context, userID uint64) ([]string, error)
	AppendMessage(ctx context.Context, conv *dbmysql.Conversation, msg *dbmysql.Message) error
	FetchMessages(ctx context.Context, conversationID string, limit int, beforeID uint64) ([]*dbmysql.Message, error)
	MarkRead(ctx context.Context, conv *dbmysql.Conversation, userID uint64) ([]uint64, error)
	DeleteConversation(ctx context.Context, id string) error
}

type chatRepo struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{db: db}
}

func (r *chatRepo) FindConversation(ctx context.Context, id string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (r *chatRepo) FindConversationByPair(ctx context.Context, a, b uint64) (*dbmysql.Conversation, error) {
	low, high := dbmysql.NormalizePair(a, b)
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("no conversation between %d and %d", low, high)
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation by pair: %w", err)
	}
	return &conv, nil
}

func (r *chatRepo) CreateConversation(ctx context.Context, conv *dbmysql.Conversation) (*dbmysql.Conversation, error) {
	conv.UserLowID, conv.UserHighID = dbmysql.NormalizePair(conv.UserLowID, conv.UserHighID)

	createErr := r.db.WithContext(ctx).Create(conv).Error
	if createErr == nil {
		return conv, nil
	}

	// unique pair index: another writer created it first
	existing, err := r.FindConversationByPair(ctx, conv.UserLowID, conv.UserHighID)
	if err == nil {
		return existing, nil
	}
	return nil, fmt.Errorf("create conversation: %w", createErr)
}

func (r *chatRepo) ListConversations(ctx context.Context, userID uint64) ([]*dbmysql.Conversation, error) {
	var convs []*dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("updated_at DESC").
		Order("id").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations for %d: %w", userID, err)
	}
	return convs, nil
}

func (r *chatRepo) ConversationIDs(ctx context.Context, userID uint64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&dbmysql.Conversation{}).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("conversation ids for %d: %w", userID, err)
	}
	return ids, nil
}

// AppendMessage stores the message, the snapshot and the receiver's unread counter atomically.
func (r *chatRepo) AppendMessage(ctx context.Context, conv *dbmysql.Conversation, msg *dbmysql.Message) error {
	unread := conv.UnreadColumn(msg.ReceiverID)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		res := tx.Model(&dbmysql.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumns(map[string]interface{}{
				"last_message_id":        msg.ID,
				"last_message_sender_id": msg.SenderID,
				"last_message_content":   msg.Content,
				"last_message_at":        msg.CreatedAt,
				"updated_at":             msg.CreatedAt,
				unread:                   gorm.Expr(unread + " + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("update conversation snapshot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NotFound("conversation %s not found", conv.ID)
		}
		return nil
	})
}

// FetchMessages returns the newest limit messages (older than beforeID when set) in ascending id order.
func (r *chatRepo) FetchMessages(ctx context.Context, conversationID string, limit int, beforeID uint64) ([]*dbmysql.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []*dbmysql.Message
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", conversationID, err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead flips unread messages addressed to userID and returns their ids.
func (r *chatRepo) MarkRead(ctx context.Context, conv *dbmysql.Conversation, userID uint64) ([]uint64, error) {
	var ids []uint64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&dbmysql.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conv.ID, userID, false).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("collect unread: %w", err)
		}

		if len(ids) > 0 {
			if err := tx.Model(&dbmysql.Message{}).
				Where("id IN ?", ids).
				UpdateColumn("is_read", true).Error; err != nil {
				return fmt.Errorf("mark messages read: %w", err)
			}
		}

		// UpdateColumn keeps updated_at, reading is not activity
		if err := tx.Model(&dbmysql.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumn(conv.UnreadColumn(userID), 0).Error; err != nil {
			return fmt.Errorf("reset unread counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *chatRepo) DeleteConversation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&dbmysql.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&dbmysql.Conversation{})
		if res.Error != nil {
			return fmt.Errorf("delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return common.NotFound("conversation %s not found", id)
		}
		return nil
	})
}
