package dbmysql

import (
	"time"
)

// Message is immutable except for Read, which only moves false -> true.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"not null;size:36;index:idx_message_conversation,priority:1;index:idx_message_unread,priority:1" json:"conversationId"`
	SenderID       uint64    `gorm:"not null" json:"senderId"`
	ReceiverID     uint64    `gorm:"not null;index:idx_message_unread,priority:2" json:"receiverId"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Read           bool      `gorm:"column:is_read;not null;default:false;index:idx_message_unread,priority:3" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_message_conversation,priority:2" json:"createdAt"`
}
