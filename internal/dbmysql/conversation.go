package dbmysql

import (
	"time"
)

// Conversation is a direct conversation between exactly two users.
// The pair is stored ordered (UserLowID < UserHighID) so the unique index covers both directions.
type Conversation struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	UserLowID           uint64     `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:1" json:"userLowId"`
	UserHighID          uint64     `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"userHighId"`
	LastMessageID       *uint64    `json:"lastMessageId,omitempty"`
	LastMessageSenderID *uint64    `json:"lastMessageSenderId,omitempty"`
	LastMessageContent  string     `gorm:"type:text" json:"lastMessageContent,omitempty"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty"`
	UnreadLow           int        `gorm:"not null;default:0" json:"-"`
	UnreadHigh          int        `gorm:"not null;default:0" json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `gorm:"index" json:"updatedAt"`
}

// NormalizePair orders two user ids.
func NormalizePair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID uint64) bool {
	return userID != 0 && (c.UserLowID == userID || c.UserHighID == userID)
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uint64) uint64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

func (c *Conversation) UnreadFor(userID uint64) int {
	if c.UserLowID == userID {
		return c.UnreadLow
	}
	if c.UserHighID == userID {
		return c.UnreadHigh
	}
	return 0
}

// UnreadColumn is the counter column owned by userID.
func (c *Conversation) UnreadColumn(userID uint64) string {
	if c.UserLowID == userID {
		return "unread_low"
	}
	return "unread_high"
}
