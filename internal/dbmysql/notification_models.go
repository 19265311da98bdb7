package dbmysql

import (
	"time"

	"gocampus/internal/common"
)

// Notification is the inbox record for an event addressed to an offline user.
type Notification struct {
	ID            uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64                      `gorm:"not null;index" json:"userId"`
	Type          string                      `gorm:"not null;size:50" json:"type"`
	Header        string                      `gorm:"not null;size:255" json:"header"`
	Content       string                      `gorm:"not null;type:text" json:"content"`
	Status        string                      `gorm:"not null;default:'pending';size:50" json:"status"`
	Priority      int                         `gorm:"default:1" json:"priority"`
	TriggerUserID *uint64                     `json:"triggerUserId,omitempty"`
	Metadata      common.NotificationMetadata `gorm:"type:json" json:"metadata"`
	ReadAt        *time.Time                  `json:"readAt,omitempty"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}
