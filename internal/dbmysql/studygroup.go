package dbmysql

import (
	"time"
)

type StudyGroup struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Subject     string    `gorm:"size:100;not null;index" json:"subject"`
	Description string    `gorm:"type:text" json:"description"`
	CreatorID   uint64    `gorm:"not null;index" json:"creatorId"`
	MaxMembers  int       `gorm:"not null" json:"maxMembers"`
	MemberCount int       `gorm:"not null;default:0" json:"memberCount"`
	IsOnline    bool      `gorm:"not null;default:false;index" json:"isOnline"`
	Schedule    string    `gorm:"size:255" json:"schedule"`
	Location    string    `gorm:"size:255" json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GroupMember is unique per (group, user).
type GroupMember struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	GroupID  uint64    `gorm:"not null;uniqueIndex:idx_group_member,priority:1" json:"groupId"`
	UserID   uint64    `gorm:"not null;uniqueIndex:idx_group_member,priority:2;index" json:"userId"`
	JoinedAt time.Time `gorm:"not null" json:"joinedAt"`
}
