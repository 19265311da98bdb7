package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type NotificationType string

const (
	MessageType      NotificationType = "message"
	GroupDeletedType NotificationType = "group_deleted"
)

type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusDelivered NotificationStatus = "delivered"
	StatusRead      NotificationStatus = "read"
)

// NotificationMetadata is stored as a JSON column.
type NotificationMetadata map[string]string

func (m NotificationMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *NotificationMetadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported metadata type")
	}
	return json.Unmarshal(raw, m)
}

// NotificationEvent is handed to observers when something happens to a user
// who may not be connected right now.
type NotificationEvent struct {
	Type          NotificationType     `json:"type"`
	UserID        uint64               `json:"userId"`
	TriggerUserID uint64               `json:"triggerUserId,omitempty"`
	Header        string               `json:"header"`
	Content       string               `json:"content"`
	Priority      int                  `json:"priority"`
	Metadata      NotificationMetadata `json:"metadata,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}
