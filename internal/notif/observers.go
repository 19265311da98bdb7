package notif

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
)

type DatabaseNotificationObserver struct {
	repo NotificationStore
}

func NewDatabaseNotificationObserver(repo NotificationStore) *DatabaseNotificationObserver {
	return &DatabaseNotificationObserver{repo: repo}
}

func (d *DatabaseNotificationObserver) Name() string {
	return "database_observer"
}

func (d *DatabaseNotificationObserver) Update(ctx context.Context, event common.NotificationEvent) error {
	notification := &dbmysql.Notification{
		UserID:   event.UserID,
		Type:     string(event.Type),
		Header:   event.Header,
		Content:  event.Content,
		Priority: event.Priority,
		Status:   string(common.StatusPending),
		Metadata: event.Metadata,
	}
	if event.TriggerUserID != 0 {
		trigger := event.TriggerUserID
		notification.TriggerUserID = &trigger
	}

	if err := d.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// Publisher sends one keyed record to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
}

// KafkaNotificationObserver forwards events to the push pipeline.
type KafkaNotificationObserver struct {
	publisher Publisher
	topic     string
}

func NewKafkaNotificationObserver(publisher Publisher, topic string) *KafkaNotificationObserver {
	return &KafkaNotificationObserver{publisher: publisher, topic: topic}
}

func (k *KafkaNotificationObserver) Name() string {
	return "kafka_observer"
}

func (k *KafkaNotificationObserver) Update(ctx context.Context, event common.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	// keyed by user so one user's notifications stay ordered within a partition
	key := strconv.FormatUint(event.UserID, 10)
	headers := map[string]string{"type": string(event.Type)}
	if err := k.publisher.Publish(ctx, k.topic, key, payload, headers); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogNotificationObserver records every event at debug level.
type LogNotificationObserver struct {
	logger *slog.Logger
}

func NewLogNotificationObserver(logger *slog.Logger) *LogNotificationObserver {
	return &LogNotificationObserver{logger: logger}
}

func (l *LogNotificationObserver) Name() string {
	return "log_observer"
}

func (l *LogNotificationObserver) Update(_ context.Context, event common.NotificationEvent) error {
	l.logger.Debug("notification",
		"type", event.Type,
		"user_id", event.UserID,
		"trigger_user_id", event.TriggerUserID,
		"header", event.Header)
	return nil
}
