package notif

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"gocampus/internal/common"
	"gocampus/internal/config"
	"gocampus/internal/dbmysql"
)

const observerTimeout = 10 * time.Second

// NotificationManager fans events out to observers from a fixed worker pool.
type NotificationManager struct {
	observers    map[string]common.Observer
	eventChannel chan common.NotificationEvent
	workerPool   int
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	logger       *slog.Logger
}

var _ common.Subject = (*NotificationManager)(nil)

func NewNotificationManager(workerPoolSize, bufferSize int, logger *slog.Logger) *NotificationManager {
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())

	nm := &NotificationManager{
		observers:    make(map[string]common.Observer),
		eventChannel: make(chan common.NotificationEvent, bufferSize),
		workerPool:   workerPoolSize,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("component", "notifications"),
	}

	for i := 0; i < workerPoolSize; i++ {
		nm.wg.Add(1)
		go nm.processEvents()
	}

	return nm
}

func (nm *NotificationManager) Subscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.observers[observer.Name()] = observer
	nm.logger.Info("observer subscribed", "observer", observer.Name())
}

func (nm *NotificationManager) Unsubscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.observers, observer.Name())
	nm.logger.Info("observer unsubscribed", "observer", observer.Name())
}

// Notify runs every observer inline. Observer errors are logged, not returned.
func (nm *NotificationManager) Notify(event common.NotificationEvent) {
	nm.mu.RLock()
	observers := make([]common.Observer, 0, len(nm.observers))
	for _, obs := range nm.observers {
		observers = append(observers, obs)
	}
	nm.mu.RUnlock()

	for _, observer := range observers {
		ctx, cancel := context.WithTimeout(nm.ctx, observerTimeout)
		err := observer.Update(ctx, event)
		cancel()
		if err != nil {
			nm.logger.Warn("observer update failed",
				"observer", observer.Name(),
				"type", event.Type,
				"user_id", event.UserID,
				"error", err)
		}
	}
}

// NotifyAsync never blocks: when the buffer is full the event is dropped.
func (nm *NotificationManager) NotifyAsync(event common.NotificationEvent) {
	select {
	case <-nm.ctx.Done():
		return
	default:
	}

	select {
	case nm.eventChannel <- event:
	case <-nm.ctx.Done():
	default:
		nm.logger.Warn("notification channel full, dropping event", "type", event.Type, "user_id", event.UserID)
	}
}

func (nm *NotificationManager) processEvents() {
	defer nm.wg.Done()

	for {
		select {
		case event := <-nm.eventChannel:
			nm.Notify(event)
		case <-nm.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers. Queued events that were not picked up are dropped.
func (nm *NotificationManager) Shutdown() {
	nm.shutdownOnce.Do(func() {
		nm.cancel()
		nm.wg.Wait()
		nm.logger.Info("notification manager shutdown complete")
	})
}

// NotificationStore is the inbox persistence the service reads from.
type NotificationStore interface {
	Create(ctx context.Context, notification *dbmysql.Notification) error
	ByUserID(ctx context.Context, userID uint64, limit, offset int) ([]*dbmysql.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uint64) error
	UnreadCount(ctx context.Context, userID uint64) (int64, error)
}

type NotificationService struct {
	manager *NotificationManager
	repo    NotificationStore
	enabled bool
	logger  *slog.Logger
}

// NewNotificationService wires the manager with the given observers.
func NewNotificationService(cfg *config.Config, repo NotificationStore, logger *slog.Logger, observers ...common.Observer) *NotificationService {
	manager := NewNotificationManager(cfg.Notification.Workers, cfg.Notification.ChannelBufferSize, logger)
	for _, obs := range observers {
		if obs != nil {
			manager.Subscribe(obs)
		}
	}

	return &NotificationService{
		manager: manager,
		repo:    repo,
		enabled: cfg.Notification.Enabled,
		logger:  logger.With("component", "notifications"),
	}
}

func (s *NotificationService) validateEvent(event common.NotificationEvent) error {
	if event.UserID == 0 {
		return common.Invalid("notification user is required")
	}
	if event.Type == "" {
		return common.Invalid("notification type is required")
	}
	if event.Header == "" {
		return common.Invalid("notification header is required")
	}
	return nil
}

// Enqueue validates and hands the event to the worker pool.
func (s *NotificationService) Enqueue(event common.NotificationEvent) error {
	if !s.enabled {
		return nil
	}
	if err := s.validateEvent(event); err != nil {
		return fmt.Errorf("invalid notification event: %w", err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.manager.NotifyAsync(event)
	return nil
}

const previewLength = 120

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	r := []rune(content)
	return string(r[:previewLength]) + "…"
}

// SendMessageNotification tells an offline receiver about a new direct message.
func (s *NotificationService) SendMessageNotification(conversationID string, recipientID, senderID uint64, senderHandle, content string) {
	event := common.NotificationEvent{
		Type:          common.MessageType,
		UserID:        recipientID,
		TriggerUserID: senderID,
		Header:        fmt.Sprintf("Message from %s", senderHandle),
		Content:       preview(content),
		Priority:      4,
		Metadata: common.NotificationMetadata{
			"conversation_id": conversationID,
			"sender_handle":   senderHandle,
		},
	}
	if err := s.Enqueue(event); err != nil {
		s.logger.Warn("message notification rejected", "error", err)
	}
}

// SendGroupDeletedNotification tells former members that a study group is gone.
func (s *NotificationService) SendGroupDeletedNotification(groupID uint64, groupName string, memberIDs []uint64, creatorID uint64) {
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		event := common.NotificationEvent{
			Type:          common.GroupDeletedType,
			UserID:        id,
			TriggerUserID: creatorID,
			Header:        "Study group removed",
			Content:       fmt.Sprintf("%s was deleted by its creator", groupName),
			Priority:      2,
			Metadata: common.NotificationMetadata{
				"group_id": fmt.Sprintf("%d", groupID),
			},
		}
		if err := s.Enqueue(event); err != nil {
			s.logger.Warn("group notification rejected", "error", err)
		}
	}
}

func (s *NotificationService) GetUserNotifications(ctx context.Context, userID uint64, limit, offset int) ([]*dbmysql.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	notifications, err := s.repo.ByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID uint64) error {
	return s.repo.MarkAsRead(ctx, notificationID, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *NotificationService) Shutdown() {
	s.manager.Shutdown()
}
