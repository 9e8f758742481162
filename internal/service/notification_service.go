package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	inboxLimit    = 50
	bulkBatchSize = 200
)

// Notification is one inbox entry as the user sees it.
type Notification struct {
	ID        int64      `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Inbox struct {
	Unread        int64           `json:"unread"`
	Notifications []*Notification `json:"notifications"`
}

// NotificationService reads the per-user inbox kept in the outbox table and
// fans admin announcements out through the Notifier.
type NotificationService struct {
	userRepo   *repository.UserRepository
	outboxRepo *repository.OutboxRepository
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time
}

func NewNotificationService(db *gorm.DB, notifier Notifier, log *zap.Logger) *NotificationService {
	return &NotificationService{
		userRepo:   repository.NewUserRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// ListNotifications returns the user's newest notifications and the unread
// count.
func (s *NotificationService) ListNotifications(ctx context.Context, userID string) (*Inbox, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	messages, err := s.outboxRepo.ListByUser(ctx, userID, inboxLimit)
	if err != nil {
		return nil, err
	}
	unread, err := s.outboxRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	inbox := &Inbox{Unread: unread, Notifications: make([]*Notification, 0, len(messages))}
	for _, msg := range messages {
		inbox.Notifications = append(inbox.Notifications, s.toNotification(msg))
	}
	return inbox, nil
}

func (s *NotificationService) toNotification(msg *model.OutboxMessage) *Notification {
	n := &Notification{
		ID:        msg.ID,
		Kind:      msg.Kind,
		IsRead:    msg.ReadAt != nil,
		ReadAt:    msg.ReadAt,
		CreatedAt: msg.CreatedAt,
	}
	var payload NotificationPayload
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		s.log.Warn("undecodable notification payload", zap.Int64("id", msg.ID), zap.Error(err))
		return n
	}
	n.Title = payload.Title
	n.Message = payload.Message
	return n
}

// MarkNotificationRead marks one of the user's notifications read. Marking it
// again is a no-op.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, userID string, id int64) (*Notification, error) {
	if _, err := s.outboxRepo.GetForUser(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if err := s.outboxRepo.MarkRead(ctx, userID, id, s.now().UTC()); err != nil {
		return nil, err
	}
	msg, err := s.outboxRepo.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.toNotification(msg), nil
}

type BulkNotificationRequest struct {
	UserIDs []string `json:"user_ids"`
	Title   string   `json:"title" validate:"required,max=128"`
	Message string   `json:"message" validate:"required,max=1000"`
	Kind    string   `json:"kind" validate:"max=32"`
}

type BulkNotificationResult struct {
	Sent    int      `json:"sent"`
	Unknown []string `json:"unknown,omitempty"`
}

// SendBulk notifies the listed users, or every user when the list is empty.
// Listed ids that match no user are reported back and skipped.
func (s *NotificationService) SendBulk(ctx context.Context, req *BulkNotificationRequest) (*BulkNotificationResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = model.NotificationAnnouncement
	}

	result := &BulkNotificationResult{}
	if len(req.UserIDs) > 0 {
		users, err := s.userRepo.ListByIDs(ctx, req.UserIDs)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(req.UserIDs))
		for _, id := range req.UserIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := users[id]; !ok {
				result.Unknown = append(result.Unknown, id)
				continue
			}
			s.notifier.Notify(ctx, id, req.Title, req.Message, req.Kind)
			result.Sent++
		}
	} else {
		after := ""
		for {
			ids, err := s.userRepo.ListIDs(ctx, after, bulkBatchSize)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				s.notifier.Notify(ctx, id, req.Title, req.Message, req.Kind)
				result.Sent++
			}
			if len(ids) < bulkBatchSize {
				break
			}
			after = ids[len(ids)-1]
		}
	}

	s.log.Info("bulk notification sent",
		zap.String("kind", req.Kind),
		zap.Int("sent", result.Sent),
		zap.Int("unknown", len(result.Unknown)))
	return result, nil
}
