package service

import (
	"context"
	"encoding/json"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"
	"hivisloyalty/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier is fire-and-forget: a failed notification never undoes an award.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, kind string)
}

type NotificationPayload struct {
	UserID  string    `json:"user_id"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Kind    string    `json:"kind"`
	SentAt  time.Time `json:"sent_at"`
}

// OutboxNotifier queues notifications in the outbox table; OutboxSender
// publishes them to Kafka.
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	topic      string
	log        *zap.Logger
}

func NewOutboxNotifier(db *gorm.DB, topic string, log *zap.Logger) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      topic,
		log:        log,
	}
}

func (n *OutboxNotifier) Notify(ctx context.Context, userID, title, message, kind string) {
	payload, err := json.Marshal(NotificationPayload{
		UserID:  userID,
		Title:   title,
		Message: message,
		Kind:    kind,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		n.log.Error("encode notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	msg := &model.OutboxMessage{
		MessageKey: idgen.GenerateMessageKey(),
		UserID:     userID,
		Kind:       kind,
		Topic:      n.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := n.outboxRepo.Create(ctx, nil, msg); err != nil {
		n.log.Warn("queue notification failed",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}
