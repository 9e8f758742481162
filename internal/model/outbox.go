package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	NotificationTierUpgrade    = "tier_upgrade"
	NotificationPointsEarned   = "points_earned"
	NotificationPunchCard      = "punch_card"
	NotificationStreakReward   = "streak_reward"
	NotificationRewardRedeemed = "reward_redeemed"
	NotificationReferral       = "referral"
	NotificationAnnouncement   = "announcement"
)

// OutboxMessage is a notification waiting to be published to Kafka. The same
// row is the user's inbox entry; ReadAt is set once the user has seen it.
type OutboxMessage struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string     `gorm:"type:varchar(64);not null" json:"message_key"`
	UserID     string     `gorm:"type:varchar(36);index" json:"user_id"`
	Kind       string     `gorm:"type:varchar(32);not null" json:"kind"`
	Topic      string     `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string     `gorm:"type:text;not null" json:"payload"`
	Status     string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int        `gorm:"not null;default:0" json:"retry_count"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Transaction{},
		&ExternalTransaction{},
		&Season{},
		&MonthlyPoints{},
		&Reward{},
		&OutboxMessage{},
		&Machine{},
	}
}
