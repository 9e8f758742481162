package model

import (
	"time"
)

const (
	SourceAPI     = "api"
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceCSV     = "csv"
	SourceManual  = "manual"
)

// ExternalTransaction is a raw purchase reported by a vending source. It is kept
// forever for reconciliation; IsProcessed flips false -> true exactly once, when
// the purchase is credited to MatchedUserID.
type ExternalTransaction struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID    string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"external_id"`
	Source        string     `gorm:"type:varchar(20);not null" json:"source"`
	MachineID     string     `gorm:"type:varchar(64);not null" json:"machine_id"`
	CardNumber    *string    `gorm:"type:varchar(64);index" json:"card_number,omitempty"`
	Amount        int64      `gorm:"not null" json:"amount"`
	ProductName   string     `gorm:"type:varchar(256);not null" json:"product_name"`
	Timestamp     time.Time  `gorm:"not null" json:"timestamp"`
	IsProcessed   bool       `gorm:"not null;default:false;index" json:"is_processed"`
	MatchedUserID *string    `gorm:"type:varchar(36);index" json:"matched_user_id,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ExternalTransaction) TableName() string {
	return "external_transaction"
}
