package model

import (
	"time"
)

// MaxDescriptionLen matches the description column width, in characters.
const MaxDescriptionLen = 256

const (
	TransactionTypePurchase   = "purchase"
	TransactionTypeRedemption = "redemption"
	TransactionTypeBonus      = "bonus"
)

// Transaction is one ledger entry.
//
// Entries are append-only. The only mutation ever applied after insert is the
// one-way claim of a redemption code (IsRedeemed false -> true, RedeemedAt set).
// BalanceBefore/BalanceAfter snapshot the cached balance so drift can be traced
// back to the entry that introduced it.
type Transaction struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID                string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Type                  string     `gorm:"type:varchar(20);not null" json:"type"`
	Points                int64      `gorm:"not null" json:"points"`
	BalanceBefore         int64      `gorm:"not null" json:"balance_before"`
	BalanceAfter          int64      `gorm:"not null" json:"balance_after"`
	Description           string     `gorm:"type:varchar(256);not null" json:"description"`
	MachineID             *string    `gorm:"type:varchar(64)" json:"machine_id,omitempty"`
	ExternalTransactionID *int64     `gorm:"index" json:"external_transaction_id,omitempty"`
	RedemptionCode        *string    `gorm:"type:varchar(64);uniqueIndex" json:"redemption_code,omitempty"`
	RewardID              *int64     `json:"reward_id,omitempty"`
	IsRedeemed            bool       `gorm:"not null;default:false" json:"is_redeemed"`
	RedeemedAt            *time.Time `json:"redeemed_at,omitempty"`
	Amount                *int64     `json:"amount,omitempty"`
	CardNumber            *string    `gorm:"type:varchar(64)" json:"card_number,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string {
	return "loyalty_transaction"
}

// Claimable reports whether the entry carries a code that can still be used at
// the point of sale.
func (t *Transaction) Claimable() bool {
	return t.RedemptionCode != nil && !t.IsRedeemed
}

// TruncateDescription clips s to MaxDescriptionLen runes.
func TruncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= MaxDescriptionLen {
		return s
	}
	return string(r[:MaxDescriptionLen])
}
