package model

import (
	"strings"
	"time"
)

const (
	TierApprentice = "apprentice"
	TierTradie     = "tradie"
	TierForeman    = "foreman"
)

// tierOrder is the only legal direction of travel: apprentice -> tradie -> foreman.
var tierOrder = map[string]int{
	TierApprentice: 0,
	TierTradie:     1,
	TierForeman:    2,
}

// TierRank returns the position of tier in the promotion order. Unknown tiers
// rank as apprentice.
func TierRank(tier string) int {
	return tierOrder[tier]
}

// CanPromote reports whether moving from one tier to another is an upgrade.
// Tiers are never downgraded, so equal or lower targets are rejected.
func CanPromote(from, to string) bool {
	_, ok := tierOrder[to]
	if !ok {
		return false
	}
	return TierRank(to) > TierRank(from)
}

var cardSeparators = strings.NewReplacer(" ", "", "-", "", "\t", "")

// NormalizeCardNumber drops the spaces and dashes card numbers are printed
// with, so a linked card and a vending record compare equal.
func NormalizeCardNumber(card string) string {
	return cardSeparators.Replace(strings.TrimSpace(card))
}

// User holds identity plus the cached loyalty state.
//
// TotalPoints is a cache of SUM(loyalty_transaction.points); it is only moved by
// TransactionRepository.Append inside the same database
// transaction as the ledger insert.
type User struct {
	ID                 string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email              string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	FirstName          string     `gorm:"type:varchar(64)" json:"first_name"`
	LastName           string     `gorm:"type:varchar(64)" json:"last_name"`
	CardNumber         *string    `gorm:"type:varchar(64);uniqueIndex" json:"card_number,omitempty"`
	Suburb             string     `gorm:"type:varchar(128);index" json:"suburb"`
	LoyaltyTier        string     `gorm:"type:varchar(20);not null;default:apprentice" json:"loyalty_tier"`
	TotalPoints        int64      `gorm:"not null;default:0" json:"total_points"`
	PunchCardProgress  int        `gorm:"not null;default:0" json:"punch_card_progress"`
	CurrentStreak      int        `gorm:"not null;default:0" json:"current_streak"`
	StreakRewardEarned bool       `gorm:"not null;default:false" json:"streak_reward_earned"`
	LastPurchaseDate   *time.Time `json:"last_purchase_date,omitempty"`
	ReferralCode       string     `gorm:"type:varchar(6);uniqueIndex;not null" json:"referral_code"`
	ReferredBy         *string    `gorm:"type:varchar(36)" json:"referred_by,omitempty"`
	ReferralCount      int        `gorm:"not null;default:0" json:"referral_count"`
	IsAdmin            bool       `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "loyalty_user"
}

func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
