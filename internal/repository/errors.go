package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrCardNumberTaken        = errors.New("card number already linked to another user")
	ErrEmailTaken             = errors.New("email already registered")
	ErrBalanceNotEnough       = errors.New("balance not enough")
	ErrTransactionNotFound    = errors.New("ledger entry not found")
	ErrAlreadyRedeemed        = errors.New("redemption code already claimed")
	ErrExternalNotFound       = errors.New("external transaction not found")
	ErrExternalProcessed      = errors.New("external transaction already processed")
	ErrDuplicateExternalID    = errors.New("external transaction id already ingested")
	ErrSeasonNotFound         = errors.New("season not found")
	ErrRewardNotFound         = errors.New("reward not found")
	ErrReferralAlreadyApplied = errors.New("referral already applied")
	ErrMachineNotFound        = errors.New("machine not found")
	ErrMachineExists          = errors.New("machine already registered")
	ErrNotificationNotFound   = errors.New("notification not found")
)

// isDuplicate recognises unique-key violations whether or not the dialector
// translated them.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}

func txOr(tx, db *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}
