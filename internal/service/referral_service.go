package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReferralService struct {
	db       *gorm.DB
	locker   lock.Locker
	rules    Rules
	award    *AwardService
	notifier Notifier
	userRepo *repository.UserRepository
	log      *zap.Logger
}

func NewReferralService(db *gorm.DB, locker lock.Locker, rules Rules, award *AwardService, notifier Notifier, log *zap.Logger) *ReferralService {
	return &ReferralService{
		db:       db,
		locker:   locker,
		rules:    rules,
		award:    award,
		notifier: notifier,
		userRepo: repository.NewUserRepository(db),
		log:      log,
	}
}

type ReferralResult struct {
	ReferrerID    string `json:"referrer_id"`
	ReferrerName  string `json:"referrer_name"`
	ReferrerBonus int64  `json:"referrer_bonus"`
	RefereeBonus  int64  `json:"referee_bonus"`
	TotalPoints   int64  `json:"total_points"`
}

// UseReferralCode links userID to the owner of code and pays both sides in a
// single transaction. A user can be referred once.
func (s *ReferralService) UseReferralCode(ctx context.Context, userID, code string) (*ReferralResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 6 {
		return nil, ErrInvalidReferralCode
	}

	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.ReferredBy != nil {
		return nil, ErrReferralAlreadyUsed
	}
	referrer, err := s.userRepo.GetByReferralCode(ctx, nil, code)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, err
	}
	if referrer.ID == user.ID {
		return nil, ErrOwnReferralCode
	}

	// fixed order so two cross referrals cannot deadlock
	keys := []string{lock.UserKey(user.ID), lock.UserKey(referrer.ID)}
	sort.Strings(keys)
	for _, key := range keys {
		l, err := s.locker.Obtain(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		defer l.Release(ctx)
	}

	var referrerBonus, refereeBonus *BonusResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.SetReferredBy(ctx, tx, user.ID, referrer.ID); err != nil {
			return err
		}
		if err := s.userRepo.IncrementReferralCount(ctx, tx, referrer.ID); err != nil {
			return err
		}
		var err error
		referrerBonus, err = s.award.bonusInTx(ctx, tx, referrer.ID, s.rules.ReferrerBonus,
			fmt.Sprintf("Referral bonus: %s joined", user.DisplayName()))
		if err != nil {
			return err
		}
		refereeBonus, err = s.award.bonusInTx(ctx, tx, user.ID, s.rules.RefereeBonus,
			fmt.Sprintf("Welcome bonus: referred by %s", referrer.DisplayName()))
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrReferralAlreadyApplied) {
			return nil, ErrReferralAlreadyUsed
		}
		return nil, fmt.Errorf("apply referral: %w", err)
	}

	s.log.Info("referral applied",
		zap.String("user_id", user.ID),
		zap.String("referrer_id", referrer.ID))
	s.award.notifyBonus(ctx, referrer.ID, referrerBonus.Entry.Description, model.NotificationReferral, referrerBonus)
	s.award.notifyBonus(ctx, user.ID, refereeBonus.Entry.Description, model.NotificationReferral, refereeBonus)

	return &ReferralResult{
		ReferrerID:    referrer.ID,
		ReferrerName:  referrer.DisplayName(),
		ReferrerBonus: s.rules.ReferrerBonus,
		RefereeBonus:  s.rules.RefereeBonus,
		TotalPoints:   refereeBonus.TotalPoints,
	}, nil
}
