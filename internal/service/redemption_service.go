package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"
	"hivisloyalty/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RedemptionService struct {
	db              *gorm.DB
	locker          lock.Locker
	rules           Rules
	notifier        Notifier
	userRepo        *repository.UserRepository
	rewardRepo      *repository.RewardRepository
	transactionRepo *repository.TransactionRepository
	log             *zap.Logger
	now             func() time.Time
}

func NewRedemptionService(db *gorm.DB, locker lock.Locker, rules Rules, notifier Notifier, log *zap.Logger) *RedemptionService {
	return &RedemptionService{
		db:              db,
		locker:          locker,
		rules:           rules,
		notifier:        notifier,
		userRepo:        repository.NewUserRepository(db),
		rewardRepo:      repository.NewRewardRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		log:             log,
		now:             time.Now,
	}
}

type RedeemResult struct {
	Code        string             `json:"redemption_code"`
	Reward      *model.Reward      `json:"reward"`
	Entry       *model.Transaction `json:"entry"`
	TotalPoints int64              `json:"total_points"`
}

// Redeem spends points on a catalog reward and issues a single-use code.
// Tier is never re-evaluated downward.
func (s *RedemptionService) Redeem(ctx context.Context, userID string, rewardID int64) (*RedeemResult, error) {
	reward, err := s.rewardRepo.GetByID(ctx, rewardID)
	if err != nil {
		if errors.Is(err, repository.ErrRewardNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	if !reward.IsActive {
		return nil, ErrRewardNotFound
	}

	userLock, err := s.locker.Obtain(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer userLock.Release(ctx)

	code := idgen.RedemptionCode(s.rules.RedemptionCodePrefix)
	rewardRef := reward.ID
	entry := &model.Transaction{
		UserID:         userID,
		Type:           model.TransactionTypeRedemption,
		Points:         -reward.PointsCost,
		Description:    fmt.Sprintf("Redeemed: %s", reward.Name),
		RedemptionCode: &code,
		RewardID:       &rewardRef,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.TotalPoints < reward.PointsCost {
			return ErrInsufficientPoints
		}
		return s.transactionRepo.Append(ctx, tx, entry)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrInsufficientPoints), errors.Is(err, repository.ErrBalanceNotEnough):
			return nil, ErrInsufficientPoints
		default:
			return nil, fmt.Errorf("redeem reward %d: %w", reward.ID, err)
		}
	}

	s.log.Info("reward redeemed",
		zap.String("user_id", userID),
		zap.Int64("reward_id", reward.ID),
		zap.String("code", code))
	s.notifier.Notify(ctx, userID, "Reward redeemed",
		fmt.Sprintf("Show code %s to claim %s", code, reward.Name),
		model.NotificationRewardRedeemed)

	return &RedeemResult{
		Code:        code,
		Reward:      reward,
		Entry:       entry,
		TotalPoints: entry.BalanceAfter,
	}, nil
}

type ClaimResult struct {
	Code        string    `json:"redemption_code"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Description string    `json:"description"`
	RewardName  string    `json:"reward_name,omitempty"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// ValidateAndClaim marks a code used at the point of sale. Concurrent claims
// of one code yield exactly one success.
func (s *RedemptionService) ValidateAndClaim(ctx context.Context, code string) (*ClaimResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrCodeNotFound
	}

	now := s.now().UTC()
	entry, err := s.transactionRepo.MarkRedeemed(ctx, code, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTransactionNotFound):
			return nil, ErrCodeNotFound
		case errors.Is(err, repository.ErrAlreadyRedeemed):
			return nil, ErrAlreadyClaimed
		default:
			return nil, err
		}
	}

	result := &ClaimResult{
		Code:        code,
		UserID:      entry.UserID,
		Description: entry.Description,
		RedeemedAt:  now,
	}
	if user, err := s.userRepo.GetByID(ctx, nil, entry.UserID); err == nil {
		result.UserName = user.DisplayName()
	}
	if entry.RewardID != nil {
		if reward, err := s.rewardRepo.GetByID(ctx, *entry.RewardID); err == nil {
			result.RewardName = reward.Name
		}
	}

	s.log.Info("redemption code claimed",
		zap.String("code", code),
		zap.String("user_id", entry.UserID))
	return result, nil
}

func (s *RedemptionService) ListRewards(ctx context.Context) ([]*model.Reward, error) {
	return s.rewardRepo.ListActive(ctx)
}

func (s *RedemptionService) GetReward(ctx context.Context, id int64) (*model.Reward, error) {
	reward, err := s.rewardRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrRewardNotFound) {
		return nil, ErrRewardNotFound
	}
	return reward, err
}

type CreateRewardRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
	PointsCost  int64  `json:"points_cost" validate:"gt=0"`
	Category    string `json:"category" validate:"required,oneof=drink snack bonus"`
	Inactive    bool   `json:"inactive"`
}

func (s *RedemptionService) CreateReward(ctx context.Context, req *CreateRewardRequest) (*model.Reward, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	reward := &model.Reward{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Category:    req.Category,
		IsActive:    !req.Inactive,
	}
	if err := s.rewardRepo.Create(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}
