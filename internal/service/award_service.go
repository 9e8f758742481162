package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"
	"hivisloyalty/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	punchCardDescription    = "Punch card completed"
	streakRewardDescription = "Streak reward: free item"
)

// AwardService is the only entry point that credits points. Every award runs
// under the user's lock and inside one database transaction, so the ledger
// entries, the cached balance and the derived loyalty state commit together.
type AwardService struct {
	db              *gorm.DB
	locker          lock.Locker
	rules           Rules
	seasons         *SeasonService
	notifier        Notifier
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	externalRepo    *repository.ExternalTransactionRepository
	log             *zap.Logger
	now             func() time.Time
}

func NewAwardService(db *gorm.DB, locker lock.Locker, rules Rules, seasons *SeasonService, notifier Notifier, log *zap.Logger) *AwardService {
	return &AwardService{
		db:              db,
		locker:          locker,
		rules:           rules,
		seasons:         seasons,
		notifier:        notifier,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		externalRepo:    repository.NewExternalTransactionRepository(db),
		log:             log,
		now:             time.Now,
	}
}

func (s *AwardService) WithClock(now func() time.Time) *AwardService {
	s.now = now
	return s
}

type AwardRequest struct {
	UserID      string
	Points      int64
	Description string
	MachineID   *string
	// ExternalTransactionID is flipped to processed in the same transaction;
	// an already processed id aborts the award with ErrAlreadyProcessed.
	ExternalTransactionID *int64
	Amount                *int64
	CardNumber            *string
}

type AwardResult struct {
	UserID             string               `json:"user_id"`
	Entries            []*model.Transaction `json:"entries"`
	PointsAwarded      int64                `json:"points_awarded"`
	TotalPoints        int64                `json:"total_points"`
	PreviousTier       string               `json:"previous_tier"`
	Tier               string               `json:"tier"`
	TierUpgraded       bool                 `json:"tier_upgraded"`
	PunchCardProgress  int                  `json:"punch_card_progress"`
	PunchCardCompleted bool                 `json:"punch_card_completed"`
	CurrentStreak      int                  `json:"current_streak"`
	StreakRewardCode   string               `json:"streak_reward_code,omitempty"`
	SeasonID           int64                `json:"season_id,omitempty"`
	MonthlyPoints      int64                `json:"monthly_points"`
}

// Award credits a purchase and applies tier, punch card, streak and season
// side effects as one unit.
func (s *AwardService) Award(ctx context.Context, req *AwardRequest) (*AwardResult, error) {
	if req.Points < 0 {
		return nil, ErrInvalidPoints
	}

	season, err := s.seasons.EnsureCurrentSeason(ctx)
	if err != nil {
		return nil, err
	}

	userLock, err := s.locker.Obtain(ctx, lock.UserKey(req.UserID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer userLock.Release(ctx)

	now := s.now()
	var (
		result *AwardResult
		suburb string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		suburb = model.CohortSuburb(user.Suburb)

		if req.ExternalTransactionID != nil {
			if err := s.externalRepo.MarkProcessed(ctx, tx, *req.ExternalTransactionID, user.ID, now); err != nil {
				return err
			}
		}

		result, err = s.apply(ctx, tx, user, req, now)
		if err != nil {
			return err
		}

		if result.MonthlyPoints > 0 {
			row, err := s.seasons.addInTx(ctx, tx, season, user.ID, suburb, result.MonthlyPoints)
			if err != nil {
				return fmt.Errorf("monthly points: %w", err)
			}
			result.SeasonID = row.SeasonID
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.log.Info("points awarded",
		zap.String("user_id", result.UserID),
		zap.Int64("points", result.PointsAwarded),
		zap.Int64("total_points", result.TotalPoints),
		zap.String("tier", result.Tier))

	if result.SeasonID != 0 {
		if err := s.seasons.RecomputeRanks(ctx, result.SeasonID, suburb); err != nil {
			s.log.Warn("recompute ranks failed",
				zap.Int64("season_id", result.SeasonID),
				zap.String("suburb", suburb),
				zap.Error(err))
		}
	}
	s.notifyAward(ctx, req, result)
	return result, nil
}

// apply runs the purchase state machine against the locked user row.
func (s *AwardService) apply(ctx context.Context, tx *gorm.DB, user *model.User, req *AwardRequest, now time.Time) (*AwardResult, error) {
	result := &AwardResult{
		UserID:       user.ID,
		PreviousTier: user.LoyaltyTier,
		TotalPoints:  user.TotalPoints,
	}
	tier := user.LoyaltyTier

	purchase := &model.Transaction{
		UserID:                user.ID,
		Type:                  model.TransactionTypePurchase,
		Points:                req.Points,
		Description:           req.Description,
		MachineID:             req.MachineID,
		ExternalTransactionID: req.ExternalTransactionID,
		Amount:                req.Amount,
		CardNumber:            req.CardNumber,
	}
	if err := s.transactionRepo.Append(ctx, tx, purchase); err != nil {
		return nil, fmt.Errorf("append purchase: %w", err)
	}
	result.Entries = append(result.Entries, purchase)
	result.TotalPoints = purchase.BalanceAfter
	result.MonthlyPoints += purchase.Points
	tier = s.rules.Promote(tier, result.TotalPoints)

	progress := user.PunchCardProgress + 1
	if progress >= s.rules.PunchCardTarget {
		bonus := &model.Transaction{
			UserID:                user.ID,
			Type:                  model.TransactionTypeBonus,
			Points:                s.rules.PunchCardBonus,
			Description:           punchCardDescription,
			MachineID:             req.MachineID,
			ExternalTransactionID: req.ExternalTransactionID,
		}
		if err := s.transactionRepo.Append(ctx, tx, bonus); err != nil {
			return nil, fmt.Errorf("append punch card bonus: %w", err)
		}
		result.Entries = append(result.Entries, bonus)
		result.TotalPoints = bonus.BalanceAfter
		result.MonthlyPoints += bonus.Points
		result.PunchCardCompleted = true
		tier = s.rules.Promote(tier, result.TotalPoints)
		progress = 0
	}
	result.PunchCardProgress = progress

	today := s.rules.Day(now)
	streak, rewardEarned := s.nextStreak(user, today)
	if streak >= s.rules.StreakThreshold && !rewardEarned {
		rewardEarned = true
		code := idgen.StreakCode(s.rules.StreakCodePrefix)
		reward := &model.Transaction{
			UserID:         user.ID,
			Type:           model.TransactionTypeBonus,
			Points:         0,
			Description:    streakRewardDescription,
			RedemptionCode: &code,
		}
		if err := s.transactionRepo.Append(ctx, tx, reward); err != nil {
			return nil, fmt.Errorf("append streak reward: %w", err)
		}
		result.Entries = append(result.Entries, reward)
		result.StreakRewardCode = code
	}
	result.CurrentStreak = streak

	err := s.userRepo.SaveLoyaltyState(ctx, tx, user.ID, repository.LoyaltyState{
		LoyaltyTier:        tier,
		PunchCardProgress:  progress,
		CurrentStreak:      streak,
		StreakRewardEarned: rewardEarned,
		LastPurchaseDate:   &today,
	})
	if err != nil {
		return nil, fmt.Errorf("save loyalty state: %w", err)
	}

	result.Tier = tier
	result.TierUpgraded = model.CanPromote(user.LoyaltyTier, tier)
	for _, e := range result.Entries {
		result.PointsAwarded += e.Points
	}
	return result, nil
}

// nextStreak advances the daily streak for a purchase on today. A broken
// streak restarts at 1 and opens a new reward cycle.
func (s *AwardService) nextStreak(user *model.User, today time.Time) (int, bool) {
	if user.LastPurchaseDate == nil {
		return 1, user.StreakRewardEarned
	}
	last := s.rules.Day(*user.LastPurchaseDate)
	days := daysBetween(last, today)
	switch {
	case days <= 0:
		if user.CurrentStreak < 1 {
			return 1, user.StreakRewardEarned
		}
		return user.CurrentStreak, user.StreakRewardEarned
	case days == 1:
		return user.CurrentStreak + 1, user.StreakRewardEarned
	default:
		return 1, false
	}
}

// daysBetween counts calendar days from a to b; both are local midnights.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func (s *AwardService) notifyAward(ctx context.Context, req *AwardRequest, r *AwardResult) {
	if req.Points > 0 {
		s.notifier.Notify(ctx, r.UserID, "Points earned",
			fmt.Sprintf("You earned %d points. Balance: %d", req.Points, r.TotalPoints),
			model.NotificationPointsEarned)
	}
	if r.PunchCardCompleted {
		s.notifier.Notify(ctx, r.UserID, "Punch card complete",
			fmt.Sprintf("Your punch card is full: %d bonus points added", s.rules.PunchCardBonus),
			model.NotificationPunchCard)
	}
	if r.StreakRewardCode != "" {
		s.notifier.Notify(ctx, r.UserID, "Streak reward unlocked",
			fmt.Sprintf("%d days in a row! Show code %s for a free item", r.CurrentStreak, r.StreakRewardCode),
			model.NotificationStreakReward)
	}
	if r.TierUpgraded {
		s.notifier.Notify(ctx, r.UserID, "Tier upgraded",
			fmt.Sprintf("You are now %s", r.Tier),
			model.NotificationTierUpgrade)
	}
}

type BonusResult struct {
	Entry        *model.Transaction `json:"entry"`
	TotalPoints  int64              `json:"total_points"`
	PreviousTier string             `json:"previous_tier"`
	Tier         string             `json:"tier"`
	TierUpgraded bool               `json:"tier_upgraded"`
}

// GrantBonus credits non-purchase points. Only the balance and tier move;
// punch card, streak and monthly totals are untouched.
func (s *AwardService) GrantBonus(ctx context.Context, userID string, points int64, description, kind string) (*BonusResult, error) {
	if points < 0 {
		return nil, ErrInvalidPoints
	}
	userLock, err := s.locker.Obtain(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer userLock.Release(ctx)

	var result *BonusResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.bonusInTx(ctx, tx, userID, points, description)
		return err
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.notifyBonus(ctx, userID, description, kind, result)
	return result, nil
}

// bonusInTx expects the caller to hold the user's lock.
func (s *AwardService) bonusInTx(ctx context.Context, tx *gorm.DB, userID string, points int64, description string) (*BonusResult, error) {
	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	entry := &model.Transaction{
		UserID:      user.ID,
		Type:        model.TransactionTypeBonus,
		Points:      points,
		Description: description,
	}
	if err := s.transactionRepo.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append bonus: %w", err)
	}
	tier := s.rules.Promote(user.LoyaltyTier, entry.BalanceAfter)
	if tier != user.LoyaltyTier {
		if err := s.userRepo.SaveTier(ctx, tx, user.ID, tier); err != nil {
			return nil, fmt.Errorf("save tier: %w", err)
		}
	}
	return &BonusResult{
		Entry:        entry,
		TotalPoints:  entry.BalanceAfter,
		PreviousTier: user.LoyaltyTier,
		Tier:         tier,
		TierUpgraded: model.CanPromote(user.LoyaltyTier, tier),
	}, nil
}

func (s *AwardService) notifyBonus(ctx context.Context, userID, description, kind string, r *BonusResult) {
	s.notifier.Notify(ctx, userID, "Bonus points",
		fmt.Sprintf("%s: +%d points", description, r.Entry.Points), kind)
	if r.TierUpgraded {
		s.notifier.Notify(ctx, userID, "Tier upgraded",
			fmt.Sprintf("You are now %s", r.Tier),
			model.NotificationTierUpgrade)
	}
}

// ResetStreakReward lets the user earn the streak reward again.
func (s *AwardService) ResetStreakReward(ctx context.Context, userID string) error {
	userLock, err := s.locker.Obtain(ctx, lock.UserKey(userID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer userLock.Release(ctx)

	if err := s.userRepo.ResetStreakReward(ctx, userID); err != nil {
		return s.mapError(err)
	}
	s.log.Info("streak reward reset", zap.String("user_id", userID))
	return nil
}

func (s *AwardService) mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrExternalProcessed):
		return ErrAlreadyProcessed
	case errors.Is(err, repository.ErrBalanceNotEnough):
		return ErrInsufficientPoints
	default:
		return err
	}
}
