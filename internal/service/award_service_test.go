package service

import (
	"context"
	"sync"
	"testing"

	"hivisloyalty/internal/model"

	"github.com/stretchr/testify/require"
)

func TestAwardPromotesToTradie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "a@example.com", "Parramatta")

	_, err := f.award.GrantBonus(ctx, u.ID, 490, "Opening balance", model.NotificationPointsEarned)
	require.NoError(t, err)
	require.Equal(t, model.TierApprentice, f.reload(t, u.ID).LoyaltyTier)

	r := f.purchase(t, u.ID, 15)
	require.Equal(t, int64(505), r.TotalPoints)
	require.True(t, r.TierUpgraded)
	require.Equal(t, model.TierApprentice, r.PreviousTier)
	require.Equal(t, model.TierTradie, r.Tier)
	require.Equal(t, 1, f.notifier.Count(u.ID, model.NotificationTierUpgrade))

	f.purchase(t, u.ID, 15)
	require.Equal(t, 1, f.notifier.Count(u.ID, model.NotificationTierUpgrade))

	got := f.reload(t, u.ID)
	require.Equal(t, int64(520), got.TotalPoints)
	require.Equal(t, model.TierTradie, got.LoyaltyTier)
	f.requireLedgerBalanced(t, u.ID)
}

func TestAwardPunchCardWraparound(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "punch@example.com", "Blacktown")

	var last *AwardResult
	for i := 0; i < 10; i++ {
		last = f.purchase(t, u.ID, 10)
	}
	require.True(t, last.PunchCardCompleted)
	require.Equal(t, 0, last.PunchCardProgress)

	got := f.reload(t, u.ID)
	require.Equal(t, 0, got.PunchCardProgress)
	require.Equal(t, int64(10*10+100), got.TotalPoints)

	bonuses := f.entries(t, u.ID, model.TransactionTypeBonus)
	var punch int
	for _, b := range bonuses {
		if b.Description == punchCardDescription {
			punch++
			require.Equal(t, int64(100), b.Points)
		}
	}
	require.Equal(t, 1, punch)
	require.Len(t, f.entries(t, u.ID, model.TransactionTypePurchase), 10)
	require.Equal(t, 1, f.notifier.Count(u.ID, model.NotificationPunchCard))
	f.requireLedgerBalanced(t, u.ID)
}

func TestAwardPunchBonusCanPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "bonus@example.com", "")

	_, err := f.award.GrantBonus(ctx, u.ID, 400, "Opening balance", model.NotificationPointsEarned)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		f.purchase(t, u.ID, 1)
	}
	require.Equal(t, model.TierApprentice, f.reload(t, u.ID).LoyaltyTier)

	r := f.purchase(t, u.ID, 1)
	require.True(t, r.PunchCardCompleted)
	require.Equal(t, int64(510), r.TotalPoints)
	require.Equal(t, model.TierTradie, r.Tier)
}

func TestAwardStreakReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "streak@example.com", "Penrith")

	r := f.purchase(t, u.ID, 10)
	require.Equal(t, 1, r.CurrentStreak)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 1, r.CurrentStreak, "same day purchases do not extend the streak")

	f.clock.AddDays(1)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 2, r.CurrentStreak)
	require.Empty(t, r.StreakRewardCode)

	f.clock.AddDays(1)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 3, r.CurrentStreak)
	require.NotEmpty(t, r.StreakRewardCode)
	require.Equal(t, 1, f.notifier.Count(u.ID, model.NotificationStreakReward))

	reward, err := f.redemption.ValidateAndClaim(ctx, r.StreakRewardCode)
	require.NoError(t, err)
	require.Equal(t, streakRewardDescription, reward.Description)

	f.clock.AddDays(1)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 4, r.CurrentStreak)
	require.Empty(t, r.StreakRewardCode)
	require.True(t, f.reload(t, u.ID).StreakRewardEarned)

	var codes int64
	require.NoError(t, f.db.Model(&model.Transaction{}).
		Where("user_id = ? AND redemption_code IS NOT NULL", u.ID).
		Count(&codes).Error)
	require.Equal(t, int64(1), codes)
	f.requireLedgerBalanced(t, u.ID)
}

func TestAwardStreakResetsOnGap(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "gap@example.com", "")

	f.purchase(t, u.ID, 10)
	f.clock.AddDays(1)
	f.purchase(t, u.ID, 10)
	f.clock.AddDays(1)
	r := f.purchase(t, u.ID, 10)
	require.Equal(t, 3, r.CurrentStreak)
	require.NotEmpty(t, r.StreakRewardCode)

	f.clock.AddDays(3)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 1, r.CurrentStreak)
	require.False(t, f.reload(t, u.ID).StreakRewardEarned)

	f.clock.AddDays(1)
	f.purchase(t, u.ID, 10)
	f.clock.AddDays(1)
	r = f.purchase(t, u.ID, 10)
	require.Equal(t, 3, r.CurrentStreak)
	require.NotEmpty(t, r.StreakRewardCode, "a new cycle earns the reward again")
}

func TestResetStreakReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "reset@example.com", "")

	for i := 0; i < 3; i++ {
		f.purchase(t, u.ID, 10)
		f.clock.AddDays(1)
	}
	require.True(t, f.reload(t, u.ID).StreakRewardEarned)

	require.NoError(t, f.award.ResetStreakReward(ctx, u.ID))
	r := f.purchase(t, u.ID, 10)
	require.Equal(t, 4, r.CurrentStreak)
	require.NotEmpty(t, r.StreakRewardCode)

	require.ErrorIs(t, f.award.ResetStreakReward(ctx, "missing"), ErrUserNotFound)
}

func TestTierNeverDowngrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "tier@example.com", "")

	_, err := f.award.GrantBonus(ctx, u.ID, 600, "Opening balance", model.NotificationPointsEarned)
	require.NoError(t, err)
	require.Equal(t, model.TierTradie, f.reload(t, u.ID).LoyaltyTier)

	reward, err := f.redemption.CreateReward(ctx, &CreateRewardRequest{
		Name: "Free Large Drink", PointsCost: 300, Category: model.RewardCategoryDrink,
	})
	require.NoError(t, err)
	_, err = f.redemption.Redeem(ctx, u.ID, reward.ID)
	require.NoError(t, err)

	got := f.reload(t, u.ID)
	require.Equal(t, int64(300), got.TotalPoints)
	require.Equal(t, model.TierTradie, got.LoyaltyTier)

	r := f.purchase(t, u.ID, 10)
	require.Equal(t, model.TierTradie, r.Tier)
	require.False(t, r.TierUpgraded)
	f.requireLedgerBalanced(t, u.ID)
}

func TestConcurrentAwardsLoseNoPoints(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "busy@example.com", "Parramatta")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.award.Award(context.Background(), &AwardRequest{
				UserID: u.ID, Points: 10, Description: "Purchase: concurrent",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := f.reload(t, u.ID)
	require.Equal(t, int64(n*10+2*100), got.TotalPoints)
	require.Equal(t, 0, got.PunchCardProgress)
	f.requireLedgerBalanced(t, u.ID)
}

func TestAwardValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.award.Award(ctx, &AwardRequest{UserID: "nobody", Points: 10, Description: "x"})
	require.ErrorIs(t, err, ErrUserNotFound)

	u := f.createUser(t, "neg@example.com", "")
	_, err = f.award.Award(ctx, &AwardRequest{UserID: u.ID, Points: -1, Description: "x"})
	require.ErrorIs(t, err, ErrInvalidPoints)
}

func TestAwardAccumulatesMonthlyPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "monthly@example.com", "Parramatta")

	r := f.purchase(t, u.ID, 20)
	require.NotZero(t, r.SeasonID)
	f.purchase(t, u.ID, 15)
	_, err := f.award.GrantBonus(ctx, u.ID, 50, "Referral bonus", model.NotificationReferral)
	require.NoError(t, err)

	board, err := f.seasons.GetMonthlyLeaderboard(ctx, r.SeasonID)
	require.NoError(t, err)
	require.Len(t, board.Suburbs, 1)
	require.Equal(t, int64(35), board.Suburbs[0].Entries[0].Points)
	require.Equal(t, 1, board.Suburbs[0].Entries[0].Rank)
}
