package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, db *gorm.DB, id, suburb string) *model.User {
	t.Helper()
	user := &model.User{
		ID:           id,
		Email:        id + "@example.com",
		FirstName:    "Test",
		LastName:     "User",
		Suburb:       suburb,
		LoyaltyTier:  model.TierApprentice,
		ReferralCode: id[len(id)-6:],
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func TestAppendMovesBalanceWithLedger(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)
	users := NewUserRepository(db)
	seedUser(t, db, "user-0001", "Parramatta")

	for _, pts := range []int64{20, 15, -10} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return repo.Append(ctx, tx, &model.Transaction{
				UserID:      "user-0001",
				Type:        model.TransactionTypePurchase,
				Points:      pts,
				Description: "test",
			})
		})
		require.NoError(t, err)
	}

	user, err := users.GetByID(ctx, nil, "user-0001")
	require.NoError(t, err)
	require.Equal(t, int64(25), user.TotalPoints)

	sum, err := repo.SumPoints(ctx, nil, "user-0001")
	require.NoError(t, err)
	require.Equal(t, user.TotalPoints, sum)

	entries, total, err := repo.ListByUserID(ctx, "user-0001", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Equal(t, int64(35), entries[0].BalanceBefore)
	require.Equal(t, int64(25), entries[0].BalanceAfter)
	require.NotEmpty(t, entries[0].TransactionNo)
}

func TestAppendClipsDescription(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)
	seedUser(t, db, "user-0009", "")

	entry := &model.Transaction{
		UserID:      "user-0009",
		Type:        model.TransactionTypeBonus,
		Points:      5,
		Description: "Purchase: " + strings.Repeat("é", 300),
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.Append(ctx, tx, entry)
	}))

	entries, _, err := repo.ListByUserID(ctx, "user-0009", 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, []rune(entries[0].Description), model.MaxDescriptionLen)
	require.True(t, strings.HasPrefix(entries[0].Description, "Purchase: é"))
}

func TestAppendRefusesOverdraft(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)
	seedUser(t, db, "user-0002", "")

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Append(ctx, tx, &model.Transaction{
			UserID:      "user-0002",
			Type:        model.TransactionTypeRedemption,
			Points:      -1,
			Description: "too much",
		})
	})
	require.ErrorIs(t, err, ErrBalanceNotEnough)

	_, total, err := repo.ListByUserID(ctx, "user-0002", 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestAppendUnknownUser(t *testing.T) {
	db := testutil.NewTestDB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		return NewTransactionRepository(db).Append(context.Background(), tx, &model.Transaction{
			UserID: "ghost", Type: model.TransactionTypeBonus, Points: 5, Description: "x",
		})
	})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMarkRedeemedOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewTransactionRepository(db)
	seedUser(t, db, "user-0003", "")

	code := "HIVIS-TEST-0001"
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.Append(ctx, tx, &model.Transaction{
			UserID: "user-0003", Type: model.TransactionTypeBonus, Points: 0,
			Description: "streak", RedemptionCode: &code,
		})
	}))

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.MarkRedeemed(ctx, code, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, claimed int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case err == ErrAlreadyRedeemed:
			claimed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 3, claimed)

	_, err := repo.MarkRedeemed(ctx, "HIVIS-NOPE", time.Now())
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestExternalCreateDuplicate(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewExternalTransactionRepository(db)

	first, err := repo.Create(ctx, &model.ExternalTransaction{
		ExternalID: "X1", Source: model.SourceAPI, MachineID: "M1",
		Amount: 500, ProductName: "Large Coke 600ml", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	again, err := repo.Create(ctx, &model.ExternalTransaction{
		ExternalID: "X1", Source: model.SourceWebhook, MachineID: "M2",
		Amount: 100, ProductName: "Other", Timestamp: time.Now(),
	})
	require.ErrorIs(t, err, ErrDuplicateExternalID)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "M1", again.MachineID)
}

func TestExternalMarkProcessedOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewExternalTransactionRepository(db)

	ext, err := repo.Create(ctx, &model.ExternalTransaction{
		ExternalID: "X2", Source: model.SourceAPI, MachineID: "M1",
		Amount: 100, ProductName: "Chips", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.MarkProcessed(ctx, db, ext.ID, "user-1", time.Now()))
	require.ErrorIs(t, repo.MarkProcessed(ctx, db, ext.ID, "user-2", time.Now()), ErrExternalProcessed)

	got, err := repo.GetByID(ctx, nil, ext.ID)
	require.NoError(t, err)
	require.True(t, got.IsProcessed)
	require.Equal(t, "user-1", *got.MatchedUserID)

	list, total, err := repo.ListUnprocessed(ctx, 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)
}

func TestSeasonActivateKeepsOneActive(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSeasonRepository(db)

	sep := model.NewSeasonFor(time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC))
	oct := model.NewSeasonFor(time.Date(2026, time.October, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return repo.Activate(ctx, tx, sep) }))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return repo.Activate(ctx, tx, oct) }))

	active, err := repo.GetActive(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "October 2026", active.Name)

	var n int64
	require.NoError(t, db.Model(&model.Season{}).Where("is_active = ?", true).Count(&n).Error)
	require.Equal(t, int64(1), n)

	again := model.NewSeasonFor(time.Date(2026, time.September, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return repo.Activate(ctx, tx, again) }))
	require.Equal(t, sep.ID, again.ID)

	seasons, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, seasons, 2)
}

func TestAddMonthlyPointsUpserts(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewSeasonRepository(db)

	for _, delta := range []int64{20, 15} {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := repo.AddMonthlyPoints(ctx, tx, "user-1", 7, "Parramatta", delta)
			return err
		})
		require.NoError(t, err)
	}

	rows, err := repo.ListBySuburb(ctx, nil, 7, "Parramatta")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(35), rows[0].Points)
}

func TestUserCardAndReferral(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	seedUser(t, db, "user-a0001", "")
	seedUser(t, db, "user-b0001", "")

	card := "4111"
	require.NoError(t, repo.SetCardNumber(ctx, "user-a0001", &card))
	require.ErrorIs(t, repo.SetCardNumber(ctx, "user-b0001", &card), ErrCardNumberTaken)

	got, err := repo.GetByCardNumber(ctx, card)
	require.NoError(t, err)
	require.Equal(t, "user-a0001", got.ID)

	_, err = repo.GetByCardNumber(ctx, "9999")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, repo.SetReferredBy(ctx, db, "user-b0001", "user-a0001"))
	require.ErrorIs(t, repo.SetReferredBy(ctx, db, "user-b0001", "user-a0001"), ErrReferralAlreadyApplied)
}
