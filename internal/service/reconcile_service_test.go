package service

import (
	"context"
	"testing"

	"hivisloyalty/internal/model"

	"github.com/stretchr/testify/require"
)

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "drift@example.com", "")
	f.purchase(t, u.ID, 20)

	res, err := f.reconcile.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, res.Repaired)

	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", u.ID).Update("total_points", 999).Error)

	res, err = f.reconcile.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, res.Repaired)
	require.Equal(t, int64(999), res.Cached)
	require.Equal(t, int64(20), res.LedgerSum)
	f.requireLedgerBalanced(t, u.ID)

	_, err = f.reconcile.Reconcile(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createUser(t, "all-a@example.com", "")
	b := f.createUser(t, "all-b@example.com", "")
	f.purchase(t, a.ID, 10)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", b.ID).Update("total_points", 5).Error)

	summary, err := f.reconcile.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Checked)
	require.Len(t, summary.Repaired, 1)
	require.Equal(t, b.ID, summary.Repaired[0].UserID)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "stats@example.com", "")
	_, err := f.users.LinkCard(ctx, u.ID, "1234")
	require.NoError(t, err)

	_, err = f.intake.Ingest(ctx, model.SourceWebhook, raw("S-1", "1234", "Large Coke 600ml", 500))
	require.NoError(t, err)
	_, err = f.intake.Ingest(ctx, model.SourceCSV, raw("S-2", "", "Water", 200))
	require.NoError(t, err)
	_, err = f.redemption.Redeem(ctx, u.ID, f.reward(t, "Mint", 5).ID)
	require.NoError(t, err)

	stats, err := f.reconcile.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalUsers)
	require.Equal(t, int64(2), stats.LedgerEntries)
	require.Equal(t, int64(20), stats.PointsEarned)
	require.Equal(t, int64(5), stats.PointsRedeemed)
	require.Equal(t, int64(1), stats.UnprocessedExternal)
	require.Equal(t, int64(1), stats.ExternalBySource[model.SourceWebhook])
	require.Equal(t, int64(1), stats.ExternalBySource[model.SourceCSV])
}
