package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hivisloyalty/internal/config"
	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type sent struct {
	UserID string
	Kind   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Notify(_ context.Context, userID, _, _, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{UserID: userID, Kind: kind})
}

func (n *recordingNotifier) Count(userID, kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.Kind == kind {
			c++
		}
	}
	return c
}

type fixture struct {
	db         *gorm.DB
	rules      Rules
	clock      *fakeClock
	notifier   *recordingNotifier
	seasons    *SeasonService
	award      *AwardService
	matcher    *MatcherService
	intake     *IntakeService
	redemption *RedemptionService
	users      *UserService
	referral   *ReferralService
	scan       *ScanService
	reconcile  *ReconcileService
	machines   *MachineService
}

func testRules(t *testing.T) Rules {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	rules := NewRules(cfg)
	rules.Location = time.UTC
	return rules
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := zap.NewNop()
	locker := lock.NewLocalLocker()
	rules := testRules(t)
	clock := &fakeClock{now: time.Date(2026, time.October, 5, 10, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}

	f := &fixture{db: db, rules: rules, clock: clock, notifier: notifier}
	f.seasons = NewSeasonService(db, locker, rules, log).WithClock(clock.Now)
	f.award = NewAwardService(db, locker, rules, f.seasons, notifier, log).WithClock(clock.Now)
	f.matcher = NewMatcherService(db, rules, f.award, log)
	f.intake = NewIntakeService(db, f.matcher, log)
	f.redemption = NewRedemptionService(db, locker, rules, notifier, log)
	f.redemption.now = clock.Now
	f.users = NewUserService(db, log)
	f.referral = NewReferralService(db, locker, rules, f.award, notifier, log)
	f.scan = NewScanService(db, rules, f.award)
	f.reconcile = NewReconcileService(db, locker, rules, log)
	f.reconcile.now = clock.Now
	f.machines = NewMachineService(db, log)
	f.machines.now = clock.Now
	return f
}

func (f *fixture) createUser(t *testing.T, email, suburb string) *model.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), &CreateUserRequest{
		Email:     email,
		FirstName: "test",
		LastName:  "user",
		Suburb:    suburb,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) registerMachine(t *testing.T, id string) *model.Machine {
	t.Helper()
	m, err := f.machines.RegisterMachine(context.Background(), &RegisterMachineRequest{
		ID:       id,
		Name:     "Machine " + id,
		Location: "Site office",
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.users.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) purchase(t *testing.T, userID string, points int64) *AwardResult {
	t.Helper()
	r, err := f.award.Award(context.Background(), &AwardRequest{
		UserID:      userID,
		Points:      points,
		Description: "Purchase: test",
	})
	require.NoError(t, err)
	return r
}

// requireLedgerBalanced asserts the cached balance equals the ledger sum.
func (f *fixture) requireLedgerBalanced(t *testing.T, userID string) {
	t.Helper()
	var sum int64
	require.NoError(t, f.db.Model(&model.Transaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error)
	require.Equal(t, sum, f.reload(t, userID).TotalPoints)
}

func (f *fixture) entries(t *testing.T, userID, typ string) []*model.Transaction {
	t.Helper()
	var out []*model.Transaction
	require.NoError(t, f.db.Where("user_id = ? AND type = ?", userID, typ).Order("id ASC").Find(&out).Error)
	return out
}
