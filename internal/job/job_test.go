package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"
	"hivisloyalty/internal/service"
	"hivisloyalty/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (p *fakePublisher) Publish(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, key)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func queue(t *testing.T, repo *repository.OutboxRepository, key string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), nil, &model.OutboxMessage{
		MessageKey: key,
		UserID:     "u1",
		Kind:       model.NotificationPointsEarned,
		Topic:      "loyalty.notifications",
		Payload:    `{"user_id":"u1"}`,
		Status:     model.OutboxStatusPending,
	}))
}

func TestOutboxSenderPublishes(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewOutboxRepository(db)
	queue(t, repo, "MSG1")
	queue(t, repo, "MSG2")

	pub := &fakePublisher{}
	sender := NewOutboxSender(db, pub, 3, zap.NewNop())
	sender.processPendingMessages(context.Background())

	require.Equal(t, []string{"MSG1", "MSG2"}, pub.sent)
	pending, err := repo.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestOutboxSenderParksAfterMaxRetry(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewOutboxRepository(db)
	queue(t, repo, "MSG1")

	sender := NewOutboxSender(db, &fakePublisher{fail: true}, 3, zap.NewNop())
	for i := 0; i < 3; i++ {
		sender.processPendingMessages(ctx)
	}

	var msg model.OutboxMessage
	require.NoError(t, db.Where("message_key = ?", "MSG1").First(&msg).Error)
	require.Equal(t, model.OutboxStatusFailed, msg.Status)
	require.Equal(t, 3, msg.RetryCount)

	sender.processPendingMessages(ctx)
	require.NoError(t, db.Where("message_key = ?", "MSG1").First(&msg).Error)
	require.Equal(t, 3, msg.RetryCount)
}

type fakeFetcher struct {
	mu    sync.Mutex
	err   error
	raws  []*service.RawTransaction
	calls int
	since []time.Time
}

func (f *fakeFetcher) FetchTransactions(_ context.Context, since time.Time) ([]*service.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.since = append(f.since, since)
	return f.raws, f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIngester struct {
	batches int32
}

func (i *fakeIngester) IngestBatch(_ context.Context, source string, raws []*service.RawTransaction) *service.BatchResult {
	atomic.AddInt32(&i.batches, 1)
	return &service.BatchResult{Received: len(raws), Created: len(raws), Matched: 1}
}

func TestSyncPollerRunOnce(t *testing.T) {
	amount := int64(100)
	fetcher := &fakeFetcher{raws: []*service.RawTransaction{
		{ExternalID: "P1", MachineID: "M1", Amount: &amount, ProductName: "Water", Timestamp: time.Now()},
		{ExternalID: "P2", MachineID: "M1", Amount: &amount, ProductName: "Water", Timestamp: time.Now()},
	}}
	ingester := &fakeIngester{}
	poller := NewSyncPoller(fetcher, ingester, time.Minute, 24*time.Hour, zap.NewNop())
	now := time.Date(2026, time.October, 5, 12, 0, 0, 0, time.UTC)
	poller.now = func() time.Time { return now }

	poller.RunOnce(context.Background())
	status := poller.Status()
	require.Equal(t, 1, status.Runs)
	require.Equal(t, 2, status.Fetched)
	require.Equal(t, 2, status.Created)
	require.Equal(t, 1, status.Matched)
	require.Empty(t, status.LastError)
	require.Equal(t, now.Add(-24*time.Hour), fetcher.since[0])

	now = now.Add(time.Minute)
	poller.RunOnce(context.Background())
	require.Equal(t, now.Add(-2*time.Minute), fetcher.since[1], "next window starts just before the last success")

	fetcher.err = errors.New("timeout")
	poller.RunOnce(context.Background())
	status = poller.Status()
	require.Equal(t, "timeout", status.LastError)
	require.Equal(t, 3, status.Runs)
	require.Equal(t, int32(2), atomic.LoadInt32(&ingester.batches))
}

func TestSyncPollerStartStop(t *testing.T) {
	fetcher := &fakeFetcher{}
	poller := NewSyncPoller(fetcher, &fakeIngester{}, 10*time.Millisecond, time.Hour, zap.NewNop())

	require.ErrorIs(t, poller.Stop(), ErrPollerNotRunning)
	require.NoError(t, poller.Start(context.Background()))
	require.ErrorIs(t, poller.Start(context.Background()), ErrPollerRunning)
	require.True(t, poller.Status().Running)

	require.Eventually(t, func() bool { return fetcher.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, poller.Stop())
	require.False(t, poller.Status().Running)

	calls := fetcher.Calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, fetcher.Calls())

	require.NoError(t, poller.Start(context.Background()))
	require.NoError(t, poller.Stop())
}

func TestSyncPollerParentCancelClearsState(t *testing.T) {
	fetcher := &fakeFetcher{}
	poller := NewSyncPoller(fetcher, &fakeIngester{}, 10*time.Millisecond, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, poller.Start(ctx))
	require.Eventually(t, func() bool { return fetcher.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	require.Eventually(t, func() bool { return !poller.Status().Running }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, poller.Stop(), ErrPollerNotRunning)

	calls := fetcher.Calls()
	require.NoError(t, poller.Start(context.Background()))
	require.Eventually(t, func() bool { return fetcher.Calls() > calls }, time.Second, 5*time.Millisecond)
	require.NoError(t, poller.Stop())
}

type fakeSeasons struct{ calls int32 }

func (f *fakeSeasons) EnsureCurrentSeason(context.Context) (*model.Season, error) {
	atomic.AddInt32(&f.calls, 1)
	return &model.Season{Name: "October 2026"}, nil
}

func TestSeasonRolloverJob(t *testing.T) {
	seasons := &fakeSeasons{}
	j := NewSeasonRolloverJob(seasons, 5*time.Millisecond, zap.NewNop())
	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&seasons.calls) >= 2 }, time.Second, time.Millisecond)
	j.Stop()
	<-done
}

type fakeReconciler struct{ calls int32 }

func (f *fakeReconciler) ReconcileAll(context.Context) (*service.ReconcileSummary, error) {
	atomic.AddInt32(&f.calls, 1)
	return &service.ReconcileSummary{Checked: 3}, nil
}

func TestReconcileJobStopsWithContext(t *testing.T) {
	r := &fakeReconciler{}
	j := NewReconcileJob(r, 5*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) >= 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
