package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"hivisloyalty/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInboxService(f *fixture) *NotificationService {
	svc := NewNotificationService(f.db, NewOutboxNotifier(f.db, "loyalty.notifications", zap.NewNop()), zap.NewNop())
	svc.now = f.clock.Now
	return svc
}

func TestSendBulkToEveryUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newInboxService(f)
	a := f.createUser(t, "bulk-a@example.com", "")
	b := f.createUser(t, "bulk-b@example.com", "")

	res, err := svc.SendBulk(ctx, &BulkNotificationRequest{Title: " Site closed ", Message: "Depot shut Friday"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Sent)
	require.Empty(t, res.Unknown)

	for _, id := range []string{a.ID, b.ID} {
		inbox, err := svc.ListNotifications(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(1), inbox.Unread)
		require.Len(t, inbox.Notifications, 1)
		n := inbox.Notifications[0]
		require.Equal(t, "Site closed", n.Title)
		require.Equal(t, "Depot shut Friday", n.Message)
		require.Equal(t, model.NotificationAnnouncement, n.Kind)
		require.False(t, n.IsRead)
	}
}

func TestSendBulkToListedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newInboxService(f)
	a := f.createUser(t, "listed-a@example.com", "")
	b := f.createUser(t, "listed-b@example.com", "")

	res, err := svc.SendBulk(ctx, &BulkNotificationRequest{
		UserIDs: []string{a.ID, "ghost", a.ID},
		Title:   "Double points",
		Message: "This weekend only",
		Kind:    model.NotificationPointsEarned,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)
	require.Equal(t, []string{"ghost"}, res.Unknown)

	inbox, err := svc.ListNotifications(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, inbox.Notifications)

	_, err = svc.SendBulk(ctx, &BulkNotificationRequest{Message: "no title"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "title")
}

func TestMarkNotificationRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newInboxService(f)
	u := f.createUser(t, "reader@example.com", "")
	other := f.createUser(t, "other-reader@example.com", "")

	_, err := svc.SendBulk(ctx, &BulkNotificationRequest{UserIDs: []string{u.ID, other.ID}, Title: "t", Message: "m"})
	require.NoError(t, err)
	_, err = svc.SendBulk(ctx, &BulkNotificationRequest{UserIDs: []string{u.ID}, Title: "t2", Message: "m2"})
	require.NoError(t, err)

	inbox, err := svc.ListNotifications(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), inbox.Unread)
	newest := inbox.Notifications[0]
	require.Equal(t, "t2", newest.Title)

	read, err := svc.MarkNotificationRead(ctx, u.ID, newest.ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	first := *read.ReadAt

	f.clock.Set(f.clock.Now().Add(time.Hour))
	again, err := svc.MarkNotificationRead(ctx, u.ID, newest.ID)
	require.NoError(t, err)
	require.True(t, first.Equal(*again.ReadAt))

	inbox, err = svc.ListNotifications(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), inbox.Unread)
	require.True(t, inbox.Notifications[0].IsRead)
	require.False(t, inbox.Notifications[1].IsRead)

	theirs, err := svc.ListNotifications(ctx, other.ID)
	require.NoError(t, err)
	_, err = svc.MarkNotificationRead(ctx, u.ID, theirs.Notifications[0].ID)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	_, err = svc.ListNotifications(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}
