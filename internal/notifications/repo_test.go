package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
)

func TestRepositoryScopesInboxes(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	alice, bob := uuid.New(), uuid.New()
	seed := []models.Notification{
		{UserID: &alice, Audience: enums.NotificationAudienceUser, Type: enums.NotificationSystem, Title: "a1", Message: "m"},
		{UserID: &alice, Audience: enums.NotificationAudienceUser, Type: enums.NotificationSystem, Title: "a2", Message: "m"},
		{UserID: &bob, Audience: enums.NotificationAudienceUser, Type: enums.NotificationSystem, Title: "b1", Message: "m"},
		{Audience: enums.NotificationAudienceAdmin, Type: enums.NotificationPaymentReceived, Title: "admin", Message: "m"},
	}
	for i := range seed {
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	rows, err := repo.List(ctx, listNotificationsParams{Inbox: Inbox{UserID: alice}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	admin, err := repo.List(ctx, listNotificationsParams{Inbox: Inbox{Admin: true}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, admin, 1)
	require.Equal(t, "admin", admin[0].Title)

	now := time.Now().UTC()
	mark, err := repo.MarkRead(ctx, Inbox{UserID: bob}, seed[0].ID, now)
	require.NoError(t, err)
	require.False(t, mark.Found)

	mark, err = repo.MarkRead(ctx, Inbox{UserID: alice}, seed[0].ID, now)
	require.NoError(t, err)
	require.True(t, mark.Updated)

	mark, err = repo.MarkRead(ctx, Inbox{UserID: alice}, seed[0].ID, now)
	require.NoError(t, err)
	require.True(t, mark.Found)
	require.False(t, mark.Updated)

	unread, err := repo.CountUnread(ctx, Inbox{UserID: alice})
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	n, err := repo.MarkAllRead(ctx, Inbox{UserID: alice}, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	deleted, err := repo.DeleteOlderThan(ctx, nil, now.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}
