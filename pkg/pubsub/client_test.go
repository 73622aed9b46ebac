package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNonBlankTrims(t *testing.T) {
	require.Equal(t, []string{"notifications"}, nonBlank(" notifications ", "", "  "))
	require.Empty(t, nonBlank())
}

func TestResourceNames(t *testing.T) {
	c := &Client{project: "simcheck-prod"}

	require.Equal(t, "projects/simcheck-prod/subscriptions/notifications", c.resource(subscriptions, "notifications"))
	full := "projects/other/subscriptions/analytics"
	require.Equal(t, full, c.resource(subscriptions, full))
	require.Equal(t, "projects/simcheck-prod/topics/simcheck-domain-events", c.resource(topics, "simcheck-domain-events"))
	require.Equal(t, "projects/simcheck-prod/topics/projects/other/subscriptions/x", c.resource(topics, "projects/other/subscriptions/x"))
	require.Empty(t, c.resource(topics, "  "))
}

func TestLookupError(t *testing.T) {
	require.NoError(t, lookupError(topics, "t", nil))

	err := lookupError(subscriptions, "analytics", status.Error(codes.NotFound, "gone"))
	require.EqualError(t, err, `pubsub subscriptions "analytics" does not exist`)

	cause := errors.New("deadline")
	require.ErrorIs(t, lookupError(topics, "t", cause), cause)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Subscriber("x"))
	require.Nil(t, c.Publisher("x"))
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
}
