// Package pubsub wraps the Pub/Sub v2 client with project-relative naming
// and a readiness check over the configured topic and subscriptions.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type collection string

const (
	topics        collection = "topics"
	subscriptions collection = "subscriptions"
)

var errNotInitialized = errors.New("pubsub client not initialized")

type Client struct {
	api     *gcppubsub.Client
	project string
	topics  []string
	subs    []string
}

// NewClient connects and fails unless the domain topic and every configured
// subscription already exist. Provisioning them is left to infrastructure.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	api, err := gcppubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		api:     api,
		project: project,
		topics:  nonBlank(cfg.DomainTopic),
		subs:    nonBlank(cfg.NotificationSubscription, cfg.AnalyticsSubscription),
	}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"topics": c.topics, "subscriptions": c.subs}), "pubsub client initialized")
	}
	return c, nil
}

// Ping looks up every configured resource and reports all that are missing.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errNotInitialized
	}
	if len(c.topics)+len(c.subs) == 0 {
		return errors.New("no pubsub topic or subscription configured")
	}
	var err error
	for _, name := range c.topics {
		_, getErr := c.api.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: c.resource(topics, name),
		})
		err = multierr.Append(err, lookupError(topics, name, getErr))
	}
	for _, name := range c.subs {
		_, getErr := c.api.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resource(subscriptions, name),
		})
		err = multierr.Append(err, lookupError(subscriptions, name, getErr))
	}
	return err
}

// Subscriber returns a handle for a subscription ID or full resource name,
// or nil when name is blank.
func (c *Client) Subscriber(name string) *gcppubsub.Subscriber {
	if c == nil || c.api == nil {
		return nil
	}
	if full := c.resource(subscriptions, name); full != "" {
		return c.api.Subscriber(full)
	}
	return nil
}

// Publisher returns a handle for a topic ID or full resource name, or nil
// when name is blank.
func (c *Client) Publisher(name string) *gcppubsub.Publisher {
	if c == nil || c.api == nil {
		return nil
	}
	if full := c.resource(topics, name); full != "" {
		return c.api.Publisher(full)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// resource qualifies a short name with the client's project. Names that
// are already qualified for the same collection pass through.
func (c *Client) resource(kind collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	return "projects/" + c.project + "/" + string(kind) + "/" + name
}

func lookupError(kind collection, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", kind, name, err)
	}
}

func nonBlank(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
