package push

import (
	"context"
	"io"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
)

// Transport delivers one encrypted payload and reports the push service status.
type Transport interface {
	Send(ctx context.Context, payload []byte, sub models.PushSubscription) (int, error)
}

type vapidTransport struct {
	opts webpush.Options
}

// NewVAPIDTransport signs deliveries with the configured VAPID key pair.
func NewVAPIDTransport(cfg config.PushConfig) Transport {
	return &vapidTransport{opts: webpush.Options{
		Subscriber:      cfg.Subscriber,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTL:             cfg.TTLSeconds,
		Urgency:         webpush.UrgencyNormal,
	}}
}

func (t *vapidTransport) Send(ctx context.Context, payload []byte, sub models.PushSubscription) (int, error) {
	opts := t.opts
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
