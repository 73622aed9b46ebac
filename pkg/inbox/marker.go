// Package inbox is the receiving side of the outbox: it decodes published
// events and runs each one at most once per consumer.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the subset of the redis client markers need.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Marker records keys as taken for a TTL. A key is claimed by whoever sets
// it first; releasing it lets a redelivery try again.
type Marker struct {
	store Store
	ttl   time.Duration
	scope string
}

func NewMarker(store Store, ttl time.Duration, scope string) (*Marker, error) {
	scope = strings.TrimSpace(scope)
	switch {
	case store == nil:
		return nil, errors.New("inbox: store is required")
	case ttl < 0:
		return nil, errors.New("inbox: ttl must not be negative")
	case scope == "":
		return nil, errors.New("inbox: scope is required")
	}
	return &Marker{store: store, ttl: ttl, scope: scope}, nil
}

// Claim reports true when the caller now owns key, false when it was
// already taken.
func (m *Marker) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("inbox: empty key")
	}
	ok, err := m.store.SetNX(ctx, m.store.IdempotencyKey(m.scope, key), "1", m.ttl)
	if err != nil {
		return false, fmt.Errorf("inbox: claim %s: %w", key, err)
	}
	return ok, nil
}

func (m *Marker) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("inbox: empty key")
	}
	return m.store.Del(ctx, m.store.IdempotencyKey(m.scope, key))
}
