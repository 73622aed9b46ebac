package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type repository interface {
	Upsert(ctx context.Context, sub *models.PushSubscription) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error)
	DeleteForUser(ctx context.Context, userID uuid.UUID, endpoint string) (bool, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type recorder interface {
	Push(result string)
}

// SubscriptionInput mirrors the browser PushSubscription JSON.
type SubscriptionInput struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

// Message is the payload rendered by the service worker.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Result summarizes one fan-out to a user's browsers.
type Result struct {
	Sent    int
	Removed int
	Failed  int
}

type Service interface {
	PublicKey() string
	Register(ctx context.Context, userID uuid.UUID, input SubscriptionInput) error
	Unregister(ctx context.Context, userID uuid.UUID, endpoint string) error
	SendToUser(ctx context.Context, userID uuid.UUID, msg Message) (Result, error)
}

type ServiceParams struct {
	Repo      repository
	Transport Transport
	PublicKey string
	Metrics   recorder
	Logger    *logger.Logger
}

type service struct {
	repo      repository
	transport Transport
	publicKey string
	metrics   recorder
	logg      *logger.Logger
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "push repository required")
	}
	if p.Transport == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "push transport required")
	}
	return &service{repo: p.Repo, transport: p.Transport, publicKey: p.PublicKey, metrics: p.Metrics, logg: p.Logger}, nil
}

func (s *service) PublicKey() string { return s.publicKey }

func (s *service) Register(ctx context.Context, userID uuid.UUID, input SubscriptionInput) error {
	endpoint := strings.TrimSpace(input.Endpoint)
	if userID == uuid.Nil || endpoint == "" || input.Keys.P256dh == "" || input.Keys.Auth == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint and keys are required")
	}
	sub := &models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   input.Keys.P256dh,
		Auth:     input.Keys.Auth,
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save push subscription")
	}
	return nil
}

func (s *service) Unregister(ctx context.Context, userID uuid.UUID, endpoint string) error {
	removed, err := s.repo.DeleteForUser(ctx, userID, strings.TrimSpace(endpoint))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete push subscription")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "push subscription not found")
	}
	return nil
}

// SendToUser pushes msg to every browser of userID. Endpoints the push
// service reports as gone are deleted. Per-endpoint failures are combined
// into the returned error after every endpoint was tried.
func (s *service) SendToUser(ctx context.Context, userID uuid.UUID, msg Message) (Result, error) {
	var result Result
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list push subscriptions")
	}
	if len(subs) == 0 {
		return result, nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return result, err
	}

	var errs error
	for _, sub := range subs {
		status, sendErr := s.transport.Send(ctx, payload, sub)
		switch {
		case sendErr != nil:
			result.Failed++
			errs = multierr.Append(errs, sendErr)
			s.record("failed")
		case status == http.StatusNotFound || status == http.StatusGone:
			if delErr := s.repo.DeleteByEndpoint(ctx, sub.Endpoint); delErr != nil {
				errs = multierr.Append(errs, delErr)
			}
			result.Removed++
			s.record("expired")
		case status >= 200 && status < 300:
			result.Sent++
			s.record("sent")
		default:
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("push service returned %d", status))
			s.record("failed")
		}
	}
	if s.logg != nil && result.Removed > 0 {
		ctx = s.logg.WithUserID(ctx, userID.String())
		s.logg.Info(s.logg.WithField(ctx, "removed", result.Removed), "removed expired push subscriptions")
	}
	return result, errs
}

func (s *service) record(result string) {
	if s.metrics != nil {
		s.metrics.Push(result)
	}
}
