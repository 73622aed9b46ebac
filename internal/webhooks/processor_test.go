package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
)

type fakeLog struct {
	seen     map[string]bool
	finished map[uuid.UUID]enums.WebhookStatus
}

func newFakeLog() *fakeLog {
	return &fakeLog{seen: map[string]bool{}, finished: map[uuid.UUID]enums.WebhookStatus{}}
}

func (f *fakeLog) RecordWebhook(_ context.Context, r payments.WebhookRecord) (*models.WebhookEvent, bool, error) {
	key := r.Provider.String() + r.EventID
	if f.seen[key] {
		return nil, true, nil
	}
	f.seen[key] = true
	return &models.WebhookEvent{ID: uuid.New(), Provider: r.Provider, EventID: r.EventID}, false, nil
}

func (f *fakeLog) FinishWebhook(_ context.Context, id uuid.UUID, status enums.WebhookStatus, _ error) error {
	f.finished[id] = status
	return nil
}

type fakeStore struct {
	keys map[string]bool
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}
func (f *fakeStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }
func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

type countingMetrics map[string]int

func (c countingMetrics) Webhook(provider, result string) { c[provider+"/"+result]++ }

func TestProcessorRunsHandlerOnce(t *testing.T) {
	log := newFakeLog()
	metrics := countingMetrics{}
	guard, err := inbox.NewMarker(&fakeStore{keys: map[string]bool{}}, time.Hour, "webhook")
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewProcessor(log, guard, metrics, nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	handle := func(context.Context) (enums.WebhookStatus, error) {
		calls++
		return enums.WebhookProcessed, nil
	}
	d := Delivery{Provider: enums.ProviderPaddle, EventID: "evt_1", EventType: "transaction.completed", SignatureValid: true}

	status, err := p.Process(context.Background(), d, handle)
	if err != nil || status != enums.WebhookProcessed {
		t.Fatalf("first delivery: %v %v", status, err)
	}
	status, err = p.Process(context.Background(), d, handle)
	if err != nil || status != enums.WebhookDuplicate {
		t.Fatalf("second delivery: %v %v", status, err)
	}
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if metrics["paddle/processed"] != 1 || metrics["paddle/duplicate"] != 1 {
		t.Fatalf("unexpected metrics %v", metrics)
	}
}

func TestProcessorRejectsInvalidSignature(t *testing.T) {
	p, _ := NewProcessor(newFakeLog(), nil, nil, nil)
	_, err := p.Process(context.Background(), Delivery{Provider: enums.ProviderStripe, EventID: "x"}, func(context.Context) (enums.WebhookStatus, error) {
		t.Fatal("handler must not run")
		return "", nil
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestProcessorReleasesGuardOnFailure(t *testing.T) {
	store := &fakeStore{keys: map[string]bool{}}
	guard, _ := inbox.NewMarker(store, time.Hour, "webhook")
	log := newFakeLog()
	p, _ := NewProcessor(log, guard, nil, nil)

	status, err := p.Process(context.Background(), Delivery{Provider: enums.ProviderViva, EventID: "e", SignatureValid: true}, func(context.Context) (enums.WebhookStatus, error) {
		return "", errors.New("db down")
	})
	if err == nil || status != enums.WebhookFailed {
		t.Fatalf("expected failure, got %v %v", status, err)
	}
	if len(store.keys) != 0 {
		t.Fatalf("guard key should be released, got %v", store.keys)
	}
	for _, s := range log.finished {
		if s != enums.WebhookFailed {
			t.Fatalf("expected failed status, got %s", s)
		}
	}
}

func TestSchemaValidate(t *testing.T) {
	schema := MustCompileSchema("test.json", `{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)
	if err := schema.Validate([]byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := schema.Validate([]byte(`{"id":1}`)); err == nil {
		t.Fatal("expected type error")
	}
	if err := schema.Validate([]byte(`nope`)); err == nil {
		t.Fatal("expected decode error")
	}
}
