package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

type fakeSigned struct {
	signature string
	body      string
	status    enums.WebhookStatus
	err       error
}

func (f *fakeSigned) HandleDelivery(_ context.Context, signature string, body []byte) (enums.WebhookStatus, error) {
	f.signature = signature
	f.body = string(body)
	return f.status, f.err
}

type fakeViva struct {
	calls int
	err   error
}

func (f *fakeViva) HandleDelivery(context.Context, []byte) (enums.WebhookStatus, error) {
	f.calls++
	if f.err != nil {
		return enums.WebhookFailed, f.err
	}
	return enums.WebhookProcessed, nil
}

func (f *fakeViva) VerificationKey() string { return "viva-key" }

func TestPaddleWebhookPassesSignatureAndBody(t *testing.T) {
	svc := &fakeSigned{status: enums.WebhookProcessed}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", strings.NewReader(`{"event_id":"evt_1"}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=abc")
	rec := httptest.NewRecorder()
	PaddleWebhook(svc, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.signature != "ts=1;h1=abc" || svc.body != `{"event_id":"evt_1"}` {
		t.Fatalf("unexpected delivery %+v", svc)
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data["status"] != string(enums.WebhookProcessed) {
		t.Fatalf("unexpected status %v", envelope.Data)
	}
}

func TestSignedWebhookMapsFailures(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"), want: http.StatusUnauthorized},
		{err: pkgerrors.New(pkgerrors.CodeValidation, "invalid paddle payload"), want: http.StatusBadRequest},
		{err: pkgerrors.New(pkgerrors.CodeDependency, "db down"), want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		svc := &fakeSigned{status: enums.WebhookFailed, err: tc.err}
		rec := httptest.NewRecorder()
		StripeWebhook(svc, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader("{}")))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestVivaVerificationReturnsKey(t *testing.T) {
	rec := httptest.NewRecorder()
	VivaVerification(&fakeViva{})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/viva", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["Key"] != "viva-key" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVivaWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakeViva{}
	big := strings.Repeat("a", maxWebhookBody+1)
	rec := httptest.NewRecorder()
	VivaWebhook(svc, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/viva", strings.NewReader(big)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run")
	}
}
