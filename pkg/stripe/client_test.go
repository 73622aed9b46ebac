package stripe

import (
	"context"
	"testing"

	"github.com/simcheck/simcheck-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "test key", cfg: config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec", Env: "test"}},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_123", WebhookSecret: "whsec", Env: "test"}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "test"}, wantErr: true},
		{name: "bad env", cfg: config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec", Env: "staging"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConstructEventRejectsBadSignature(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec_test", Env: "test"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ConstructEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef"); err == nil {
		t.Fatal("expected signature error")
	}
}
