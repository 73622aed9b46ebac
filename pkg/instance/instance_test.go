package instance

import "testing"

func TestIDPrefersExplicitValue(t *testing.T) {
	t.Setenv("SIMCHECK_INSTANCE_ID", "cron-7")
	if got := ID("cron-worker"); got != "cron-7" {
		t.Fatalf("expected cron-7 got %q", got)
	}
}

func TestIDFallsBackToHost(t *testing.T) {
	t.Setenv("SIMCHECK_INSTANCE_ID", "")
	if got := ID("api"); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
