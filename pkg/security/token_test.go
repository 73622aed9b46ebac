package security_test

import (
	"strings"
	"testing"

	"github.com/simcheck/simcheck-backend/pkg/security"
)

func TestTokenHasherRoundTrip(t *testing.T) {
	hasher, err := security.NewTokenHasher("pepper")
	if err != nil {
		t.Fatalf("NewTokenHasher returned error: %v", err)
	}

	token, err := security.GenerateToken(security.ExtensionTokenPrefix)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if !strings.HasPrefix(token, security.ExtensionTokenPrefix) {
		t.Fatalf("expected prefix on %q", token)
	}

	stored := hasher.Hash(token)
	if stored == token || len(stored) != 64 {
		t.Fatalf("unexpected digest %q", stored)
	}
	if !hasher.Matches(token, stored) {
		t.Fatal("expected token to match its digest")
	}
	if hasher.Matches(token+"x", stored) {
		t.Fatal("expected altered token not to match")
	}
}

func TestTokenHasherDependsOnPepper(t *testing.T) {
	a, _ := security.NewTokenHasher("pepper-a")
	b, _ := security.NewTokenHasher("pepper-b")
	if a.Hash("mul_token") == b.Hash("mul_token") {
		t.Fatal("expected different peppers to yield different digests")
	}
}

func TestNewTokenHasherRequiresPepper(t *testing.T) {
	if _, err := security.NewTokenHasher(""); err != security.ErrEmptyPepper {
		t.Fatalf("expected ErrEmptyPepper, got %v", err)
	}
}

func TestGenerateTokenIsRandom(t *testing.T) {
	first, _ := security.GenerateToken(security.MagicLinkPrefix)
	second, _ := security.GenerateToken(security.MagicLinkPrefix)
	if first == second {
		t.Fatal("expected distinct tokens")
	}
}

func TestDisplayPrefix(t *testing.T) {
	if got := security.DisplayPrefix("sce_ABCDEFGHIJKL"); got != "sce_ABCDEFGH" {
		t.Fatalf("unexpected display prefix %q", got)
	}
	if got := security.DisplayPrefix("short"); got != "short" {
		t.Fatalf("unexpected display prefix %q", got)
	}
}
