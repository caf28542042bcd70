package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return key
}

func TestSource_IssueNew(t *testing.T) {
	key := testKey(t)
	src := NewSource(key, "my-project", 0)

	now := time.Unix(1_700_000_000, 0)
	token, err := src.IssueNew(now)
	if err != nil {
		t.Fatalf("IssueNew() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	// The fixed issue time lies in the past, so the token is already expired
	// by wall-clock time; skip claim validation and check the claims directly.
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		t.Fatal("unexpected claims type")
	}
	if c.Audience[0] != "my-project" {
		t.Errorf("aud = %v, want my-project", c.Audience)
	}
	wantExpiry := now.Add(defaultLifetime)
	if !c.ExpiresAt.Time.Equal(wantExpiry) {
		t.Errorf("exp = %v, want %v", c.ExpiresAt.Time, wantExpiry)
	}
}

func TestSource_ZeroLifetimeClampedToDefault(t *testing.T) {
	src := NewSource(testKey(t), "proj", -5*time.Second)
	if src.lifetime != defaultLifetime {
		t.Errorf("lifetime = %v, want default %v", src.lifetime, defaultLifetime)
	}
}

func TestSource_IsValid(t *testing.T) {
	key := testKey(t)
	src := NewSource(key, "proj", 10*time.Minute)
	now := time.Unix(1_700_000_000, 0)

	if src.IsValid(now, 60*time.Second) {
		t.Fatal("expected invalid before any token issued")
	}

	if _, err := src.IssueNew(now); err != nil {
		t.Fatalf("IssueNew() error = %v", err)
	}

	if !src.IsValid(now, 60*time.Second) {
		t.Fatal("expected valid immediately after issuance")
	}

	nearExpiry := now.Add(10*time.Minute - 30*time.Second)
	if src.IsValid(nearExpiry, 60*time.Second) {
		t.Fatal("expected invalid within the 60s expiry guard")
	}
}

func TestSource_RenewReplacesCurrent(t *testing.T) {
	key := testKey(t)
	src := NewSource(key, "proj", time.Hour)
	now := time.Unix(1_700_000_000, 0)

	first, err := src.IssueNew(now)
	if err != nil {
		t.Fatalf("IssueNew() error = %v", err)
	}
	second, err := src.Renew(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if first == second {
		t.Fatal("expected Renew to mint a distinct token")
	}
	if src.Current() != second {
		t.Fatal("Current() should reflect the most recent issuance")
	}
}
