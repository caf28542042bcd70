// Package credential issues and renews the short-lived JWT used as the MQTT
// password for the IoT Core broker session.
package credential

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultLifetime = 3600 * time.Second

// claims is the RS256 payload: iat, exp, and aud (the IoT Core project ID).
// The header carries no additional fields.
type claims struct {
	jwt.RegisteredClaims
}

// Source issues and renews JWTs for one device identity. Not safe for
// concurrent use; the Broker Client owns it exclusively.
type Source struct {
	privateKey *rsa.PrivateKey
	audience   string
	lifetime   time.Duration

	current   string
	expiresAt time.Time
}

// NewSource builds a credential source. lifetime <= 0 is clamped to the
// 3600-second default.
func NewSource(privateKey *rsa.PrivateKey, audience string, lifetime time.Duration) *Source {
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	return &Source{
		privateKey: privateKey,
		audience:   audience,
		lifetime:   lifetime,
	}
}

// ParseRSAPrivateKeyFromPEM parses a PKCS#1 or PKCS#8 RSA private key in PEM
// form, as loaded from the identity config's private key path.
func ParseRSAPrivateKeyFromPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("credential: parse private key: %w", err)
	}
	return key, nil
}

// IssueNew mints a fresh token with iat = now and exp = now + lifetime,
// replacing whatever token was previously current.
func (s *Source) IssueNew(now time.Time) (string, error) {
	issuedAt := now
	expiresAt := issuedAt.Add(s.lifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  jwt.ClaimStrings{s.audience},
		},
	})

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("credential: sign token: %w", err)
	}

	s.current = signed
	s.expiresAt = expiresAt
	return signed, nil
}

// Renew is IssueNew under another name, used at call sites that react to
// imminent expiry or a disconnect rather than an initial build.
func (s *Source) Renew(now time.Time) (string, error) {
	return s.IssueNew(now)
}

// Current returns the most recently issued token without minting a new one.
func (s *Source) Current() string {
	return s.current
}

// IsValid reports whether the current token is still good at least
// threshold into the future. A zero-value Source (no token issued
// yet) is never valid.
func (s *Source) IsValid(now time.Time, threshold time.Duration) bool {
	if s.current == "" {
		return false
	}
	return now.Before(s.expiresAt.Add(-threshold))
}
