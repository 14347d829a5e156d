package crypto

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gateway "github.com/eugener/aigateway/internal"
)

// Claims is the gateway's JWT claim set (spec.md section 4.2).
type Claims struct {
	Subject     string   `json:"sub"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer issues and validates HS256 JWTs. A nil or empty secret silently
// downgrades admin auth to sessions-only, per spec.md section 4.2.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTIssuer returns a JWTIssuer. An empty secret makes Issue/Validate
// always fail, which is the intended "no JWT secret configured" behavior.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl}
}

// Enabled reports whether a secret is configured.
func (j *JWTIssuer) Enabled() bool { return len(j.secret) > 0 }

// Issue mints a signed JWT for the given user id/email/role.
func (j *JWTIssuer) Issue(userID, email string, role gateway.Role, perms []string, now time.Time) (string, time.Time, error) {
	if !j.Enabled() {
		return "", time.Time{}, fmt.Errorf("crypto: jwt secret not configured")
	}
	exp := now.Add(j.ttl)
	claims := Claims{
		Subject:     userID,
		Email:       email,
		Role:        string(role),
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        newJTI(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("crypto: sign jwt: %w", err)
	}
	return signed, exp, nil
}

// Validate parses and verifies a JWT, rejecting it if the secret is
// unconfigured, the signature is invalid, or exp has passed.
func (j *JWTIssuer) Validate(raw string, now time.Time) (*Claims, error) {
	if !j.Enabled() {
		return nil, gateway.ErrUnauthorized
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method)
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !tok.Valid {
		return nil, gateway.ErrUnauthorized
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return nil, gateway.ErrUnauthorized
	}
	return claims, nil
}

// newJTI generates a random claim id without pulling in a uuid dependency
// for a single call site -- the caller doesn't need RFC4122 structure, just
// uniqueness.
func newJTI() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
