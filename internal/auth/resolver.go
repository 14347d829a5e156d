// Package auth implements the gateway's four-path identity resolver: admin
// JWTs, TuiSessions, WebSession cookies, and tenant ClientTokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/storage"
)

const (
	tokenCacheTTL    = 30 * time.Second // short enough to pick up disable/spend revocations promptly
	tokenCacheMaxLen = 10_000           // max concurrent active client tokens expected per deployment

	sessionCookieName = "gw_session"
)

// Resolver implements the identity predicate described in spec.md section
// 4.2: JWT, then TuiSession, then WebSession cookie, then ClientToken.
type Resolver struct {
	users  storage.UserStore
	login  storage.LoginStore
	tokens storage.TokenStore
	clock  gateway.Clock
	jwt    *crypto.JWTIssuer

	cache       *otter.Cache[string, *gateway.ClientToken]
	keyIDToHash sync.Map // ClientToken.ID -> cache key, for spend-driven invalidation
}

// New returns a Resolver backed by the given stores. An unconfigured
// jwtIssuer silently downgrades admin auth to sessions-only (spec.md
// section 4.2).
func New(users storage.UserStore, login storage.LoginStore, tokens storage.TokenStore, clock gateway.Clock, jwtIssuer *crypto.JWTIssuer) (*Resolver, error) {
	c, err := otter.New(&otter.Options[string, *gateway.ClientToken]{
		MaximumSize:      tokenCacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *gateway.ClientToken](tokenCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	return &Resolver{users: users, login: login, tokens: tokens, clock: clock, jwt: jwtIssuer, cache: c}, nil
}

// Authenticate resolves the caller's Identity from the request, trying each
// of the four paths in order and falling through to the next on mismatch
// (not on validation failure -- an expired JWT fails closed rather than
// falling through to the TuiSession path).
func (r *Resolver) Authenticate(ctx context.Context, req *http.Request) (*gateway.Identity, error) {
	bearer := bearerToken(req)

	if bearer != "" && looksLikeJWT(bearer) && r.jwt.Enabled() {
		return r.authenticateJWT(bearer)
	}

	if bearer != "" {
		if id, err := r.authenticateTuiSession(ctx, bearer); err == nil {
			return id, nil
		} else if !errors.Is(err, gateway.ErrNotFound) {
			return nil, err
		}
	}

	if cookie, err := req.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if id, err := r.authenticateWebSession(ctx, cookie.Value); err == nil {
			return id, nil
		} else if !errors.Is(err, gateway.ErrNotFound) {
			return nil, err
		}
	}

	if bearer != "" {
		return r.authenticateClientToken(ctx, bearer)
	}

	return nil, gateway.ErrUnauthorized
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// looksLikeJWT reports whether tok has the two-dot shape of a JWT, per
// spec.md's "two dots" sniff used to route down the JWT path before trying
// it as a session id or client token.
func looksLikeJWT(tok string) bool {
	return strings.Count(tok, ".") == 2
}

func (r *Resolver) authenticateJWT(raw string) (*gateway.Identity, error) {
	claims, err := r.jwt.Validate(raw, r.clock.Now())
	if err != nil {
		return nil, err
	}
	return &gateway.Identity{
		Method: gateway.AuthJWT,
		UserID: claims.Subject,
		Role:   gateway.Role(claims.Role),
	}, nil
}

func (r *Resolver) authenticateTuiSession(ctx context.Context, sessionID string) (*gateway.Identity, error) {
	sess, err := r.login.GetTuiSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	if sess.Revoked || sess.ExpiresAt.Before(now) {
		return nil, gateway.ErrUnauthorized
	}
	key, err := r.login.GetAdminKey(ctx, sess.Fingerprint)
	if err != nil {
		return nil, gateway.ErrUnauthorized
	}
	if !key.Enabled {
		return nil, gateway.ErrUnauthorized
	}
	return &gateway.Identity{
		Method:      gateway.AuthTuiSession,
		Fingerprint: sess.Fingerprint,
	}, nil
}

func (r *Resolver) authenticateWebSession(ctx context.Context, sessionID string) (*gateway.Identity, error) {
	sess, err := r.login.GetWebSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	if sess.Revoked || sess.ExpiresAt.Before(now) {
		return nil, gateway.ErrUnauthorized
	}
	id := &gateway.Identity{Method: gateway.AuthWebSession, UserID: sess.UserID, Fingerprint: sess.Fingerprint}
	if sess.UserID != "" {
		u, err := r.users.GetUser(ctx, sess.UserID)
		if err == nil {
			id.Role = u.Role
		}
	}
	return id, nil
}

// authenticateClientToken validates a tenant-facing credential (P1, P4):
// budget-exhausted tokens fail with ErrBudgetExceeded even when disabled,
// preserving that diagnostic over a plain "disabled" error.
func (r *Resolver) authenticateClientToken(ctx context.Context, secret string) (*gateway.Identity, error) {
	id := gateway.ClientTokenID(secret)

	if tok, ok := r.cache.GetIfPresent(id); ok {
		return r.checkClientToken(tok)
	}

	tok, err := r.tokens.GetTokenBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, err
	}

	r.cache.Set(id, tok)
	r.keyIDToHash.Store(tok.ID, id)

	return r.checkClientToken(tok)
}

func (r *Resolver) checkClientToken(tok *gateway.ClientToken) (*gateway.Identity, error) {
	if tok.BudgetExhausted() {
		return nil, gateway.ErrBudgetExceeded
	}
	if !tok.Enabled {
		return nil, gateway.ErrTokenDisabled
	}
	if tok.ExpiresAt != nil && tok.ExpiresAt.Before(r.clock.Now()) {
		return nil, gateway.ErrTokenExpired
	}
	return &gateway.Identity{
		Method:        gateway.AuthClientToken,
		UserID:        tok.OwnerUserID,
		ClientTokenID: tok.ID,
	}, nil
}

// InvalidateToken removes a cached client token, used by admin operations
// that disable, update, or delete a token out from under a live cache entry.
func (r *Resolver) InvalidateToken(tokenID string) {
	if key, ok := r.keyIDToHash.LoadAndDelete(tokenID); ok {
		r.cache.Invalidate(key.(string))
	}
}

// RequireSuperadmin gates admin-only operations (spec.md section 4.2): JWT
// identities need the superadmin role claim; TuiSession and WebSession
// credentials are only issuable by the operator and pass unconditionally.
func RequireSuperadmin(id *gateway.Identity) error {
	if id == nil {
		return gateway.ErrUnauthorized
	}
	if !id.IsSuperadmin() {
		return gateway.ErrForbidden
	}
	return nil
}
