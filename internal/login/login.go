// Package login implements the TUI admin session fabric: Ed25519
// challenge-response, login-code hand-off to the browser, and web session
// issuance. It is the durable, race-free counterpart of the original
// in-memory prototype -- every atomic step here is a single conditional
// statement at the storage layer rather than a mutex-guarded map.
package login

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/storage"
)

const (
	challengeTTL   = time.Minute
	tuiSessionTTL  = 30 * 24 * time.Hour
	webSessionTTL  = 8 * time.Hour
	defaultCodeLen = 8
	nonceLen       = 32
)

// Manager issues and verifies TUI challenges, redeems login codes, and
// mints/revokes web sessions.
type Manager struct {
	store storage.LoginStore
	clock gateway.Clock
}

func New(store storage.LoginStore, clock gateway.Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// Challenge is the public response to a challenge request.
type Challenge struct {
	ChallengeID string
	Nonce       []byte
	ExpiresAt   time.Time
}

// IssueChallenge issues a fresh nonce for a known, enabled admin key. The
// fingerprint must already be enrolled (spec.md section 4.3 step 1).
func (m *Manager) IssueChallenge(ctx context.Context, fingerprint string) (*Challenge, error) {
	key, err := m.store.GetAdminKey(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !key.Enabled {
		return nil, gateway.ErrForbidden
	}

	nonce, err := crypto.RandomNonce(nonceLen)
	if err != nil {
		return nil, fmt.Errorf("login: generate nonce: %w", err)
	}
	now := m.clock.Now()
	c := &gateway.TuiChallenge{
		ChallengeID: uuid.NewString(),
		Fingerprint: fingerprint,
		Nonce:       nonce,
		ExpiresAt:   now.Add(challengeTTL),
	}
	if err := m.store.CreateChallenge(ctx, c); err != nil {
		return nil, err
	}
	return &Challenge{ChallengeID: c.ChallengeID, Nonce: nonce, ExpiresAt: c.ExpiresAt}, nil
}

// VerifyResult is returned on a successful challenge-response verification.
type VerifyResult struct {
	SessionID   string
	Fingerprint string
	ExpiresAt   time.Time
}

// Verify checks a signed challenge response and, on success, mints a
// TuiSession (spec.md section 4.3 step 3). Challenges are single-use:
// replaying a consumed challenge_id fails with ErrChallengeExpired.
func (m *Manager) Verify(ctx context.Context, challengeID, fingerprint string, sig []byte) (*VerifyResult, error) {
	c, err := m.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Consumed || c.Fingerprint != fingerprint {
		return nil, gateway.ErrChallengeExpired
	}
	now := m.clock.Now()
	if c.ExpiresAt.Before(now) {
		return nil, gateway.ErrChallengeExpired
	}

	key, err := m.store.GetAdminKey(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !key.Enabled {
		return nil, gateway.ErrForbidden
	}
	pub, err := crypto.ParsePublicKey(key.PublicKey)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyChallenge(ed25519.PublicKey(pub), c.Nonce, sig) {
		return nil, gateway.ErrUnauthorized
	}

	if err := m.store.ConsumeChallenge(ctx, challengeID); err != nil {
		return nil, err
	}

	sess := &gateway.TuiSession{
		SessionID:   uuid.NewString(),
		Fingerprint: fingerprint,
		IssuedAt:    now,
		ExpiresAt:   now.Add(tuiSessionTTL),
	}
	if err := m.store.CreateTuiSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.store.TouchAdminKeyUsed(ctx, fingerprint, now); err != nil {
		return nil, err
	}

	return &VerifyResult{SessionID: sess.SessionID, Fingerprint: fingerprint, ExpiresAt: sess.ExpiresAt}, nil
}

// IssuedLoginCode carries the plaintext code, shown to the operator once.
type IssuedLoginCode struct {
	Code      string
	ExpiresAt time.Time
	MaxUses   int
}

// CreateLoginCode generates a human-typeable code bridging a TUI session to
// a browser, storing only its hash. Length defaults to 8 when zero or
// negative.
func (m *Manager) CreateLoginCode(ctx context.Context, tuiSessionID string, ttl time.Duration, maxUses, length int, hint string) (*IssuedLoginCode, error) {
	sess, err := m.store.GetTuiSession(ctx, tuiSessionID)
	if err != nil {
		return nil, err
	}
	if sess.Revoked {
		return nil, gateway.ErrUnauthorized
	}
	if length <= 0 {
		length = defaultCodeLen
	}
	if maxUses <= 0 {
		maxUses = 1
	}

	code, err := crypto.RandomAlphanumeric(length)
	if err != nil {
		return nil, fmt.Errorf("login: generate code: %w", err)
	}
	now := m.clock.Now()
	c := &gateway.LoginCode{
		Hash:         gateway.HashSecret(code),
		TuiSessionID: tuiSessionID,
		Fingerprint:  sess.Fingerprint,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		MaxUses:      maxUses,
		Hint:         hint,
	}
	if err := m.store.CreateLoginCode(ctx, c); err != nil {
		return nil, err
	}
	return &IssuedLoginCode{Code: code, ExpiresAt: c.ExpiresAt, MaxUses: maxUses}, nil
}

// RedeemResult is returned on successful login-code redemption.
type RedeemResult struct {
	SessionID string
	ExpiresAt time.Time
}

// RedeemCode atomically consumes one use of a login code and, on success,
// mints a WebSession bound to the code's fingerprint (P5: race-free,
// bounded redemption -- the atomic conditional update is load-bearing at
// the storage layer, not enforced here).
func (m *Manager) RedeemCode(ctx context.Context, code string) (*RedeemResult, error) {
	hash := gateway.HashSecret(code)
	now := m.clock.Now()

	c, err := m.store.RedeemLoginCode(ctx, hash, now)
	if err != nil {
		return nil, err
	}

	sess := &gateway.WebSession{
		SessionID:    uuid.NewString(),
		Fingerprint:  c.Fingerprint,
		CreatedAt:    now,
		ExpiresAt:    now.Add(webSessionTTL),
		IssuedByCode: c.Hash,
	}
	if err := m.store.CreateWebSession(ctx, sess); err != nil {
		return nil, err
	}
	return &RedeemResult{SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt}, nil
}

// CreateWebSessionForUser mints a WebSession from a successful user/password
// login, with no originating login code or admin fingerprint.
func (m *Manager) CreateWebSessionForUser(ctx context.Context, userID string) (*RedeemResult, error) {
	now := m.clock.Now()
	sess := &gateway.WebSession{
		SessionID: uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(webSessionTTL),
	}
	if err := m.store.CreateWebSession(ctx, sess); err != nil {
		return nil, err
	}
	return &RedeemResult{SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt}, nil
}

func (m *Manager) RevokeTuiSession(ctx context.Context, sessionID string) error {
	return m.store.RevokeTuiSession(ctx, sessionID)
}

func (m *Manager) RevokeWebSession(ctx context.Context, sessionID string) error {
	return m.store.RevokeWebSession(ctx, sessionID)
}

// EnrollAdminKey registers a new Ed25519 admin public key, enabled by
// default.
func (m *Manager) EnrollAdminKey(ctx context.Context, pub []byte, comment string) (*gateway.AdminPublicKey, error) {
	if _, err := crypto.ParsePublicKey(pub); err != nil {
		return nil, err
	}
	k := &gateway.AdminPublicKey{
		Fingerprint: gateway.Fingerprint(pub),
		PublicKey:   pub,
		Comment:     comment,
		Enabled:     true,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.store.CreateAdminKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// DeleteAdminKey removes an admin key, refusing to delete the caller's own
// active key or the last enabled key in the fleet (spec.md section 4.3
// safety invariant). The last-enabled-key check is enforced transactionally
// by the storage layer; the self-delete check is enforced here since the
// caller's own fingerprint is only known at the handler layer.
func (m *Manager) DeleteAdminKey(ctx context.Context, fingerprint, callerFingerprint string) error {
	if fingerprint == callerFingerprint {
		return gateway.ErrConflict
	}
	return m.store.DeleteAdminKey(ctx, fingerprint)
}
