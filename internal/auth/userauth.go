package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/storage"
)

const (
	refreshTokenTTL       = 30 * 24 * time.Hour
	passwordResetTTL      = time.Hour
	minPasswordLength     = 7
	passwordResetTokenLen = 32
)

// UserAuth implements password-based registration, login, refresh rotation,
// and forgot/reset-password for the browser-and-API-client facing surface
// (spec.md section 4.2, POST /auth/login, /auth/refresh, /forgot-password,
// /reset-password).
type UserAuth struct {
	users   storage.UserStore
	refresh storage.RefreshTokenStore
	reset   storage.PasswordResetStore
	jwt     *crypto.JWTIssuer
	clock   gateway.Clock
}

func NewUserAuth(users storage.UserStore, refresh storage.RefreshTokenStore, reset storage.PasswordResetStore, jwt *crypto.JWTIssuer, clock gateway.Clock) *UserAuth {
	return &UserAuth{users: users, refresh: refresh, reset: reset, jwt: jwt, clock: clock}
}

// LoginResult bundles the credentials returned from a successful
// login/refresh/register call.
type LoginResult struct {
	AccessToken      string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *gateway.User
}

// Register creates a new user. The first user ever created is promoted to
// Superadmin regardless of the requested role (P9); subsequent requests for
// Superadmin are silently demoted to Admin.
func (a *UserAuth) Register(ctx context.Context, email, username, password string, role gateway.Role) (*gateway.User, error) {
	if len(password) < minPasswordLength {
		return nil, gateway.ErrBadRequest
	}
	count, err := a.users.CountSuperadmins(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 && role == gateway.RoleSuperadmin {
		role = gateway.RoleAdmin
	}
	if count == 0 {
		role = gateway.RoleSuperadmin
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	u := &gateway.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Status:       gateway.UserActive,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies email+password and mints an access/refresh token pair.
func (a *UserAuth) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, err
	}
	if u.Status != gateway.UserActive {
		return nil, gateway.ErrForbidden
	}
	if !crypto.VerifyPassword(password, u.PasswordHash) {
		return nil, gateway.ErrUnauthorized
	}
	return a.issuePair(ctx, u)
}

func (a *UserAuth) issuePair(ctx context.Context, u *gateway.User) (*LoginResult, error) {
	access, expiresAt, err := a.jwt.Issue(u.ID, u.Email, u.Role, nil, a.clock.Now())
	if err != nil {
		return nil, err
	}

	raw, err := crypto.RandomAlphanumeric(48)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	rt := &gateway.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: gateway.HashSecret(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(refreshTokenTTL),
	}
	if err := a.refresh.CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: access, ExpiresAt: expiresAt,
		RefreshToken: raw, RefreshExpiresAt: rt.ExpiresAt,
		User: u,
	}, nil
}

// Refresh rotates a refresh token (P5/P6): the presented token is revoked
// and a replacement issued in the same storage transaction. Presenting an
// already-revoked (reused) token fails with ErrRefreshReused.
func (a *UserAuth) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	hash := gateway.HashSecret(rawToken)
	old, err := a.refresh.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrUnauthorized
		}
		return nil, err
	}
	if old.RevokedAt != nil {
		return nil, gateway.ErrRefreshReused
	}
	if old.ExpiresAt.Before(a.clock.Now()) {
		return nil, gateway.ErrUnauthorized
	}

	u, err := a.users.GetUser(ctx, old.UserID)
	if err != nil {
		return nil, err
	}
	if u.Status != gateway.UserActive {
		return nil, gateway.ErrForbidden
	}

	raw, err := crypto.RandomAlphanumeric(48)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	next := &gateway.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: gateway.HashSecret(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(refreshTokenTTL),
	}
	if err := a.refresh.RotateRefreshToken(ctx, hash, next); err != nil {
		return nil, err
	}

	access, expiresAt, err := a.jwt.Issue(u.ID, u.Email, u.Role, nil, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: access, ExpiresAt: expiresAt,
		RefreshToken: raw, RefreshExpiresAt: next.ExpiresAt,
		User: u,
	}, nil
}

// ChangePassword verifies a user's current password before replacing it.
func (a *UserAuth) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return gateway.ErrBadRequest
	}
	u, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(oldPassword, u.PasswordHash) {
		return gateway.ErrUnauthorized
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = a.clock.Now()
	return a.users.UpdateUser(ctx, u)
}

// RequestPasswordReset issues a single-use reset token for an email, if a
// matching active user exists. Callers should respond identically whether
// or not the email matched, to avoid leaking account existence.
func (a *UserAuth) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u.Status != gateway.UserActive {
		return "", gateway.ErrNotFound
	}
	raw, err := crypto.RandomAlphanumeric(passwordResetTokenLen)
	if err != nil {
		return "", err
	}
	now := a.clock.Now()
	t := &gateway.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: gateway.HashSecret(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(passwordResetTTL),
	}
	if err := a.reset.CreatePasswordResetToken(ctx, t); err != nil {
		return "", err
	}
	return raw, nil
}

// ResetPassword consumes a reset token and sets a new password. The
// consume step is a single conditional UPDATE so a token can settle at
// most one reset even under concurrent submits.
func (a *UserAuth) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return gateway.ErrBadRequest
	}
	hash := gateway.HashSecret(rawToken)
	t, err := a.reset.GetPasswordResetTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return gateway.ErrUnauthorized
		}
		return err
	}
	if t.UsedAt != nil || t.ExpiresAt.Before(a.clock.Now()) {
		return gateway.ErrUnauthorized
	}
	if err := a.reset.ConsumePasswordResetToken(ctx, t.ID); err != nil {
		return err
	}

	u, err := a.users.GetUser(ctx, t.UserID)
	if err != nil {
		return err
	}
	passwordHash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = a.clock.Now()
	return a.users.UpdateUser(ctx, u)
}
