// Package storage defines persistence interfaces for the gateway. Two
// backends implement this same capability set: storage/sqlite (embedded,
// single-writer) and storage/postgres (remote, pooled).
package storage

import (
	"context"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

// TokenStore manages ClientToken persistence and atomic spend accounting.
type TokenStore interface {
	CreateToken(ctx context.Context, t *gateway.ClientToken) error
	GetToken(ctx context.Context, id string) (*gateway.ClientToken, error)
	// GetTokenBySecret derives the id from the raw secret (P1) and verifies
	// the stored hash before returning the token.
	GetTokenBySecret(ctx context.Context, secret string) (*gateway.ClientToken, error)
	ListTokens(ctx context.Context, ownerUserID string, offset, limit int) ([]*gateway.ClientToken, error)
	UpdateToken(ctx context.Context, t *gateway.ClientToken) error
	DeleteToken(ctx context.Context, id string) error
	// RecordSpend atomically increments a token's spend counters in a single
	// statement (P4: monotone, race-free spend).
	RecordSpend(ctx context.Context, id string, amount float64, promptTokens, completionTokens, totalTokens int64) error
}

// UserStore manages operator identity persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *gateway.User) error
	GetUser(ctx context.Context, id string) (*gateway.User, error)
	GetUserByUsername(ctx context.Context, username string) (*gateway.User, error)
	GetUserByEmail(ctx context.Context, email string) (*gateway.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*gateway.User, error)
	UpdateUser(ctx context.Context, u *gateway.User) error
	DeleteUser(ctx context.Context, id string) error
	// CountSuperadmins supports the at-most-one-superadmin invariant (P9).
	CountSuperadmins(ctx context.Context) (int, error)
}

// LoginStore manages the admin session fabric: Ed25519-enrolled public
// keys, TUI challenges/sessions, login codes, and web sessions.
type LoginStore interface {
	CreateAdminKey(ctx context.Context, k *gateway.AdminPublicKey) error
	GetAdminKey(ctx context.Context, fingerprint string) (*gateway.AdminPublicKey, error)
	ListAdminKeys(ctx context.Context) ([]*gateway.AdminPublicKey, error)
	TouchAdminKeyUsed(ctx context.Context, fingerprint string, at time.Time) error
	// DeleteAdminKey enforces the safe-delete invariant: a delete fails with
	// gateway.ErrConflict when it would remove the last enabled key.
	DeleteAdminKey(ctx context.Context, fingerprint string) error

	CreateChallenge(ctx context.Context, c *gateway.TuiChallenge) error
	GetChallenge(ctx context.Context, challengeID string) (*gateway.TuiChallenge, error)
	ConsumeChallenge(ctx context.Context, challengeID string) error

	CreateTuiSession(ctx context.Context, s *gateway.TuiSession) error
	GetTuiSession(ctx context.Context, sessionID string) (*gateway.TuiSession, error)
	RevokeTuiSession(ctx context.Context, sessionID string) error

	CreateLoginCode(ctx context.Context, c *gateway.LoginCode) error
	GetLoginCode(ctx context.Context, hash string) (*gateway.LoginCode, error)
	// RedeemLoginCode atomically increments Uses iff Uses < MaxUses and the
	// code is neither disabled nor expired, returning gateway.ErrCodeInvalid
	// otherwise (P5: single/bounded redemption).
	RedeemLoginCode(ctx context.Context, hash string, now time.Time) (*gateway.LoginCode, error)

	CreateWebSession(ctx context.Context, s *gateway.WebSession) error
	GetWebSession(ctx context.Context, sessionID string) (*gateway.WebSession, error)
	RevokeWebSession(ctx context.Context, sessionID string) error
}

// RefreshTokenStore manages rotating refresh tokens for password-based
// user login.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, t *gateway.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*gateway.RefreshToken, error)
	// RotateRefreshToken revokes the old token and inserts its replacement
	// in one transaction (P6: atomic rotation, reuse detection).
	RotateRefreshToken(ctx context.Context, oldHash string, next *gateway.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, id string) error
}

// PasswordResetStore manages single-use forgot-password tokens.
type PasswordResetStore interface {
	CreatePasswordResetToken(ctx context.Context, t *gateway.PasswordResetToken) error
	GetPasswordResetTokenByHash(ctx context.Context, hash string) (*gateway.PasswordResetToken, error)
	ConsumePasswordResetToken(ctx context.Context, id string) error
}

// ProviderStore manages provider configuration and key-rotation pools.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *gateway.Provider) error
	GetProvider(ctx context.Context, name string) (*gateway.Provider, error)
	ListProviders(ctx context.Context) ([]*gateway.Provider, error)
	UpdateProvider(ctx context.Context, p *gateway.Provider) error
	DeleteProvider(ctx context.Context, name string) error

	CreateProviderKey(ctx context.Context, k *gateway.ProviderKey) error
	ListProviderKeys(ctx context.Context, provider string) ([]*gateway.ProviderKey, error)
	UpdateProviderKey(ctx context.Context, k *gateway.ProviderKey) error
	DeleteProviderKey(ctx context.Context, id string) error

	UpsertModelRedirect(ctx context.Context, r *gateway.ModelRedirect) error
	GetModelRedirect(ctx context.Context, provider, source string) (*gateway.ModelRedirect, error)
	ListModelRedirects(ctx context.Context, provider string) ([]*gateway.ModelRedirect, error)
	DeleteModelRedirect(ctx context.Context, provider, source string) error

	UpsertModelPrice(ctx context.Context, p *gateway.ModelPrice) error
	GetModelPrice(ctx context.Context, provider, model string) (*gateway.ModelPrice, error)
	ListModelPrices(ctx context.Context) ([]*gateway.ModelPrice, error)
}

// ModelCacheStore persists the upstream model-listing probe cache
// (spec.md section 5).
type ModelCacheStore interface {
	PutModelCache(ctx context.Context, entries []gateway.ModelCacheEntry) error
	ListModelCache(ctx context.Context, provider string) ([]gateway.ModelCacheEntry, error)
	ClearModelCache(ctx context.Context, provider string) error
}

// BalanceStore manages a user's prepaid-balance ledger.
type BalanceStore interface {
	RecordBalanceTransaction(ctx context.Context, t *gateway.BalanceTransaction) error
	ListBalanceTransactions(ctx context.Context, userID string, offset, limit int) ([]*gateway.BalanceTransaction, error)
	SumBalance(ctx context.Context, userID string) (float64, error)
}

// SubscriptionStore manages the draft/published subscription-plan sets.
type SubscriptionStore interface {
	GetSubscriptionPlans(ctx context.Context, scope gateway.SubscriptionScope) (*gateway.SubscriptionPlans, error)
	PutSubscriptionPlans(ctx context.Context, p *gateway.SubscriptionPlans) error
}

// FavoritesStore manages a user's bookmarked provider/model pairs.
type FavoritesStore interface {
	AddFavorite(ctx context.Context, f *gateway.Favorite) error
	RemoveFavorite(ctx context.Context, userID, provider, modelID string) error
	ListFavorites(ctx context.Context, userID string) ([]*gateway.Favorite, error)
}

// RequestLogStore is the append-only per-request accounting sink.
type RequestLogStore interface {
	InsertRequestLog(ctx context.Context, l *gateway.RequestLog) error
	ListRequestLogs(ctx context.Context, filter RequestLogFilter) ([]*gateway.RequestLog, error)
	// SummarizeRequestLogs supports the admin metrics summary surface
	// (totals by provider/model over a time window).
	SummarizeRequestLogs(ctx context.Context, since, until time.Time) ([]RequestLogSummary, error)
}

// RequestLogFilter narrows ListRequestLogs.
type RequestLogFilter struct {
	ClientTokenID string
	UserID        string
	Provider      string
	Since, Until  *time.Time
	Offset, Limit int
}

// RequestLogSummary is one aggregated row of the admin metrics surface.
type RequestLogSummary struct {
	Provider         string
	Model            string
	RequestCount     int64
	TotalTokens      int64
	TotalAmountSpent float64
}

// Store composes every capability interface plus lifecycle management.
type Store interface {
	TokenStore
	UserStore
	LoginStore
	RefreshTokenStore
	PasswordResetStore
	ProviderStore
	ModelCacheStore
	BalanceStore
	SubscriptionStore
	FavoritesStore
	RequestLogStore

	Close() error
}
