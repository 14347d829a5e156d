package gateway

import "errors"

// Sentinel errors for the gateway domain. The taxonomy is closed: every
// error a handler returns must be (or wrap) one of these so that
// internal/server's errorStatus switch can map it to exactly one HTTP
// status.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrBudgetExceeded   = errors.New("token budget exceeded")
	ErrModelNotAllowed  = errors.New("model not allowed")
	ErrProviderError    = errors.New("provider error")
	ErrBadRequest       = errors.New("bad request")
	ErrConfigError      = errors.New("config error")
	ErrNoProviders      = errors.New("no providers available")
	ErrNoAPIKeys        = errors.New("no api keys available")
	ErrTokenDisabled    = errors.New("token disabled")
	ErrTokenExpired     = errors.New("token expired")
	ErrRedirectCycle    = errors.New("redirect cycle detected")
	ErrChallengeExpired = errors.New("challenge expired or consumed")
	ErrCodeInvalid      = errors.New("login code invalid or exhausted")
	ErrRefreshReused    = errors.New("refresh token already used")
	ErrSSRFBlocked      = errors.New("outbound url blocked")
)
