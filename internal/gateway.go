// Package gateway defines the domain types and interfaces shared across the
// AI model gateway. This package has no project imports -- it is the
// dependency root every other package builds on.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// --- Chat wire shapes (OpenAI-compatible) ---

// ChatRequest is an OpenAI-compatible chat completion request. Model may
// carry a "<provider>/<model>" prefix that pins routing; the prefix is
// stripped before forwarding upstream.
type ChatRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	N                int             `json:"n,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    *StreamOptions  `json:"stream_options,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	User             string          `json:"user,omitempty"`
	Tools            json.RawMessage `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat   json.RawMessage `json:"response_format,omitempty"`
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Message represents a single chat message.
type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ChatResponse is an OpenAI-compatible chat completion response.
type ChatResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage statistics, including the extended breakdown
// spec.md's RequestLog entity records (cached/reasoning tokens).
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
}

// StreamChunk is a single relayed SSE frame. Data carries the raw payload so
// the gateway can forward bytes without round-tripping through JSON on the
// hot path; Usage is populated only on the frame that carries the upstream's
// usage report, which comes before the Done frame.
type StreamChunk struct {
	Data  []byte
	Usage *Usage
	Done  bool
	Err   error
}

// ProviderClient is the interface every upstream dialect adapter
// implements. One instance is constructed per configured Provider row.
type ProviderClient interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
	ChatCompletion(ctx context.Context, key string, req *ChatRequest) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, key string, req *ChatRequest) (<-chan StreamChunk, error)
	// ListModels returns the upstream's advertised model ids.
	ListModels(ctx context.Context, key string) ([]string, error)
}

// --- Identity & roles ---

// UserStatus is the lifecycle state of a User.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
	UserDisabled UserStatus = "disabled"
)

// NormalizeUserStatus accepts legacy values read from older rows
// ("suspended" -> disabled, "invited" -> inactive) per spec.md's Data Model.
func NormalizeUserStatus(s string) UserStatus {
	switch s {
	case "suspended":
		return UserDisabled
	case "invited":
		return UserInactive
	case string(UserActive), string(UserInactive), string(UserDisabled):
		return UserStatus(s)
	default:
		return UserActive
	}
}

// Role is an operator role. At most one Superadmin may exist at any time
// (P9); the first user ever created is promoted to Superadmin regardless of
// the requested role.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleCashier    Role = "cashier"
)

// User is an operator identity.
type User struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Status       UserStatus `json:"status"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// --- Client tokens (tenant API credentials) ---

// ClientTokenPrefix is the id prefix for every client token (P1).
const ClientTokenPrefix = "atk_"

// ClientToken is a tenant-facing API credential.
type ClientToken struct {
	ID                     string     `json:"id"`
	Secret                 string     `json:"-"` // 40-char opaque secret, never re-exposed after creation
	OwnerUserID             string    `json:"owner_user_id"`
	Name                   string     `json:"name"`
	AllowedModels          []string   `json:"allowed_models,omitempty"`
	ModelBlacklist         []string   `json:"model_blacklist,omitempty"`
	MaxAmount              *float64   `json:"max_amount,omitempty"`
	MaxTokens              *int64     `json:"max_tokens,omitempty"`
	Enabled                bool       `json:"enabled"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	AmountSpent            float64    `json:"amount_spent"`
	PromptTokensSpent      int64      `json:"prompt_tokens_spent"`
	CompletionTokensSpent  int64      `json:"completion_tokens_spent"`
	TotalTokensSpent       int64      `json:"total_tokens_spent"`
	IPWhitelist            []string   `json:"ip_whitelist,omitempty"`
	IPBlacklist            []string   `json:"ip_blacklist,omitempty"`
	Remark                 string     `json:"remark,omitempty"`
	OrganizationID         string     `json:"organization_id,omitempty"`
}

// ClientTokenID derives the deterministic id for a raw secret (P1):
// "atk_" + the first 24 hex chars of sha256(secret).
func ClientTokenID(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return ClientTokenPrefix + hex.EncodeToString(sum[:])[:24]
}

// BudgetExhausted reports whether the token's configured max_amount has
// been reached or exceeded.
func (t *ClientToken) BudgetExhausted() bool {
	return t.MaxAmount != nil && t.AmountSpent >= *t.MaxAmount
}

// --- Admin public keys (Ed25519, TUI auth) ---

// AdminPublicKey is an Ed25519 verifier enrolled for TUI challenge-response
// login.
type AdminPublicKey struct {
	Fingerprint string    `json:"fingerprint"` // lowercase hex sha256(pubkey) (P2)
	PublicKey   []byte    `json:"-"`
	Comment     string    `json:"comment,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// Fingerprint returns the lowercase hex sha256 of an Ed25519 public key (P2).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// --- TUI challenge-response session fabric ---

// TuiChallenge is an ephemeral nonce issued to a fingerprint.
type TuiChallenge struct {
	ChallengeID string
	Fingerprint string
	Nonce       []byte
	ExpiresAt   time.Time
	Consumed    bool
}

// TuiSession is an admin session minted after a successful challenge-response
// verification.
type TuiSession struct {
	SessionID   string
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	LastCodeAt  *time.Time
}

// LoginCode is a short, human-typeable, bounded-use secret bridging a TUI
// session to a web session.
type LoginCode struct {
	Hash        string
	TuiSessionID string
	Fingerprint string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	MaxUses     int
	Uses        int
	Disabled    bool
	Hint        string
}

// WebSession is a browser session cookie minted by redeeming a LoginCode,
// or by user password login in the consumer-facing paths.
type WebSession struct {
	SessionID     string
	Fingerprint   string // empty when minted by user/password login
	UserID        string // empty when minted by TUI login-code redemption
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Revoked       bool
	IssuedByCode  string // the LoginCode hash that minted it, if any
}

// --- Refresh & password-reset tokens ---

// RefreshToken is a rotating session credential for user/password auth.
type RefreshToken struct {
	ID            string
	UserID        string
	TokenHash     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	ReplacedByID  string
	LastUsedAt    *time.Time
}

// PasswordResetToken is a single-use credential for the forgot-password flow.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// --- Providers & keys ---

// APIType identifies the upstream wire dialect.
type APIType string

const (
	APITypeOpenAI    APIType = "openai"
	APITypeAnthropic APIType = "anthropic"
	APITypeZhipu     APIType = "zhipu"
)

// Provider is a configured upstream LLM provider.
type Provider struct {
	Name             string               `json:"name"`
	APIType          APIType              `json:"api_type"`
	BaseURL          string               `json:"base_url"`
	ModelsEndpoint   string               `json:"models_endpoint,omitempty"`
	RotationStrategy KeyRotationStrategy  `json:"rotation_strategy"`
	Enabled          bool                 `json:"enabled"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// KeyLogStrategy controls how provider keys are persisted and how they are
// rendered into request logs.
type KeyLogStrategy string

const (
	KeyLogNone   KeyLogStrategy = "none"
	KeyLogMasked KeyLogStrategy = "masked"
	KeyLogPlain  KeyLogStrategy = "plain"
)

// ProviderKey is one key in a provider's rotation pool.
type ProviderKey struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Value      string `json:"-"`      // plaintext once decoded by the caller
	Encoded    string `json:"-"`      // as persisted (obfuscated unless Plain)
	Encrypted  bool   `json:"-"`      // true when Encoded needs unprotect()
	Active     bool   `json:"active"`
	Weight     int    `json:"weight"`
}

// KeyRotationStrategy selects how a provider's active keys are indexed per
// request.
type KeyRotationStrategy string

const (
	RotateSequential       KeyRotationStrategy = "sequential"
	RotateRandom           KeyRotationStrategy = "random"
	RotateWeightedSequential KeyRotationStrategy = "weighted_sequential"
	RotateWeightedRandom   KeyRotationStrategy = "weighted_random"
)

// --- Model cache, redirects, pricing ---

// ModelCacheEntry is a cached upstream model listing row.
type ModelCacheEntry struct {
	Provider string
	ModelID  string
	Object   string
	Created  int64
	OwnedBy  string
	CachedAt time.Time
}

// ModelRedirect maps a requested model id to the model id actually forwarded
// upstream, scoped to one provider.
type ModelRedirect struct {
	Provider string
	Source   string
	Target   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ModelPrice is the per-million-token price for one (provider, model) pair.
type ModelPrice struct {
	Provider               string
	Model                  string
	PromptPricePerMillion  float64
	CompletionPricePerMillion float64
	Currency               string
}

// --- Accounting ---

// RequestType tags the canonical operation a RequestLog row records.
type RequestType string

const (
	ReqChatOnce        RequestType = "chat_once"
	ReqChatStream      RequestType = "chat_stream"
	ReqModelsList      RequestType = "models_list"
	ReqProviderKeyAdd  RequestType = "provider_key_add"
	ReqProviderCreate  RequestType = "provider_create"
	ReqProviderUpdate  RequestType = "provider_update"
	ReqProviderDelete  RequestType = "provider_delete"
	ReqTokenCreate     RequestType = "token_create"
	ReqTokenUpdate     RequestType = "token_update"
	ReqTokenDelete     RequestType = "token_delete"
	ReqUserCreate      RequestType = "user_create"
	ReqUserLogin       RequestType = "user_login"
	ReqUserRefresh     RequestType = "user_refresh"
	ReqAuthChallenge   RequestType = "auth_challenge"
	ReqAuthVerify      RequestType = "auth_verify"
	ReqLoginCodeCreate RequestType = "login_code_create"
	ReqLoginCodeRedeem RequestType = "login_code_redeem"
	ReqModelRedirect   RequestType = "model_redirect_update"
	ReqModelPrice      RequestType = "model_price_update"
	ReqAdminMisc       RequestType = "admin_misc"
)

// RequestLog is an append-only per-request accounting record.
type RequestLog struct {
	ID              int64       `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	RequestType     RequestType `json:"request_type"`
	RequestedModel  string      `json:"requested_model,omitempty"`
	EffectiveModel  string      `json:"effective_model,omitempty"`
	PricingModel    string      `json:"pricing_model,omitempty"`
	Provider        string      `json:"provider,omitempty"`
	APIKeyHint      string      `json:"api_key_hint,omitempty"`
	ClientTokenID   string      `json:"client_token_id,omitempty"`
	UserID          string      `json:"user_id,omitempty"`
	AmountSpent     *float64    `json:"amount_spent,omitempty"`
	StatusCode      int         `json:"status_code"`
	ResponseTimeMs  int64       `json:"response_time_ms"`
	PromptTokens    int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int        `json:"completion_tokens,omitempty"`
	TotalTokens     int         `json:"total_tokens,omitempty"`
	CachedTokens    int         `json:"cached_tokens,omitempty"`
	ReasoningTokens int         `json:"reasoning_tokens,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
}

// BalanceTransactionKind distinguishes a balance mutation's direction.
type BalanceTransactionKind string

const (
	BalanceTopup BalanceTransactionKind = "topup"
	BalanceSpend BalanceTransactionKind = "spend"
)

// BalanceTransaction is one ledger entry against a user's prepaid balance.
type BalanceTransaction struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Kind      BalanceTransactionKind `json:"kind"`
	Amount    float64                `json:"amount"`
	CreatedAt time.Time              `json:"created_at"`
	Meta      json.RawMessage        `json:"meta,omitempty"`
}

// SubscriptionScope distinguishes the draft/published plan sets.
type SubscriptionScope string

const (
	SubscriptionDraft     SubscriptionScope = "draft"
	SubscriptionPublished SubscriptionScope = "published"
)

// SubscriptionPlans is the JSON array of plans for one scope.
type SubscriptionPlans struct {
	Scope     SubscriptionScope
	Plans     json.RawMessage
	UpdatedAt time.Time
	UpdatedBy string
}

// Favorite is a user's bookmark of a provider/model pair.
type Favorite struct {
	UserID    string
	Provider  string
	ModelID   string
	CreatedAt time.Time
}

// --- Auth identity (resolved at the edge, carried through the request) ---

// AuthMethod names which of the four identity paths resolved the request.
type AuthMethod string

const (
	AuthClientToken AuthMethod = "client_token"
	AuthJWT         AuthMethod = "jwt"
	AuthTuiSession  AuthMethod = "tui_session"
	AuthWebSession  AuthMethod = "web_session"
	AuthAnonymous   AuthMethod = "anonymous"
)

// Identity is the authenticated caller context attached to the request
// context by the identity resolver.
type Identity struct {
	Method        AuthMethod
	UserID        string
	Role          Role
	ClientTokenID string
	Fingerprint   string // set for TuiSession auth
}

// IsSuperadmin reports whether the identity carries the superadmin role via
// an admin-issuable credential (JWT claim, TuiSession, or WebSession) per
// spec.md's require_superadmin gate.
func (id *Identity) IsSuperadmin() bool {
	if id == nil {
		return false
	}
	switch id.Method {
	case AuthTuiSession, AuthWebSession:
		return true
	case AuthJWT:
		return id.Role == RoleSuperadmin
	}
	return false
}

// --- Context plumbing ---

type contextKey int

const (
	ctxKeyIdentity contextKey = iota
	ctxKeyRequestID
)

// IdentityFromContext extracts the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return id
}

// ContextWithIdentity attaches the resolved identity to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// RequestIDFromContext extracts the per-request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID attaches a request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// --- Shared helpers ---

// HashSecret returns the hex-encoded SHA-256 hash of a raw secret. Used for
// client token secrets, login codes, refresh tokens, and password-reset
// tokens -- only the hash is ever persisted.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Authenticator validates request credentials and returns the caller
// identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// Clock returns the current time. Exactly one implementation is wired per
// process; tests inject a fixed clock (spec.md section 9).
type Clock interface {
	Now() time.Time
}
