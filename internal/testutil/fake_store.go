// Package testutil provides configurable test fakes for gateway interfaces.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/storage"
)

// FakeStore is an in-memory implementation of storage.Store for testing. It
// is not meant to reproduce the atomicity guarantees of the real backends,
// only to exercise call sites with realistic request/response shapes.
type FakeStore struct {
	mu sync.Mutex

	tokens     map[string]*gateway.ClientToken
	users      map[string]*gateway.User
	adminKeys  map[string]*gateway.AdminPublicKey
	challenges map[string]*gateway.TuiChallenge
	tuiSess    map[string]*gateway.TuiSession
	loginCodes map[string]*gateway.LoginCode
	webSess    map[string]*gateway.WebSession
	refresh    map[string]*gateway.RefreshToken
	resets     map[string]*gateway.PasswordResetToken
	providers  map[string]*gateway.Provider
	keys       map[string]*gateway.ProviderKey
	redirects  map[string]*gateway.ModelRedirect
	prices     map[string]*gateway.ModelPrice
	modelCache map[string][]gateway.ModelCacheEntry
	balances   []*gateway.BalanceTransaction
	plans      map[gateway.SubscriptionScope]*gateway.SubscriptionPlans
	favorites  map[string][]*gateway.Favorite
	logs       []*gateway.RequestLog
	nextLogID  int64
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tokens:     make(map[string]*gateway.ClientToken),
		users:      make(map[string]*gateway.User),
		adminKeys:  make(map[string]*gateway.AdminPublicKey),
		challenges: make(map[string]*gateway.TuiChallenge),
		tuiSess:    make(map[string]*gateway.TuiSession),
		loginCodes: make(map[string]*gateway.LoginCode),
		webSess:    make(map[string]*gateway.WebSession),
		refresh:    make(map[string]*gateway.RefreshToken),
		resets:     make(map[string]*gateway.PasswordResetToken),
		providers:  make(map[string]*gateway.Provider),
		keys:       make(map[string]*gateway.ProviderKey),
		redirects:  make(map[string]*gateway.ModelRedirect),
		prices:     make(map[string]*gateway.ModelPrice),
		modelCache: make(map[string][]gateway.ModelCacheEntry),
		plans:      make(map[gateway.SubscriptionScope]*gateway.SubscriptionPlans),
		favorites:  make(map[string][]*gateway.Favorite),
	}
}

var _ storage.Store = (*FakeStore)(nil)

func (s *FakeStore) Close() error { return nil }

// --- TokenStore ---

func (s *FakeStore) CreateToken(_ context.Context, t *gateway.ClientToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = t
	return nil
}

func (s *FakeStore) GetToken(_ context.Context, id string) (*gateway.ClientToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return t, nil
}

// GetTokenBySecret derives the id from the raw secret and verifies the
// stored hash, mirroring the real backends' lookup-then-verify contract.
func (s *FakeStore) GetTokenBySecret(_ context.Context, secret string) (*gateway.ClientToken, error) {
	id := gateway.ClientTokenID(secret)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.Secret != gateway.HashSecret(secret) {
		return nil, gateway.ErrNotFound
	}
	return t, nil
}

func (s *FakeStore) ListTokens(_ context.Context, ownerUserID string, offset, limit int) ([]*gateway.ClientToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.ClientToken
	for _, t := range s.tokens {
		if ownerUserID == "" || t.OwnerUserID == ownerUserID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, offset, limit), nil
}

func (s *FakeStore) UpdateToken(_ context.Context, t *gateway.ClientToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.ID]; !ok {
		return gateway.ErrNotFound
	}
	s.tokens[t.ID] = t
	return nil
}

func (s *FakeStore) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}

func (s *FakeStore) RecordSpend(_ context.Context, id string, amount float64, promptTokens, completionTokens, totalTokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return gateway.ErrNotFound
	}
	t.AmountSpent += amount
	t.PromptTokensSpent += promptTokens
	t.CompletionTokensSpent += completionTokens
	t.TotalTokensSpent += totalTokens
	return nil
}

// --- UserStore ---

func (s *FakeStore) CreateUser(_ context.Context, u *gateway.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *FakeStore) GetUser(_ context.Context, id string) (*gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return u, nil
}

func (s *FakeStore) GetUserByUsername(_ context.Context, username string) (*gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gateway.ErrNotFound
}

func (s *FakeStore) GetUserByEmail(_ context.Context, email string) (*gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gateway.ErrNotFound
}

func (s *FakeStore) ListUsers(_ context.Context, offset, limit int) ([]*gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.User
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, offset, limit), nil
}

func (s *FakeStore) UpdateUser(_ context.Context, u *gateway.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return gateway.ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

func (s *FakeStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *FakeStore) CountSuperadmins(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Role == gateway.RoleSuperadmin {
			n++
		}
	}
	return n, nil
}

// --- LoginStore ---

func (s *FakeStore) CreateAdminKey(_ context.Context, k *gateway.AdminPublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminKeys[k.Fingerprint] = k
	return nil
}

func (s *FakeStore) GetAdminKey(_ context.Context, fingerprint string) (*gateway.AdminPublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.adminKeys[fingerprint]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return k, nil
}

func (s *FakeStore) ListAdminKeys(_ context.Context) ([]*gateway.AdminPublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.AdminPublicKey
	for _, k := range s.adminKeys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (s *FakeStore) TouchAdminKeyUsed(_ context.Context, fingerprint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.adminKeys[fingerprint]
	if !ok {
		return gateway.ErrNotFound
	}
	k.LastUsedAt = &at
	return nil
}

func (s *FakeStore) DeleteAdminKey(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.adminKeys[fingerprint]
	if !ok {
		return gateway.ErrNotFound
	}
	if k.Enabled {
		enabled := 0
		for _, other := range s.adminKeys {
			if other.Enabled {
				enabled++
			}
		}
		if enabled <= 1 {
			return gateway.ErrConflict
		}
	}
	delete(s.adminKeys, fingerprint)
	return nil
}

func (s *FakeStore) CreateChallenge(_ context.Context, c *gateway.TuiChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ChallengeID] = c
	return nil
}

func (s *FakeStore) GetChallenge(_ context.Context, challengeID string) (*gateway.TuiChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return c, nil
}

func (s *FakeStore) ConsumeChallenge(_ context.Context, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return gateway.ErrNotFound
	}
	c.Consumed = true
	return nil
}

func (s *FakeStore) CreateTuiSession(_ context.Context, sess *gateway.TuiSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuiSess[sess.SessionID] = sess
	return nil
}

func (s *FakeStore) GetTuiSession(_ context.Context, sessionID string) (*gateway.TuiSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tuiSess[sessionID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return sess, nil
}

func (s *FakeStore) RevokeTuiSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tuiSess[sessionID]
	if !ok {
		return gateway.ErrNotFound
	}
	sess.Revoked = true
	return nil
}

func (s *FakeStore) CreateLoginCode(_ context.Context, c *gateway.LoginCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCodes[c.Hash] = c
	return nil
}

func (s *FakeStore) GetLoginCode(_ context.Context, hash string) (*gateway.LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.loginCodes[hash]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return c, nil
}

func (s *FakeStore) RedeemLoginCode(_ context.Context, hash string, now time.Time) (*gateway.LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.loginCodes[hash]
	if !ok {
		return nil, gateway.ErrCodeInvalid
	}
	if c.Disabled || c.Uses >= c.MaxUses || c.ExpiresAt.Before(now) {
		return nil, gateway.ErrCodeInvalid
	}
	c.Uses++
	if c.Uses >= c.MaxUses {
		c.Disabled = true
	}
	return c, nil
}

func (s *FakeStore) CreateWebSession(_ context.Context, sess *gateway.WebSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webSess[sess.SessionID] = sess
	return nil
}

func (s *FakeStore) GetWebSession(_ context.Context, sessionID string) (*gateway.WebSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.webSess[sessionID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return sess, nil
}

func (s *FakeStore) RevokeWebSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.webSess[sessionID]
	if !ok {
		return gateway.ErrNotFound
	}
	sess.Revoked = true
	return nil
}

// --- RefreshTokenStore ---

func (s *FakeStore) CreateRefreshToken(_ context.Context, t *gateway.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[t.TokenHash] = t
	return nil
}

func (s *FakeStore) GetRefreshTokenByHash(_ context.Context, hash string) (*gateway.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refresh[hash]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return t, nil
}

func (s *FakeStore) RotateRefreshToken(_ context.Context, oldHash string, next *gateway.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refresh[oldHash]
	if !ok {
		return gateway.ErrNotFound
	}
	if old.RevokedAt != nil {
		return gateway.ErrRefreshReused
	}
	now := next.CreatedAt
	old.RevokedAt = &now
	old.ReplacedByID = next.ID
	s.refresh[next.TokenHash] = next
	return nil
}

func (s *FakeStore) RevokeRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.refresh {
		if t.ID == id {
			now := time.Now()
			t.RevokedAt = &now
			return nil
		}
	}
	return gateway.ErrNotFound
}

// --- PasswordResetStore ---

func (s *FakeStore) CreatePasswordResetToken(_ context.Context, t *gateway.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[t.TokenHash] = t
	return nil
}

func (s *FakeStore) GetPasswordResetTokenByHash(_ context.Context, hash string) (*gateway.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resets[hash]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return t, nil
}

func (s *FakeStore) ConsumePasswordResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.resets {
		if t.ID == id {
			now := time.Now()
			t.UsedAt = &now
			return nil
		}
	}
	return gateway.ErrNotFound
}

// --- ProviderStore ---

func (s *FakeStore) CreateProvider(_ context.Context, p *gateway.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name] = p
	return nil
}

func (s *FakeStore) GetProvider(_ context.Context, name string) (*gateway.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return p, nil
}

func (s *FakeStore) ListProviders(_ context.Context) ([]*gateway.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.Provider
	for _, p := range s.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FakeStore) UpdateProvider(_ context.Context, p *gateway.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.Name]; !ok {
		return gateway.ErrNotFound
	}
	s.providers[p.Name] = p
	return nil
}

func (s *FakeStore) DeleteProvider(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.providers, name)
	for id, k := range s.keys {
		if k.Provider == name {
			delete(s.keys, id)
		}
	}
	for key, r := range s.redirects {
		if r.Provider == name {
			delete(s.redirects, key)
		}
	}
	delete(s.modelCache, name)
	return nil
}

func (s *FakeStore) CreateProviderKey(_ context.Context, k *gateway.ProviderKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = k
	return nil
}

func (s *FakeStore) ListProviderKeys(_ context.Context, provider string) ([]*gateway.ProviderKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.ProviderKey
	for _, k := range s.keys {
		if k.Provider == provider {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FakeStore) UpdateProviderKey(_ context.Context, k *gateway.ProviderKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.ID]; !ok {
		return gateway.ErrNotFound
	}
	s.keys[k.ID] = k
	return nil
}

func (s *FakeStore) DeleteProviderKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}

func redirectKey(provider, source string) string { return provider + "\x00" + source }

func (s *FakeStore) UpsertModelRedirect(_ context.Context, r *gateway.ModelRedirect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[redirectKey(r.Provider, r.Source)] = r
	return nil
}

func (s *FakeStore) GetModelRedirect(_ context.Context, provider, source string) (*gateway.ModelRedirect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.redirects[redirectKey(provider, source)]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return r, nil
}

func (s *FakeStore) ListModelRedirects(_ context.Context, provider string) ([]*gateway.ModelRedirect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.ModelRedirect
	for _, r := range s.redirects {
		if r.Provider == provider {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *FakeStore) DeleteModelRedirect(_ context.Context, provider, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.redirects, redirectKey(provider, source))
	return nil
}

func priceKey(provider, model string) string { return provider + "\x00" + model }

func (s *FakeStore) UpsertModelPrice(_ context.Context, p *gateway.ModelPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[priceKey(p.Provider, p.Model)] = p
	return nil
}

func (s *FakeStore) GetModelPrice(_ context.Context, provider, model string) (*gateway.ModelPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[priceKey(provider, model)]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return p, nil
}

func (s *FakeStore) ListModelPrices(_ context.Context) ([]*gateway.ModelPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.ModelPrice
	for _, p := range s.prices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// --- ModelCacheStore ---

func (s *FakeStore) PutModelCache(_ context.Context, entries []gateway.ModelCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	s.modelCache[entries[0].Provider] = entries
	return nil
}

func (s *FakeStore) ListModelCache(_ context.Context, provider string) ([]gateway.ModelCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelCache[provider], nil
}

func (s *FakeStore) ClearModelCache(_ context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modelCache, provider)
	return nil
}

// --- BalanceStore ---

func (s *FakeStore) RecordBalanceTransaction(_ context.Context, t *gateway.BalanceTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append(s.balances, t)
	return nil
}

func (s *FakeStore) ListBalanceTransactions(_ context.Context, userID string, offset, limit int) ([]*gateway.BalanceTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.BalanceTransaction
	for _, t := range s.balances {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return paginate(out, offset, limit), nil
}

func (s *FakeStore) SumBalance(_ context.Context, userID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, t := range s.balances {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// --- SubscriptionStore ---

func (s *FakeStore) GetSubscriptionPlans(_ context.Context, scope gateway.SubscriptionScope) (*gateway.SubscriptionPlans, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[scope]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return p, nil
}

func (s *FakeStore) PutSubscriptionPlans(_ context.Context, p *gateway.SubscriptionPlans) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.Scope] = p
	return nil
}

// --- FavoritesStore ---

func (s *FakeStore) AddFavorite(_ context.Context, f *gateway.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites[f.UserID] = append(s.favorites[f.UserID], f)
	return nil
}

func (s *FakeStore) RemoveFavorite(_ context.Context, userID, provider, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.favorites[userID]
	for i, f := range list {
		if f.Provider == provider && f.ModelID == modelID {
			s.favorites[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (s *FakeStore) ListFavorites(_ context.Context, userID string) ([]*gateway.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[userID], nil
}

// --- RequestLogStore ---

func (s *FakeStore) InsertRequestLog(_ context.Context, l *gateway.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	l.ID = s.nextLogID
	s.logs = append(s.logs, l)
	return nil
}

func (s *FakeStore) ListRequestLogs(_ context.Context, filter storage.RequestLogFilter) ([]*gateway.RequestLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gateway.RequestLog
	for _, l := range s.logs {
		if filter.ClientTokenID != "" && l.ClientTokenID != filter.ClientTokenID {
			continue
		}
		if filter.UserID != "" && l.UserID != filter.UserID {
			continue
		}
		if filter.Provider != "" && l.Provider != filter.Provider {
			continue
		}
		if filter.Since != nil && l.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && l.Timestamp.After(*filter.Until) {
			continue
		}
		out = append(out, l)
	}
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *FakeStore) SummarizeRequestLogs(_ context.Context, since, until time.Time) ([]storage.RequestLogSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := make(map[string]*storage.RequestLogSummary)
	for _, l := range s.logs {
		if l.Timestamp.Before(since) || l.Timestamp.After(until) {
			continue
		}
		key := l.Provider + "\x00" + l.EffectiveModel
		sum, ok := agg[key]
		if !ok {
			sum = &storage.RequestLogSummary{Provider: l.Provider, Model: l.EffectiveModel}
			agg[key] = sum
		}
		sum.RequestCount++
		sum.TotalTokens += int64(l.TotalTokens)
		if l.AmountSpent != nil {
			sum.TotalAmountSpent += *l.AmountSpent
		}
	}
	var out []storage.RequestLogSummary
	for _, sum := range agg {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
