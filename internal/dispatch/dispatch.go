// Package dispatch implements the chat completion dispatch & accounting
// pipeline: token pre-enforcement, provider/key selection, dialect
// forwarding, usage extraction, and spend accounting (spec.md §4.6-4.7).
//
// Unlike the teacher's app.ProxyService, dispatch makes a single attempt
// per request -- provider-side retry or circuit breaking beyond
// single-attempt error classification is explicitly out of scope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/provider"
	"github.com/eugener/aigateway/internal/router"
	"github.com/eugener/aigateway/internal/storage"
)

// Service dispatches chat completion requests against a resolved provider
// and accounts for the resulting spend.
type Service struct {
	store          storage.Store
	providers      *provider.Registry
	resolver       *router.Resolver
	rotator        *provider.KeyRotator
	clock          gateway.Clock
	keyLogStrategy gateway.KeyLogStrategy
}

// New returns a Service wired to its dependencies. keyLogStrategy must match
// the strategy used when the provider's keys were persisted (crypto.Protect),
// so dispatch can recover the plaintext value to forward upstream.
func New(store storage.Store, providers *provider.Registry, resolver *router.Resolver, rotator *provider.KeyRotator, clock gateway.Clock, keyLogStrategy gateway.KeyLogStrategy) *Service {
	return &Service{store: store, providers: providers, resolver: resolver, rotator: rotator, clock: clock, keyLogStrategy: keyLogStrategy}
}

// Outcome carries what Dispatch produced, for the caller (internal/server)
// to write the HTTP response and measure end-to-end latency.
type Outcome struct {
	Response       *gateway.ChatResponse
	Stream         <-chan gateway.StreamChunk
	Provider       string
	EffectiveModel string
	KeyHint        string
}

// ChatCompletion runs the full non-streaming dispatch pipeline for one
// ClientToken-scoped request.
func (s *Service) ChatCompletion(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	start := s.clock.Now()
	target, key, err := s.prepare(ctx, token, req)
	if err != nil {
		s.logFailure(ctx, token, req, start, err)
		return nil, err
	}

	resp, err := target.client.ChatCompletion(ctx, key.Value, req)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		classified := ClassifyError(err)
		s.logOutcome(ctx, token, req, target, key, start, elapsed, nil, classified)
		return nil, classified
	}

	s.account(ctx, token, req, target, key, start, elapsed, resp.Usage, 0, nil)
	return resp, nil
}

// ChatCompletionStream runs the streaming dispatch pipeline. The returned
// channel is relayed to the client as frames arrive; accounting happens
// once the terminal frame (Done or Err) is observed, in a goroutine that
// also drains for the caller so the client-facing channel sees every frame
// exactly once.
func (s *Service) ChatCompletionStream(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	start := s.clock.Now()
	target, key, err := s.prepare(ctx, token, req)
	if err != nil {
		s.logFailure(ctx, token, req, start, err)
		return nil, err
	}

	upstream, err := target.client.ChatCompletionStream(ctx, key.Value, req)
	if err != nil {
		classified := ClassifyError(err)
		s.logOutcome(ctx, token, req, target, key, start, s.clock.Now().Sub(start), nil, classified)
		return nil, classified
	}

	out := make(chan gateway.StreamChunk, 8)
	go s.relayAndAccount(ctx, token, req, target, key, start, upstream, out)
	return out, nil
}

func (s *Service) relayAndAccount(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest, target resolvedTarget, key *gateway.ProviderKey, start time.Time, upstream <-chan gateway.StreamChunk, out chan<- gateway.StreamChunk) {
	defer close(out)

	var usage *gateway.Usage
	var streamErr error
	for chunk := range upstream {
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}

	elapsed := s.clock.Now().Sub(start)
	if streamErr != nil {
		classified := ClassifyError(streamErr)
		s.logOutcome(ctx, token, req, target, key, start, elapsed, nil, classified)
		return
	}
	s.account(ctx, token, req, target, key, start, elapsed, usage, 0, nil)
}

type resolvedTarget struct {
	provider string
	model    string
	client   gateway.ProviderClient
}

// prepare resolves the provider/model, pre-enforces budget and model
// allow/deny lists (spec.md §4.6 step 2), and selects an active key.
func (s *Service) prepare(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest) (resolvedTarget, *gateway.ProviderKey, error) {
	if token.BudgetExhausted() {
		return resolvedTarget{}, nil, gateway.ErrBudgetExceeded
	}
	if !modelAllowed(token, req.Model) {
		return resolvedTarget{}, nil, gateway.ErrModelNotAllowed
	}

	known := make(map[string]struct{})
	for _, name := range s.providers.List() {
		known[name] = struct{}{}
	}

	resolved, err := s.resolver.Resolve(ctx, req.Model, known)
	if err != nil {
		return resolvedTarget{}, nil, err
	}

	// Re-check the deny list against the effective model to prevent
	// redirect-bypass: a tenant must not reach a denied model by aliasing
	// through a permitted one.
	if !modelAllowed(token, resolved.Model) {
		return resolvedTarget{}, nil, gateway.ErrModelNotAllowed
	}

	providerName := resolved.Provider
	if providerName == "" {
		providerName = pickLoadBalanced(s.providers.List(), resolved.Model)
		if providerName == "" {
			return resolvedTarget{}, nil, gateway.ErrNoProviders
		}
	}

	client, err := s.providers.Get(providerName)
	if err != nil {
		return resolvedTarget{}, nil, fmt.Errorf("%w: %v", gateway.ErrNoProviders, err)
	}

	keys, err := s.store.ListProviderKeys(ctx, providerName)
	if err != nil {
		return resolvedTarget{}, nil, err
	}
	active := make([]*gateway.ProviderKey, 0, len(keys))
	for _, k := range keys {
		if k.Active {
			active = append(active, k)
		}
	}
	strategy := gateway.RotateWeightedSequential
	if providerCfg, err := s.store.GetProvider(ctx, providerName); err == nil && providerCfg.RotationStrategy != "" {
		strategy = providerCfg.RotationStrategy
	}
	key, err := s.rotator.Next(active, strategy)
	if err != nil {
		return resolvedTarget{}, nil, err
	}
	// Encoded is what storage persists; Value is only ever set here (or, in
	// tests, directly on an in-memory fixture that bypasses persistence).
	if key.Encoded != "" {
		plain, err := crypto.Unprotect(s.keyLogStrategy, providerName, key.Encoded, key.Encrypted)
		if err != nil {
			return resolvedTarget{}, nil, fmt.Errorf("%w: %v", gateway.ErrConfigError, err)
		}
		key.Value = plain
	}

	req.Model = resolved.Model
	return resolvedTarget{provider: providerName, model: resolved.Model, client: client}, key, nil
}

// modelAllowed enforces the mutually-exclusive allow/deny lists.
func modelAllowed(token *gateway.ClientToken, model string) bool {
	if len(token.AllowedModels) > 0 {
		return slices.Contains(token.AllowedModels, model)
	}
	if len(token.ModelBlacklist) > 0 {
		return !slices.Contains(token.ModelBlacklist, model)
	}
	return true
}

// pickLoadBalanced chooses a provider for an opaque (unpinned) model id.
// Since no routing metadata distinguishes candidates for an opaque model,
// this simply picks the first registered provider in sorted order; callers
// needing real load-balancing pin a provider via the "<provider>/<model>"
// prefix instead.
func pickLoadBalanced(names []string, _ string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (s *Service) logFailure(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest, start time.Time, err error) {
	s.logOutcome(ctx, token, req, resolvedTarget{}, nil, start, s.clock.Now().Sub(start), nil, err)
}

func (s *Service) logOutcome(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest, target resolvedTarget, key *gateway.ProviderKey, start time.Time, elapsed time.Duration, usage *gateway.Usage, failure error) {
	s.account(ctx, token, req, target, key, start, elapsed, usage, statusFor(failure), failure)
}

func statusFor(err error) int {
	if err == nil {
		return 200
	}
	return errorStatusHint(err)
}

// account inserts the request log row, then (if usage/price/token are all
// present) increments the token's spend counters. Log insertion always
// precedes the counter increment (spec.md §4.7); an increment failure is
// logged but does not affect the caller-visible outcome.
func (s *Service) account(ctx context.Context, token *gateway.ClientToken, req *gateway.ChatRequest, target resolvedTarget, key *gateway.ProviderKey, start time.Time, elapsed time.Duration, usage *gateway.Usage, statusOverride int, failure error) {
	reqType := gateway.ReqChatOnce
	if req.Stream {
		reqType = gateway.ReqChatStream
	}

	log := &gateway.RequestLog{
		Timestamp:      start,
		Method:         "POST",
		Path:           "/v1/chat/completions",
		RequestType:    reqType,
		RequestedModel: req.Model,
		EffectiveModel: target.model,
		PricingModel:   target.model,
		Provider:       target.provider,
		ClientTokenID:  token.ID,
		StatusCode:     200,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if key != nil {
		log.APIKeyHint = maskKey(key.Value)
	}
	if failure != nil {
		log.StatusCode = statusOverride
		if log.StatusCode == 0 {
			log.StatusCode = 500
		}
		log.ErrorMessage = failure.Error()
	}

	var amount *float64
	if usage != nil {
		log.PromptTokens = usage.PromptTokens
		log.CompletionTokens = usage.CompletionTokens
		log.TotalTokens = usage.TotalTokens
		log.CachedTokens = usage.CachedTokens
		log.ReasoningTokens = usage.ReasoningTokens

		if price, err := s.store.GetModelPrice(ctx, target.provider, target.model); err == nil {
			a := float64(usage.PromptTokens)*price.PromptPricePerMillion/1e6 +
				float64(usage.CompletionTokens)*price.CompletionPricePerMillion/1e6
			amount = &a
		}
	}
	log.AmountSpent = amount

	if err := s.store.InsertRequestLog(ctx, log); err != nil {
		slog.ErrorContext(ctx, "insert request log failed", slog.String("error", err.Error()))
		return
	}

	if amount != nil {
		if err := s.store.RecordSpend(ctx, token.ID, *amount, int64(usage.PromptTokens), int64(usage.CompletionTokens), int64(usage.TotalTokens)); err != nil {
			slog.ErrorContext(ctx, "record spend failed", slog.String("token_id", token.ID), slog.String("error", err.Error()))
		}
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func errorStatusHint(err error) int {
	switch {
	case errors.Is(err, gateway.ErrBadRequest), errors.Is(err, gateway.ErrModelNotAllowed):
		return 400
	case errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, gateway.ErrBudgetExceeded):
		return 401
	case errors.Is(err, gateway.ErrForbidden):
		return 403
	case errors.Is(err, gateway.ErrNotFound):
		return 404
	case errors.Is(err, gateway.ErrNoProviders), errors.Is(err, gateway.ErrNoAPIKeys):
		return 503
	default:
		return 502
	}
}
