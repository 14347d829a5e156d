// Package router resolves a client-requested model id into a concrete
// provider and upstream model name: prefix parsing, provider selection, and
// per-provider redirect chains, per spec.md section 4.5.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/storage"
)

// maxRedirectHops bounds chained redirect lookups; cycles are rejected at
// write time (see ValidateRedirectMap), so this is a defense-in-depth cap,
// not the primary cycle guard.
const maxRedirectHops = 16

// redirectCacheTTL bounds how long a resolved redirect chain is cached
// before the next request re-reads the provider's redirect map.
const redirectCacheTTL = 10 * time.Second

// Resolved is the outcome of resolving a client-requested model id.
type Resolved struct {
	Provider string // pinned provider name, or "" if the model was opaque
	Model    string // upstream model id after redirects
}

// Resolver resolves model ids against a fixed set of known provider names
// and their configured redirect maps.
type Resolver struct {
	providers storage.ProviderStore
	cache     *otter.Cache[string, Resolved]
}

// New returns a Resolver backed by the given provider store.
func New(providers storage.ProviderStore) *Resolver {
	cache := otter.Must(&otter.Options[string, Resolved]{
		MaximumSize:      1024,
		ExpiryCalculator: otter.ExpiryWriting[string, Resolved](redirectCacheTTL),
	})
	return &Resolver{providers: providers, cache: cache}
}

// Parse splits a requested model id on its first "/". If the left-hand
// segment names a known provider, the provider is pinned and the remainder
// is the candidate model id; otherwise the whole string is an opaque model
// id with no pinned provider. A model of only whitespace is rejected.
func Parse(model string, knownProviders map[string]struct{}) (provider, rest string, err error) {
	if strings.TrimSpace(model) == "" {
		return "", "", fmt.Errorf("%w: empty model", gateway.ErrBadRequest)
	}
	if i := strings.IndexByte(model, '/'); i >= 0 {
		left, right := model[:i], model[i+1:]
		if _, ok := knownProviders[left]; ok && right != "" {
			return left, right, nil
		}
	}
	return "", model, nil
}

// Resolve applies Parse and then the pinned provider's redirect chain,
// caching the result for redirectCacheTTL.
func (r *Resolver) Resolve(ctx context.Context, model string, knownProviders map[string]struct{}) (*Resolved, error) {
	provider, rest, err := Parse(model, knownProviders)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		return &Resolved{Model: rest}, nil
	}

	cacheKey := provider + "/" + rest
	if cached, ok := r.cache.GetIfPresent(cacheKey); ok {
		return &cached, nil
	}

	effective, err := r.applyRedirects(ctx, provider, rest)
	if err != nil {
		return nil, err
	}
	resolved := Resolved{Provider: provider, Model: effective}
	r.cache.Set(cacheKey, resolved)
	return &resolved, nil
}

// applyRedirects repeatedly looks up (provider, model) in the redirect map
// up to maxRedirectHops times, returning the final model id.
func (r *Resolver) applyRedirects(ctx context.Context, provider, model string) (string, error) {
	seen := map[string]struct{}{model: {}}
	current := model
	for i := 0; i < maxRedirectHops; i++ {
		redirect, err := r.providers.GetModelRedirect(ctx, provider, current)
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				return current, nil
			}
			return "", err
		}
		if _, ok := seen[redirect.Target]; ok {
			return "", fmt.Errorf("%w: provider %q model %q", gateway.ErrRedirectCycle, provider, model)
		}
		seen[redirect.Target] = struct{}{}
		current = redirect.Target
	}
	return "", fmt.Errorf("%w: provider %q model %q exceeds %d redirect hops", gateway.ErrRedirectCycle, provider, model, maxRedirectHops)
}

// ValidateRedirectMap checks a full provider redirect map for cycles (DFS
// with a visiting-marker stack, per spec.md section 9's detection note) and
// self-loops before it is persisted. edges maps source model -> target model.
func ValidateRedirectMap(edges map[string]string) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(edges))

	var visit func(node string) error
	visit = func(node string) error {
		switch state[node] {
		case visiting:
			return fmt.Errorf("%w: cycle through %q", gateway.ErrRedirectCycle, node)
		case done:
			return nil
		}
		target, ok := edges[node]
		if !ok {
			state[node] = done
			return nil
		}
		if target == node {
			return fmt.Errorf("%w: self-loop on %q", gateway.ErrRedirectCycle, node)
		}
		state[node] = visiting
		if err := visit(target); err != nil {
			return err
		}
		state[node] = done
		return nil
	}

	for node := range edges {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
