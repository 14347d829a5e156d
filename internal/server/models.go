package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
)

// modelCacheTTL bounds how long a provider's probed model listing is
// trusted before the next request re-probes upstream (spec.md section 5).
const modelCacheTTL = 120 * time.Second

type modelEntry struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Created  int64  `json:"created"`
	OwnedBy  string `json:"owned_by"`
	Provider string `json:"provider"`
}

type modelListResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleListModels aggregates the cached model listing across every
// registered provider, refreshing any provider whose cache has gone stale.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var data []modelEntry
	for _, name := range s.deps.Providers.List() {
		entries, err := s.modelsForProvider(r.Context(), name, false)
		if err != nil {
			continue // one unreachable provider must not fail the aggregate listing
		}
		for _, e := range entries {
			data = append(data, modelEntry{ID: e.ModelID, Object: e.Object, Created: e.Created, OwnedBy: e.OwnedBy, Provider: e.Provider})
		}
	}
	writeJSON(w, http.StatusOK, modelListResponse{Object: "list", Data: data})
}

// handleProviderModels lists one provider's models. ?refresh=true forces a
// fresh upstream probe, bypassing (but still refreshing) the persisted
// cache.
func (s *server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	refresh := r.URL.Query().Get("refresh") == "true"
	entries, err := s.modelsForProvider(r.Context(), name, refresh)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data := make([]modelEntry, len(entries))
	for i, e := range entries {
		data[i] = modelEntry{ID: e.ModelID, Object: e.Object, Created: e.Created, OwnedBy: e.OwnedBy, Provider: e.Provider}
	}
	writeJSON(w, http.StatusOK, modelListResponse{Object: "list", Data: data})
}

func (s *server) modelsForProvider(ctx context.Context, name string, forceRefresh bool) ([]gateway.ModelCacheEntry, error) {
	if s.deps.Store == nil {
		return nil, gateway.ErrNotFound
	}
	if !forceRefresh {
		cached, err := s.deps.Store.ListModelCache(ctx, name)
		if err == nil && len(cached) > 0 && s.deps.Clock.Now().Sub(cached[0].CachedAt) < modelCacheTTL {
			return cached, nil
		}
	}

	client, err := s.deps.Providers.Get(name)
	if err != nil {
		return nil, gateway.ErrNotFound
	}
	keys, err := s.deps.Store.ListProviderKeys(ctx, name)
	if err != nil {
		return nil, err
	}
	var key string
	for _, k := range keys {
		if !k.Active {
			continue
		}
		if plain, err := crypto.Unprotect(s.deps.KeyLogStrategy, name, k.Encoded, k.Encrypted); err == nil {
			key = plain
			break
		}
	}
	if key == "" {
		return nil, gateway.ErrNoAPIKeys
	}

	ids, err := client.ListModels(ctx, key)
	if err != nil {
		return nil, gateway.ErrProviderError
	}

	now := s.deps.Clock.Now()
	entries := make([]gateway.ModelCacheEntry, len(ids))
	for i, id := range ids {
		entries[i] = gateway.ModelCacheEntry{Provider: name, ModelID: id, Object: "model", Created: now.Unix(), OwnedBy: name, CachedAt: now}
	}
	if err := s.deps.Store.PutModelCache(ctx, entries); err != nil {
		return entries, nil // probe succeeded; a cache-write failure must not fail the response
	}
	return entries, nil
}
