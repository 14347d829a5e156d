package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	gateway "github.com/eugener/aigateway/internal"
)

func TestHandleProviderModelsNoKeysFails(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/models/fake", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (no active keys), body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleProviderModelsUnknownProvider(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/models/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleProviderModelsProbesAndCaches(t *testing.T) {
	h := newHarness(t)
	must(t, h.store.CreateProviderKey(context.Background(), &gateway.ProviderKey{
		ID: "key-1", Provider: "fake", Active: true, Encoded: "sk-test", Encrypted: false,
	}))

	rec := h.do(t, http.MethodGet, "/models/fake", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp modelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "fake-model" {
		t.Fatalf("unexpected models: %+v", resp.Data)
	}

	cached, err := h.store.ListModelCache(context.Background(), "fake")
	if err != nil || len(cached) != 1 {
		t.Fatalf("expected probe result to populate cache, got %+v, err=%v", cached, err)
	}
}

func TestHandleListModelsSkipsUnreachableProviders(t *testing.T) {
	h := newHarness(t)
	// "fake" has no active key, so it errors and must be silently skipped
	// rather than failing the aggregate /v1/models listing.
	rec := h.do(t, http.MethodGet, "/v1/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp modelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Fatalf("expected empty aggregate listing, got %+v", resp.Data)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
