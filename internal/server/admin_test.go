package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	gateway "github.com/eugener/aigateway/internal"
)

func TestAdminRoutesRejectNonSuperadmin(t *testing.T) {
	h := newHarness(t)
	h.identity.Role = gateway.RoleAdmin // admin, not superadmin

	rec := h.do(t, http.MethodGet, "/admin/providers", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminMetricsSummaryAllowsAdmin(t *testing.T) {
	h := newHarness(t)
	h.identity.Role = gateway.RoleAdmin

	rec := h.do(t, http.MethodGet, "/admin/metrics/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminProviderCRUD(t *testing.T) {
	h := newHarness(t)

	createBody, _ := json.Marshal(gateway.Provider{Name: "anthropic", APIType: "anthropic", BaseURL: "https://api.anthropic.com"})
	rec := h.do(t, http.MethodPost, "/admin/providers", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/admin/providers/anthropic", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = h.do(t, http.MethodDelete, "/admin/providers/anthropic", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/admin/providers/anthropic", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", rec.Code)
	}
}

func TestAdminCreateKeyMasksOnList(t *testing.T) {
	h := newHarness(t)
	h.deps.KeyLogStrategy = gateway.KeyLogMasked
	h.rebuild()

	createBody, _ := json.Marshal(keyCreateRequest{Provider: "fake", Value: "sk-abcdefghij", Active: true})
	rec := h.do(t, http.MethodPost, "/admin/keys", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/admin/keys?provider=fake", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var resp listResponse
	raw := rec.Body.Bytes()
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var keys []maskedKey
	data, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("decode keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Hint == "" {
		t.Fatalf("expected a non-empty masked hint, got %+v", keys)
	}
	if keys[0].Hint == "sk-abcdefghij" {
		t.Fatalf("hint leaked plaintext key: %q", keys[0].Hint)
	}
}

func TestAdminTokenUpdateToleratesNilAuthResolver(t *testing.T) {
	h := newHarness(t)
	// No real *auth.Resolver in this harness; handleUpdateToken must not
	// panic when AuthResolver is nil (it is nil in every test in this package).
	createBody, _ := json.Marshal(tokenCreateRequest{OwnerUserID: "user-2", Name: "svc"})
	rec := h.do(t, http.MethodPost, "/admin/tokens", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var created tokenCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	updateBody, _ := json.Marshal(map[string]any{"name": "renamed"})
	rec = h.do(t, http.MethodPut, "/admin/tokens/"+created.ID, updateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminModelRedirectRejectsCycle(t *testing.T) {
	h := newHarness(t)

	body, _ := json.Marshal(gateway.ModelRedirect{Provider: "fake", Source: "a", Target: "b"})
	rec := h.do(t, http.MethodPut, "/admin/model-redirects", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("first upsert status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	cycle, _ := json.Marshal(gateway.ModelRedirect{Provider: "fake", Source: "b", Target: "a"})
	rec = h.do(t, http.MethodPut, "/admin/model-redirects", cycle)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("cyclic upsert status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminLogsChatCompletionsFiltersByRequestType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	must(t, h.store.InsertRequestLog(ctx, &gateway.RequestLog{RequestType: gateway.ReqChatOnce, Provider: "fake"}))
	must(t, h.store.InsertRequestLog(ctx, &gateway.RequestLog{RequestType: gateway.ReqAdminMisc, Provider: "fake"}))

	rec := h.do(t, http.MethodGet, "/admin/logs/chat-completions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []*gateway.RequestLog `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].RequestType != gateway.ReqChatOnce {
		t.Fatalf("expected exactly one chat-completion log, got %+v", resp.Data)
	}
}

func TestAdminSubscriptionDraftThenPublish(t *testing.T) {
	h := newHarness(t)

	draftBody, _ := json.Marshal(map[string]any{"plans": json.RawMessage(`[{"id":"pro"}]`)})
	rec := h.do(t, http.MethodPut, "/admin/subscription/plans/draft", draftBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("draft status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/admin/subscription/plans/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/admin/subscription/plans/published", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get-published status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

