package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	gateway "github.com/eugener/aigateway/internal"
)

func TestMeTokenCRUDScopedToOwner(t *testing.T) {
	h := newHarness(t)

	createBody, _ := json.Marshal(map[string]string{"name": "my token"})
	rec := h.do(t, http.MethodPost, "/me/tokens", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var created tokenCreateResponse
	must(t, json.Unmarshal(rec.Body.Bytes(), &created))
	if created.OwnerUserID != h.identity.UserID {
		t.Fatalf("owner = %q, want %q", created.OwnerUserID, h.identity.UserID)
	}

	rec = h.do(t, http.MethodGet, "/me/tokens/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodDelete, "/me/tokens/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
}

func TestMeTokenGetRejectsOtherOwnersToken(t *testing.T) {
	h := newHarness(t)
	must(t, h.store.CreateToken(context.Background(), &gateway.ClientToken{
		ID: "atk_other", OwnerUserID: "someone-else", Name: "not yours",
	}))

	rec := h.do(t, http.MethodGet, "/me/tokens/atk_other", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (ownership must not be revealed as 403), body=%s", rec.Code, rec.Body.String())
	}
}

func TestMeBalanceTopupThenBalance(t *testing.T) {
	h := newHarness(t)

	topupBody, _ := json.Marshal(map[string]float64{"amount": 10})
	rec := h.do(t, http.MethodPost, "/me/balance/topups", topupBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("topup status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/me/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance float64 `json:"balance"`
	}
	must(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if resp.Balance != 10 {
		t.Fatalf("balance = %v, want 10", resp.Balance)
	}
}

func TestMeBalanceTopupRejectsNonPositiveAmount(t *testing.T) {
	h := newHarness(t)
	body, _ := json.Marshal(map[string]float64{"amount": -5})
	rec := h.do(t, http.MethodPost, "/me/balance/topups", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestMeLogsRequestsFiltersToCaller(t *testing.T) {
	h := newHarness(t)
	must(t, h.store.InsertRequestLog(context.Background(), &gateway.RequestLog{UserID: h.identity.UserID, Provider: "fake"}))
	must(t, h.store.InsertRequestLog(context.Background(), &gateway.RequestLog{UserID: "someone-else", Provider: "fake"}))

	rec := h.do(t, http.MethodGet, "/me/logs/requests", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp listResponse
	must(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := json.Marshal(resp.Data)
	var logs []*gateway.RequestLog
	must(t, json.Unmarshal(data, &logs))
	if len(logs) != 1 || logs[0].UserID != h.identity.UserID {
		t.Fatalf("expected exactly one log scoped to the caller, got %+v", logs)
	}
}
