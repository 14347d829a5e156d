package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHandleHealthzAlwaysOK(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReadyzNoCheckerOK(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReadyzFailingChecker(t *testing.T) {
	h := newHarness(t)
	h.deps.ReadyCheck = func(ctx context.Context) error { return errors.New("db unreachable") }
	h.rebuild()

	rec := h.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
