package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/auth"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/login"
)

// withUserAuth wires a real *auth.UserAuth and *login.Manager against the
// harness's fake store, for tests that exercise password/session flows end
// to end rather than through the FakeAuth identity shortcut.
func (h *harness) withUserAuth(t *testing.T) {
	t.Helper()
	issuer := crypto.NewJWTIssuer("test-secret", time.Hour)
	h.deps.UserAuth = auth.NewUserAuth(h.store, h.store, h.store, issuer, h.clock)
	h.deps.Login = login.New(h.store, h.clock)
	h.rebuild()
}

func TestHandleLoginAndMe(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)

	u, err := h.deps.UserAuth.Register(context.Background(), "person@example.com", "person", "correct horse battery staple", gateway.RoleAdmin)
	must(t, err)

	loginBody, _ := json.Marshal(map[string]string{"email": "person@example.com", "password": "correct horse battery staple"})
	rec := h.do(t, http.MethodPost, "/auth/login", loginBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var result loginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login result: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatalf("expected a non-empty access token")
	}
	if result.User == nil || result.User.ID != u.ID {
		t.Fatalf("expected login result to carry the registered user")
	}
}

func TestHandleLoginWrongPasswordRejected(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)
	_, err := h.deps.UserAuth.Register(context.Background(), "person2@example.com", "person2", "correct horse battery staple", gateway.RoleAdmin)
	must(t, err)

	loginBody, _ := json.Marshal(map[string]string{"email": "person2@example.com", "password": "wrong"})
	rec := h.do(t, http.MethodPost, "/auth/login", loginBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleForgotPasswordNeverLeaksExistence(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)

	body, _ := json.Marshal(map[string]string{"email": "nobody@example.com"})
	rec := h.do(t, http.MethodPost, "/auth/forgot-password", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for an unknown address, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleMeReturnsFullUserWhenPresent(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)
	u, err := h.deps.UserAuth.Register(context.Background(), "me@example.com", "me", "correct horse battery staple", gateway.RoleAdmin)
	must(t, err)
	h.identity.UserID = u.ID

	rec := h.do(t, http.MethodGet, "/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var got gateway.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id = %q, want %q", got.ID, u.ID)
	}
}

func TestHandleMeReturnsBareIdentityWithoutUserRow(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)
	// identity.UserID is empty by default on an unregistered caller (e.g. a
	// bare TUI/admin-key session with no User row).
	h.identity.UserID = ""

	rec := h.do(t, http.MethodGet, "/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleChangePasswordThenLoginWithNewPassword(t *testing.T) {
	h := newHarness(t)
	h.withUserAuth(t)
	u, err := h.deps.UserAuth.Register(context.Background(), "changer@example.com", "changer", "correct horse battery staple", gateway.RoleAdmin)
	must(t, err)
	h.identity.UserID = u.ID

	body, _ := json.Marshal(map[string]string{"old_password": "correct horse battery staple", "new_password": "new horse battery staple"})
	rec := h.do(t, http.MethodPost, "/auth/change-password", body)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", rec.Code, rec.Body.String())
	}

	loginBody, _ := json.Marshal(map[string]string{"email": "changer@example.com", "password": "new horse battery staple"})
	rec = h.do(t, http.MethodPost, "/auth/login", loginBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}
