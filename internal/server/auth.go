package server

import (
	"encoding/base64"
	"net/http"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/auth"
)

// sessionCookieName must match the name internal/auth.Resolver reads.
const sessionCookieName = "gw_session"

func setSessionCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

// --- TUI challenge-response ---

func (s *server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.deps.Login.IssueChallenge(r.Context(), req.Fingerprint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ChallengeID string    `json:"challenge_id"`
		Nonce       string    `json:"nonce"`
		ExpiresAt   time.Time `json:"expires_at"`
	}{ChallengeID: c.ChallengeID, Nonce: base64.StdEncoding.EncodeToString(c.Nonce), ExpiresAt: c.ExpiresAt})
}

func (s *server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeID string `json:"challenge_id"`
		Fingerprint string `json:"fingerprint"`
		Signature   string `json:"signature"` // base64
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "signature must be base64"))
		return
	}
	result, err := s.deps.Login.Verify(r.Context(), req.ChallengeID, req.Fingerprint, sig)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SessionID string    `json:"session_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}{SessionID: result.SessionID, ExpiresAt: result.ExpiresAt})
}

// --- Login-code hand-off (TUI -> browser) ---

func (s *server) handleCreateLoginCode(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	if identity.Method != gateway.AuthTuiSession {
		writeError(w, r, gateway.ErrForbidden)
		return
	}
	var req struct {
		TuiSessionID string `json:"tui_session_id"`
		TTLSeconds   int    `json:"ttl_seconds"`
		MaxUses      int    `json:"max_uses"`
		Hint         string `json:"hint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	code, err := s.deps.Login.CreateLoginCode(r.Context(), req.TuiSessionID, ttl, req.MaxUses, 0, req.Hint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Code      string    `json:"code"`
		ExpiresAt time.Time `json:"expires_at"`
		MaxUses   int       `json:"max_uses"`
	}{Code: code.Code, ExpiresAt: code.ExpiresAt, MaxUses: code.MaxUses})
}

func (s *server) handleCodeRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.Login.RedeemCode(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setSessionCookie(w, result.SessionID, result.ExpiresAt)
	writeJSON(w, http.StatusOK, struct {
		SessionID string    `json:"session_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}{SessionID: result.SessionID, ExpiresAt: result.ExpiresAt})
}

// --- Password-based user auth ---

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.UserAuth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResultResponse(result))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.UserAuth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResultResponse(result))
}

func (s *server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	// The raw reset token is discarded here and no reset mail is sent;
	// the response never reveals whether the email matched an account.
	_, _ = s.deps.UserAuth.RequestPasswordReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, errorResponse("ok", "if the account exists, a reset link has been sent"))
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.UserAuth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.UserAuth.ChangePassword(r.Context(), identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	if identity.UserID == "" {
		writeJSON(w, http.StatusOK, identity)
		return
	}
	u, err := s.deps.Store.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	if identity.Method == gateway.AuthWebSession {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			_ = s.deps.Login.RevokeWebSession(r.Context(), cookie.Value)
		}
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type loginResult struct {
	AccessToken      string        `json:"access_token"`
	ExpiresAt        time.Time     `json:"expires_at"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	User             *gateway.User `json:"user"`
}

func loginResultResponse(r *auth.LoginResult) loginResult {
	return loginResult{
		AccessToken:      r.AccessToken,
		ExpiresAt:        r.ExpiresAt,
		RefreshToken:     r.RefreshToken,
		RefreshExpiresAt: r.RefreshExpiresAt,
		User:             r.User,
	}
}
