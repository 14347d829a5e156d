package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/storage"
)

// ownToken loads a token by id and verifies it is owned by the caller,
// returning ErrNotFound (not ErrForbidden) to avoid revealing whether a
// token id owned by someone else exists.
func (s *server) ownToken(r *http.Request, id string) (*gateway.ClientToken, error) {
	identity := gateway.IdentityFromContext(r.Context())
	tok, err := s.deps.Store.GetToken(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if tok.OwnerUserID != identity.UserID {
		return nil, gateway.ErrNotFound
	}
	return tok, nil
}

func (s *server) handleMeListTokens(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	offset, limit := parsePagination(r)
	tokens, err := s.deps.Store.ListTokens(r.Context(), identity.UserID, offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: tokens, Pagination: pagination{Offset: offset, Limit: limit}})
}

func (s *server) handleMeCreateToken(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	var req tokenCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	expiresAt, ok := parseExpiresAt(w, req.ExpiresAt)
	if !ok {
		return
	}
	secret, err := crypto.RandomAlphanumeric(40)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tok := &gateway.ClientToken{
		ID:             gateway.ClientTokenID(secret),
		Secret:         gateway.HashSecret(secret),
		OwnerUserID:    identity.UserID,
		Name:           req.Name,
		AllowedModels:  req.AllowedModels,
		ModelBlacklist: req.ModelBlacklist,
		MaxAmount:      req.MaxAmount,
		MaxTokens:      req.MaxTokens,
		Enabled:        true,
		ExpiresAt:      expiresAt,
		CreatedAt:      s.deps.Clock.Now(),
	}
	if err := s.deps.Store.CreateToken(r.Context(), tok); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenCreateResponse{ClientToken: tok, Secret: secret})
}

func (s *server) handleMeGetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.ownToken(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *server) handleMeUpdateToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.ownToken(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Name    *string `json:"name,omitempty"`
		Enabled *bool   `json:"enabled,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	if err := s.deps.Store.UpdateToken(r.Context(), existing); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.AuthResolver != nil {
		s.deps.AuthResolver.InvalidateToken(id)
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) handleMeDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.ownToken(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Store.DeleteToken(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.AuthResolver != nil {
		s.deps.AuthResolver.InvalidateToken(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMeBalance(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	sum, err := s.deps.Store.SumBalance(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Balance float64 `json:"balance"`
	}{Balance: sum})
}

func (s *server) handleMeBalanceTopup(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	var req struct {
		Amount float64 `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "amount must be positive"))
		return
	}
	tx := &gateway.BalanceTransaction{
		ID:        chi.URLParam(r, "id"),
		UserID:    identity.UserID,
		Kind:      gateway.BalanceTopup,
		Amount:    req.Amount,
		CreatedAt: s.deps.Clock.Now(),
	}
	if tx.ID == "" {
		tx.ID = gateway.HashSecret(identity.UserID + tx.CreatedAt.String())
	}
	if err := s.deps.Store.RecordBalanceTransaction(r.Context(), tx); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) handleMeLogsRequests(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	offset, limit := parsePagination(r)
	logs, err := s.deps.Store.ListRequestLogs(r.Context(), storage.RequestLogFilter{UserID: identity.UserID, Offset: offset, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: logs, Pagination: pagination{Offset: offset, Limit: limit}})
}
