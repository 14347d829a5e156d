package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/crypto"
	"github.com/eugener/aigateway/internal/router"
	"github.com/eugener/aigateway/internal/storage"
)

// --- Shared admin helpers ---

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeRequestBody(w, r, v)
}

// writeAdminError returns a closed-taxonomy-mapped response via writeError:
// 5xx errors are logged in full server-side and answered with the status
// text only.
func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// parseSinceUntil validates optional since/until RFC3339 query params.
func parseSinceUntil(w http.ResponseWriter, r *http.Request) (since, until *time.Time, ok bool) {
	q := r.URL.Query()
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "invalid since format, use RFC3339"))
			return nil, nil, false
		}
		since = &t
	}
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "invalid until format, use RFC3339"))
			return nil, nil, false
		}
		until = &t
	}
	return since, until, true
}

func parseExpiresAt(w http.ResponseWriter, raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "invalid expires_at format"))
		return nil, false
	}
	return &t, true
}

func requestLogFilterForClientToken(clientTokenID string, offset, limit int) storage.RequestLogFilter {
	return storage.RequestLogFilter{ClientTokenID: clientTokenID, Offset: offset, Limit: limit}
}

// --- Providers ---

func (s *server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.deps.Store.ListProviders(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: providers, Pagination: pagination{Limit: len(providers)}})
}

func (s *server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var p gateway.Provider
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "name is required"))
		return
	}
	now := s.deps.Clock.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.deps.Store.CreateProvider(r.Context(), &p); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/providers/"+p.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.deps.Store.GetProvider(r.Context(), name)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	existing, err := s.deps.Store.GetProvider(r.Context(), name)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if !decodeJSON(w, r, existing) {
		return
	}
	existing.Name = name
	existing.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Store.UpdateProvider(r.Context(), existing); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.deps.Store.DeleteProvider(r.Context(), name); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Provider keys ---

// keyCreateRequest carries a plaintext key value; it is protected per
// s.deps.KeyLogStrategy before being persisted and never re-exposed.
type keyCreateRequest struct {
	Provider string `json:"provider"`
	Value    string `json:"value"`
	Active   bool   `json:"active"`
	Weight   int    `json:"weight"`
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")
	keys, err := s.deps.Store.ListProviderKeys(r.Context(), providerName)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	masked := make([]maskedKey, len(keys))
	for i, k := range keys {
		hint := ""
		if plain, err := crypto.Unprotect(s.deps.KeyLogStrategy, k.Provider, k.Encoded, k.Encrypted); err == nil {
			hint = crypto.MaskKey(s.deps.KeyLogStrategy, plain)
		}
		masked[i] = maskedKey{ID: k.ID, Provider: k.Provider, Active: k.Active, Weight: k.Weight, Hint: hint}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: masked, Pagination: pagination{Limit: len(masked)}})
}

type maskedKey struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Active   bool   `json:"active"`
	Weight   int    `json:"weight"`
	Hint     string `json:"hint,omitempty"`
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req keyCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Provider == "" || req.Value == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "provider and value are required"))
		return
	}
	encoded, encrypted := crypto.Protect(s.deps.KeyLogStrategy, req.Provider, req.Value)
	k := &gateway.ProviderKey{
		ID:        uuid.NewString(),
		Provider:  req.Provider,
		Encoded:   encoded,
		Encrypted: encrypted,
		Active:    req.Active,
		Weight:    req.Weight,
	}
	if err := s.deps.Store.CreateProviderKey(r.Context(), k); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, maskedKey{ID: k.ID, Provider: k.Provider, Active: k.Active, Weight: k.Weight, Hint: crypto.MaskKey(s.deps.KeyLogStrategy, req.Value)})
}

func (s *server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Active *bool `json:"active,omitempty"`
		Weight *int  `json:"weight,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	providerName := r.URL.Query().Get("provider")
	keys, err := s.deps.Store.ListProviderKeys(r.Context(), providerName)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	var found *gateway.ProviderKey
	for _, k := range keys {
		if k.ID == id {
			found = k
			break
		}
	}
	if found == nil {
		writeAdminError(w, r, gateway.ErrNotFound)
		return
	}
	if req.Active != nil {
		found.Active = *req.Active
	}
	if req.Weight != nil {
		found.Weight = *req.Weight
	}
	if err := s.deps.Store.UpdateProviderKey(r.Context(), found); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskedKey{ID: found.ID, Provider: found.Provider, Active: found.Active, Weight: found.Weight})
}

func (s *server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteProviderKey(r.Context(), id); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Client tokens ---

func (s *server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	tokens, err := s.deps.Store.ListTokens(r.Context(), r.URL.Query().Get("owner_user_id"), offset, limit)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: tokens, Pagination: pagination{Offset: offset, Limit: limit}})
}

type tokenCreateRequest struct {
	OwnerUserID    string   `json:"owner_user_id"`
	Name           string   `json:"name"`
	AllowedModels  []string `json:"allowed_models,omitempty"`
	ModelBlacklist []string `json:"model_blacklist,omitempty"`
	MaxAmount      *float64 `json:"max_amount,omitempty"`
	MaxTokens      *int64   `json:"max_tokens,omitempty"`
	ExpiresAt      *string  `json:"expires_at,omitempty"`
}

type tokenCreateResponse struct {
	*gateway.ClientToken
	Secret string `json:"secret"`
}

func (s *server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
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
		writeAdminError(w, r, err)
		return
	}
	tok := &gateway.ClientToken{
		ID:             gateway.ClientTokenID(secret),
		Secret:         gateway.HashSecret(secret),
		OwnerUserID:    req.OwnerUserID,
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
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenCreateResponse{ClientToken: tok, Secret: secret})
}

func (s *server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.deps.Store.GetToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.deps.Store.GetToken(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	var req struct {
		Name           *string  `json:"name,omitempty"`
		AllowedModels  []string `json:"allowed_models,omitempty"`
		ModelBlacklist []string `json:"model_blacklist,omitempty"`
		MaxAmount      *float64 `json:"max_amount,omitempty"`
		MaxTokens      *int64   `json:"max_tokens,omitempty"`
		Enabled        *bool    `json:"enabled,omitempty"`
		ExpiresAt      *string  `json:"expires_at,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.AllowedModels != nil {
		existing.AllowedModels = req.AllowedModels
	}
	if req.ModelBlacklist != nil {
		existing.ModelBlacklist = req.ModelBlacklist
	}
	if req.MaxAmount != nil {
		existing.MaxAmount = req.MaxAmount
	}
	if req.MaxTokens != nil {
		existing.MaxTokens = req.MaxTokens
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	if req.ExpiresAt != nil {
		expiresAt, ok := parseExpiresAt(w, req.ExpiresAt)
		if !ok {
			return
		}
		existing.ExpiresAt = expiresAt
	}
	if err := s.deps.Store.UpdateToken(r.Context(), existing); err != nil {
		writeAdminError(w, r, err)
		return
	}
	if s.deps.AuthResolver != nil {
		s.deps.AuthResolver.InvalidateToken(id)
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteToken(r.Context(), id); err != nil {
		writeAdminError(w, r, err)
		return
	}
	if s.deps.AuthResolver != nil {
		s.deps.AuthResolver.InvalidateToken(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Users ---

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	users, err := s.deps.Store.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: users, Pagination: pagination{Offset: offset, Limit: limit}})
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string      `json:"email"`
		Username string      `json:"username"`
		Password string      `json:"password"`
		Role     gateway.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.deps.UserAuth.Register(r.Context(), req.Email, req.Username, req.Password, req.Role)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.deps.Store.GetUser(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	var req struct {
		FirstName *string            `json:"first_name,omitempty"`
		LastName  *string            `json:"last_name,omitempty"`
		Phone     *string            `json:"phone,omitempty"`
		Status    *gateway.UserStatus `json:"status,omitempty"`
		Role      *gateway.Role       `json:"role,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FirstName != nil {
		existing.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		existing.LastName = *req.LastName
	}
	if req.Phone != nil {
		existing.Phone = *req.Phone
	}
	if req.Status != nil {
		existing.Status = *req.Status
	}
	if req.Role != nil {
		existing.Role = *req.Role
	}
	existing.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Store.UpdateUser(r.Context(), existing); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportUsers streams every user as CSV, for operator offline review.
func (s *server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Store.ListUsers(r.Context(), 0, 1_000_000)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "username", "email", "role", "status", "created_at"})
	for _, u := range users {
		cw.Write([]string{u.ID, u.Username, u.Email, string(u.Role), string(u.Status), u.CreatedAt.Format(time.RFC3339)})
	}
	cw.Flush()
}

// --- Model prices & redirects ---

func (s *server) handleListModelPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.deps.Store.ListModelPrices(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: prices, Pagination: pagination{Limit: len(prices)}})
}

func (s *server) handleUpsertModelPrice(w http.ResponseWriter, r *http.Request) {
	var p gateway.ModelPrice
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.Provider == "" || p.Model == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "provider and model are required"))
		return
	}
	if err := s.deps.Store.UpsertModelPrice(r.Context(), &p); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleListModelRedirects(w http.ResponseWriter, r *http.Request) {
	redirects, err := s.deps.Store.ListModelRedirects(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: redirects, Pagination: pagination{Limit: len(redirects)}})
}

func (s *server) handleUpsertModelRedirect(w http.ResponseWriter, r *http.Request) {
	var req gateway.ModelRedirect
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Provider == "" || req.Source == "" || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "provider, source, and target are required"))
		return
	}

	existing, err := s.deps.Store.ListModelRedirects(r.Context(), req.Provider)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	edges := make(map[string]string, len(existing)+1)
	for _, e := range existing {
		edges[e.Source] = e.Target
	}
	edges[req.Source] = req.Target
	if err := router.ValidateRedirectMap(edges); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", err.Error()))
		return
	}

	now := s.deps.Clock.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	if err := s.deps.Store.UpsertModelRedirect(r.Context(), &req); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *server) handleDeleteModelRedirect(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	source := r.URL.Query().Get("source")
	if provider == "" || source == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "provider and source query params are required"))
		return
	}
	if err := s.deps.Store.DeleteModelRedirect(r.Context(), provider, source); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Request / operation logs ---

func (s *server) handleLogsRequests(w http.ResponseWriter, r *http.Request) {
	s.writeRequestLogs(w, r, "")
}

func (s *server) handleLogsChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.writeRequestLogs(w, r, gateway.ReqChatOnce)
}

func (s *server) handleLogsOperations(w http.ResponseWriter, r *http.Request) {
	s.writeRequestLogs(w, r, gateway.ReqAdminMisc)
}

// writeRequestLogs lists RequestLog rows. cursor is treated as an offset:
// storage.RequestLogFilter has no boundary-id field to page on.
func (s *server) writeRequestLogs(w http.ResponseWriter, r *http.Request, requestType gateway.RequestType) {
	since, until, ok := parseSinceUntil(w, r)
	if !ok {
		return
	}
	offset, limit := parsePagination(r)
	if c := r.URL.Query().Get("cursor"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n >= 0 {
			offset = n
		}
	}
	filter := storage.RequestLogFilter{
		ClientTokenID: r.URL.Query().Get("client_token_id"),
		UserID:        r.URL.Query().Get("user_id"),
		Provider:      r.URL.Query().Get("provider"),
		Since:         since,
		Until:         until,
		Offset:        offset,
		Limit:         limit,
	}
	logs, err := s.deps.Store.ListRequestLogs(r.Context(), filter)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if requestType != "" {
		filtered := make([]*gateway.RequestLog, 0, len(logs))
		for _, l := range logs {
			if l.RequestType == requestType {
				filtered = append(filtered, l)
			}
		}
		logs = filtered
	}
	nextCursor := 0
	if len(logs) == limit {
		nextCursor = offset + limit
	}
	writeJSON(w, http.StatusOK, struct {
		Data       []*gateway.RequestLog `json:"data"`
		NextCursor int                   `json:"next_cursor,omitempty"`
	}{Data: logs, NextCursor: nextCursor})
}

// --- Metrics ---

func (s *server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	since, until, ok := parseSinceUntil(w, r)
	if !ok {
		return
	}
	if since == nil {
		t := s.deps.Clock.Now().Add(-24 * time.Hour)
		since = &t
	}
	if until == nil {
		t := s.deps.Clock.Now()
		until = &t
	}
	summary, err := s.deps.Store.SummarizeRequestLogs(r.Context(), *since, *until)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleMetricsSeries(w http.ResponseWriter, r *http.Request) {
	// The admin metrics surface reports recent aggregates, not a true
	// historical time series; storage.SummarizeRequestLogs has no grouping
	// by bucket, so one summary row stands in for the whole window.
	s.handleMetricsSummary(w, r)
}

// --- Subscription plans ---

func (s *server) handleGetSubscriptionPlans(w http.ResponseWriter, r *http.Request) {
	scope := gateway.SubscriptionScope(chi.URLParam(r, "scope"))
	if scope != gateway.SubscriptionDraft && scope != gateway.SubscriptionPublished {
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "scope must be draft or published"))
		return
	}
	plans, err := s.deps.Store.GetSubscriptionPlans(r.Context(), scope)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *server) handlePutSubscriptionDraft(w http.ResponseWriter, r *http.Request) {
	var raw struct {
		Plans json.RawMessage `json:"plans"`
	}
	if !decodeJSON(w, r, &raw) {
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	p := &gateway.SubscriptionPlans{
		Scope:     gateway.SubscriptionDraft,
		Plans:     raw.Plans,
		UpdatedAt: s.deps.Clock.Now(),
		UpdatedBy: identity.UserID,
	}
	if err := s.deps.Store.PutSubscriptionPlans(r.Context(), p); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handlePublishSubscriptionPlans(w http.ResponseWriter, r *http.Request) {
	draft, err := s.deps.Store.GetSubscriptionPlans(r.Context(), gateway.SubscriptionDraft)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	identity := gateway.IdentityFromContext(r.Context())
	published := &gateway.SubscriptionPlans{
		Scope:     gateway.SubscriptionPublished,
		Plans:     draft.Plans,
		UpdatedAt: s.deps.Clock.Now(),
		UpdatedBy: identity.UserID,
	}
	if err := s.deps.Store.PutSubscriptionPlans(r.Context(), published); err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, published)
}

