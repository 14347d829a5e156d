package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

// bodyPool reuses buffers for request body reads, avoiding per-request
// allocations from json.NewDecoder (which cannot be pooled/reset).
var bodyPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// maxRequestBody is the maximum allowed request body size (4 MB).
const maxRequestBody = 4 << 20

// decodeRequestBody reads the request body via bodyPool, unmarshals JSON into
// v, and returns false (writing a 400) on error. Parse errors are logged
// server-side; clients receive a static message to avoid leaking internals.
func decodeRequestBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	buf := bodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	if _, err := buf.ReadFrom(r.Body); err != nil {
		bodyPool.Put(buf)
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "invalid request body"))
		return false
	}
	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		bodyPool.Put(buf)
		slog.LogAttrs(r.Context(), slog.LevelWarn, "request decode error",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse("config_error", "invalid request body"))
		return false
	}
	bodyPool.Put(buf)
	return true
}

// clientToken loads the full ClientToken backing the authenticated
// identity. Dispatch needs the row (budget, allow/deny lists), not just
// the id the resolver cached.
func (s *server) clientToken(r *http.Request) (*gateway.ClientToken, error) {
	identity := gateway.IdentityFromContext(r.Context())
	if identity == nil || identity.ClientTokenID == "" {
		return nil, gateway.ErrUnauthorized
	}
	return s.deps.Store.GetToken(r.Context(), identity.ClientTokenID)
}

func (s *server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChatRequest
	if !decodeRequestBody(w, r, &req) {
		return
	}

	tok, err := s.clientToken(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Stream {
		s.handleChatCompletionStream(w, r, tok, &req)
		return
	}

	resp, err := s.deps.Dispatch.ChatCompletion(r.Context(), tok, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleChatCompletionStream(w http.ResponseWriter, r *http.Request, tok *gateway.ClientToken, req *gateway.ChatRequest) {
	ch, err := s.deps.Dispatch.ChatCompletionStream(r.Context(), tok, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSSEHeaders(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("ResponseWriter does not implement http.Flusher")
		return
	}
	flusher.Flush()

	var keepAlive *time.Ticker
	defer func() {
		if keepAlive != nil {
			keepAlive.Stop()
		}
	}()

	for {
		if keepAlive == nil {
			select {
			case chunk, chOpen := <-ch:
				if !s.writeStreamChunk(w, flusher, r, chunk, chOpen) {
					return
				}
				keepAlive = time.NewTicker(15 * time.Second)
			case <-r.Context().Done():
				return
			}
			continue
		}

		select {
		case chunk, chOpen := <-ch:
			if !s.writeStreamChunk(w, flusher, r, chunk, chOpen) {
				return
			}
		case <-keepAlive.C:
			writeSSEKeepAlive(w)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeStreamChunk writes a single relayed frame. Accounting already
// happened inside dispatch once the terminal frame was observed; the
// handler's only job is framing bytes onto the wire. Returns false once the
// stream is over (channel closed or a terminal error frame was written).
func (s *server) writeStreamChunk(w http.ResponseWriter, flusher http.Flusher, r *http.Request, chunk gateway.StreamChunk, chOpen bool) bool {
	if !chOpen {
		writeSSEDone(w)
		flusher.Flush()
		return false
	}
	if chunk.Err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "stream error", slog.String("error", chunk.Err.Error()))
		writeSSEError(w, "upstream stream error")
		writeSSEDone(w)
		flusher.Flush()
		return false
	}
	if chunk.Done {
		writeSSEDone(w)
		flusher.Flush()
		return false
	}
	writeSSEData(w, chunk.Data)
	flusher.Flush()
	return true
}

type tokenBalanceResponse struct {
	AmountSpent           float64  `json:"amount_spent"`
	MaxAmount             *float64 `json:"max_amount,omitempty"`
	PromptTokensSpent     int64    `json:"prompt_tokens_spent"`
	CompletionTokensSpent int64    `json:"completion_tokens_spent"`
	TotalTokensSpent      int64    `json:"total_tokens_spent"`
	MaxTokens             *int64   `json:"max_tokens,omitempty"`
}

func (s *server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	tok, err := s.clientToken(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenBalanceResponse{
		AmountSpent:           tok.AmountSpent,
		MaxAmount:             tok.MaxAmount,
		PromptTokensSpent:     tok.PromptTokensSpent,
		CompletionTokensSpent: tok.CompletionTokensSpent,
		TotalTokensSpent:      tok.TotalTokensSpent,
		MaxTokens:             tok.MaxTokens,
	})
}

func (s *server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	identity := gateway.IdentityFromContext(r.Context())
	offset, limit := parsePagination(r)
	logs, err := s.deps.Store.ListRequestLogs(r.Context(), requestLogFilterForClientToken(identity.ClientTokenID, offset, limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: logs, Pagination: pagination{Offset: offset, Limit: limit}})
}
