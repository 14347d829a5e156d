package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	gateway "github.com/eugener/aigateway/internal"
)

// jsonCT is a pre-allocated header value slice. Direct map assignment
// avoids the []string{v} alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
}

// apiErrorBody is the spec.md §4.8 error shape: {"code": "...", "message": "..."}.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorResponse(code, message string) apiErrorBody {
	return apiErrorBody{Code: code, Message: message}
}

// writeError maps err to the closed sentinel taxonomy's HTTP status and
// {code, message} body. For 5xx statuses the error is logged server-side
// and the message is only the status text, so that detail isn't returned
// to the caller; 4xx messages carry err.Error().
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := errorKind(err)
	msg := err.Error()
	if status >= 500 {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse(code, msg))
}

// errorKind maps a gateway sentinel error to its spec.md §4.8 kind and
// HTTP status. Every error a handler returns must be (or wrap) one of
// internal's closed sentinels, or it falls through to "internal"/500.
func errorKind(err error) (kind string, status int) {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized),
		errors.Is(err, gateway.ErrBudgetExceeded),
		errors.Is(err, gateway.ErrTokenDisabled),
		errors.Is(err, gateway.ErrTokenExpired),
		errors.Is(err, gateway.ErrChallengeExpired),
		errors.Is(err, gateway.ErrCodeInvalid),
		errors.Is(err, gateway.ErrRefreshReused):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, gateway.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, gateway.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, gateway.ErrConflict):
		return "conflict", http.StatusConflict
	case errors.Is(err, gateway.ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrBadRequest),
		errors.Is(err, gateway.ErrModelNotAllowed),
		errors.Is(err, gateway.ErrConfigError),
		errors.Is(err, gateway.ErrRedirectCycle),
		errors.Is(err, gateway.ErrSSRFBlocked):
		return "config_error", http.StatusBadRequest
	case errors.Is(err, gateway.ErrNoProviders), errors.Is(err, gateway.ErrNoAPIKeys):
		return "balance_error", http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrProviderError):
		return "http_error", http.StatusBadGateway
	default:
		return "internal", http.StatusInternalServerError
	}
}
