package server

import "net/http"

var (
	healthzOK = []byte(`{"status":"ok"}`)
	readyzOK  = []byte(`{"status":"ready"}`)
)

// handleHealthz is a liveness probe: it reports process health, never
// dependency health, so it never blocks on storage or upstream providers.
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(http.StatusOK)
	w.Write(healthzOK)
}

// handleReadyz is a readiness probe: it runs deps.ReadyCheck (typically a
// storage ping) and returns 503 while the dependency is unavailable.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse("not_ready", err.Error()))
			return
		}
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(http.StatusOK)
	w.Write(readyzOK)
}
