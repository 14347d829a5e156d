package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/clock"
	"github.com/eugener/aigateway/internal/dispatch"
	"github.com/eugener/aigateway/internal/provider"
	"github.com/eugener/aigateway/internal/router"
	"github.com/eugener/aigateway/internal/testutil"
)

// harness wires a server against in-memory fakes, mirroring the way
// cmd/gateway assembles production dependencies but with testutil doubles
// standing in for storage, auth, and upstream providers.
type harness struct {
	store    *testutil.FakeStore
	clock    *clock.FixedClock
	deps     Deps
	handler  http.Handler
	identity *gateway.Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewFakeStore()
	fc := clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	reg := provider.NewRegistry()
	reg.Register("fake", &testutil.FakeProvider{ProviderName: "fake"})

	resolver := router.New(store)
	rotator := provider.NewKeyRotator()
	disp := dispatch.New(store, reg, resolver, rotator, fc, gateway.KeyLogNone)

	identity := &gateway.Identity{Method: gateway.AuthJWT, UserID: "user-1", Role: gateway.RoleSuperadmin}
	auth := &testutil.FakeAuth{Identity: identity}

	deps := Deps{
		Auth:      auth,
		Dispatch:  disp,
		Store:     store,
		Providers: reg,
		Clock:     fc,
	}

	return &harness{store: store, clock: fc, deps: deps, handler: New(deps), identity: identity}
}

// rebuild reconstructs the handler from h.deps, letting a test mutate deps
// (e.g. swap ReadyCheck or Auth) before re-wiring the route table.
func (h *harness) rebuild() {
	h.handler = New(h.deps)
}

func (h *harness) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}
