// Package server implements the HTTP transport layer for the AI model gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/auth"
	"github.com/eugener/aigateway/internal/dispatch"
	"github.com/eugener/aigateway/internal/login"
	"github.com/eugener/aigateway/internal/provider"
	"github.com/eugener/aigateway/internal/ratelimit"
	"github.com/eugener/aigateway/internal/storage"
	"github.com/eugener/aigateway/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth         gateway.Authenticator // *auth.Resolver in production
	AuthResolver *auth.Resolver        // set alongside Auth so handlers can invalidate the token cache; nil in tests
	UserAuth     *auth.UserAuth
	Login        *login.Manager
	Dispatch     *dispatch.Service
	Store        storage.Store // nil = no admin/me CRUD (for tests)
	Providers    *provider.Registry
	Clock        gateway.Clock

	KeyLogStrategy gateway.KeyLogStrategy

	RateLimiter *ratelimit.Registry // nil = no rate limiting
	DefaultRPM  int64
	DefaultTPM  int64

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	ReadyCheck     ReadyChecker
}

type server struct {
	deps Deps
}

// New creates an http.Handler with every spec.md §4.8 route wired, mounted
// at both "/" and "/api/" so the gateway works whether or not a reverse
// proxy strips a path prefix.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	inner := chi.NewRouter()

	inner.Get("/healthz", s.handleHealthz)
	inner.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		inner.Handle("/metrics", deps.MetricsHandler)
	}

	inner.Get("/v1/models", s.handleListModels)
	inner.Get("/models/{provider}", s.handleProviderModels)

	inner.Group(func(r chi.Router) {
		r.Use(s.authenticate, s.rateLimit)
		r.Post("/v1/chat/completions", s.handleChatCompletion)
		r.Get("/v1/token/balance", s.handleTokenBalance)
		r.Get("/v1/token/usage", s.handleTokenUsage)
	})

	inner.Post("/auth/challenge", s.handleAuthChallenge)
	inner.Post("/auth/verify", s.handleAuthVerify)
	inner.Post("/auth/code/redeem", s.handleCodeRedeem)
	inner.Post("/auth/login", s.handleLogin)
	inner.Post("/auth/refresh", s.handleRefresh)
	inner.Post("/auth/forgot-password", s.handleForgotPassword)
	inner.Post("/auth/reset-password", s.handleResetPassword)

	inner.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/auth/login-codes", s.handleCreateLoginCode)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/change-password", s.handleChangePassword)
		r.Post("/auth/logout", s.handleLogout)
	})

	if deps.Store != nil {
		inner.Route("/admin", func(r chi.Router) {
			r.Use(s.authenticate)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/metrics/summary", s.handleMetricsSummary)
				r.Get("/metrics/series", s.handleMetricsSeries)
			})

			r = r.With(s.requireSuperadmin)

			r.Get("/providers", s.handleListProviders)
			r.Post("/providers", s.handleCreateProvider)
			r.Get("/providers/{name}", s.handleGetProvider)
			r.Put("/providers/{name}", s.handleUpdateProvider)
			r.Delete("/providers/{name}", s.handleDeleteProvider)

			r.Get("/keys", s.handleListKeys)
			r.Post("/keys", s.handleCreateKey)
			r.Put("/keys/{id}", s.handleUpdateKey)
			r.Delete("/keys/{id}", s.handleDeleteKey)

			r.Get("/tokens", s.handleListTokens)
			r.Post("/tokens", s.handleCreateToken)
			r.Get("/tokens/{id}", s.handleGetToken)
			r.Put("/tokens/{id}", s.handleUpdateToken)
			r.Delete("/tokens/{id}", s.handleDeleteToken)

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Get("/users/export", s.handleExportUsers)
			r.Get("/users/{id}", s.handleGetUser)
			r.Put("/users/{id}", s.handleUpdateUser)
			r.Delete("/users/{id}", s.handleDeleteUser)

			r.Get("/model-prices", s.handleListModelPrices)
			r.Put("/model-prices", s.handleUpsertModelPrice)

			r.Get("/model-redirects", s.handleListModelRedirects)
			r.Put("/model-redirects", s.handleUpsertModelRedirect)
			r.Delete("/model-redirects", s.handleDeleteModelRedirect)

			r.Get("/logs/requests", s.handleLogsRequests)
			r.Get("/logs/chat-completions", s.handleLogsChatCompletions)
			r.Get("/logs/operations", s.handleLogsOperations)

			r.Get("/subscription/plans/{scope}", s.handleGetSubscriptionPlans)
			r.Put("/subscription/plans/draft", s.handlePutSubscriptionDraft)
			r.Post("/subscription/plans/publish", s.handlePublishSubscriptionPlans)
		})

		inner.Route("/me", func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/tokens", s.handleMeListTokens)
			r.Post("/tokens", s.handleMeCreateToken)
			r.Get("/tokens/{id}", s.handleMeGetToken)
			r.Put("/tokens/{id}", s.handleMeUpdateToken)
			r.Delete("/tokens/{id}", s.handleMeDeleteToken)
			r.Get("/balance", s.handleMeBalance)
			r.Post("/balance/topups", s.handleMeBalanceTopup)
			r.Get("/logs/requests", s.handleMeLogsRequests)
		})
	}

	outer := chi.NewRouter()
	outer.Use(s.securityHeaders, s.recovery, s.requestID, s.logging)
	if deps.Metrics != nil {
		outer.Use(metricsMiddleware(deps.Metrics))
	}
	outer.Mount("/", inner)
	outer.Mount("/api", inner)
	return outer
}
