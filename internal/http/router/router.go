// Package router mounts the mail-connection API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weddary/weddary/internal/http/handlers"
	"github.com/weddary/weddary/internal/http/httperr"
	mw "github.com/weddary/weddary/internal/http/middlewares"
	"github.com/weddary/weddary/internal/rate"
)

// Deps carries everything the router mounts. Nil limiters disable rate
// limiting for that route; AdminGate.Enforce=false disables the auth gate.
type Deps struct {
	OAuth  *handlers.OAuthHandlers
	Mail   *handlers.MailHandlers
	Health *handlers.HealthHandlers

	AdminGate mw.AdminGateConfig

	AuthorizeLimiter rate.Limiter
	CallbackLimiter  rate.Limiter
	RefreshLimiter   rate.Limiter
}

// New builds the chi router with the full middleware stack. Request id,
// logging and panic recovery wrap everything; rate limits and the admin gate
// apply per route. The callback route carries no admin gate: the provider
// redirects the browser there and the signed state is the authentication.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())
	r.Use(mw.WithRecover())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperr.WriteError(w, req, httperr.ErrRouteNotFound)
	})

	r.Get("/healthz", d.Health.Health)
	r.Get("/readyz", d.Health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/oauth", func(r chi.Router) {
		r.Method(http.MethodGet, "/{provider}/authorize", mw.ChainFunc(
			d.OAuth.Authorize,
			mw.WithMetrics("/oauth/{provider}/authorize"),
			mw.WithRateLimit(d.AuthorizeLimiter, mw.IPRateKey),
			mw.RequireEventAdmin(d.AdminGate, mw.EventIDFromQuery),
		))
		r.Method(http.MethodGet, "/{provider}/callback", mw.ChainFunc(
			d.OAuth.Callback,
			mw.WithMetrics("/oauth/{provider}/callback"),
			mw.WithRateLimit(d.CallbackLimiter, mw.IPRateKey),
		))
		r.Method(http.MethodGet, "/status/{provider}", mw.ChainFunc(
			d.OAuth.Status,
			mw.WithMetrics("/oauth/status/{provider}"),
			mw.RequireEventAdmin(d.AdminGate, mw.EventIDFromQuery),
		))
		r.Method(http.MethodPost, "/refresh/{provider}", mw.ChainFunc(
			d.OAuth.Refresh,
			mw.WithMetrics("/oauth/refresh/{provider}"),
			mw.WithRateLimit(d.RefreshLimiter, mw.IPRateKey),
			mw.RequireEventAdmin(d.AdminGate, mw.EventIDFromBody),
		))
	})

	if d.Mail != nil {
		r.Method(http.MethodPost, "/events/{eventId}/mail/test", mw.ChainFunc(
			d.Mail.TestSend,
			mw.WithMetrics("/events/{eventId}/mail/test"),
			mw.RequireEventAdmin(d.AdminGate, mw.EventIDFromPath("eventId")),
		))
	}

	return r
}
