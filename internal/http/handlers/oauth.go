// Package handlers contains the REST handlers for the mail-connection API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weddary/weddary/internal/http/httperr"
	mw "github.com/weddary/weddary/internal/http/middlewares"
	"github.com/weddary/weddary/internal/metrics"
	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/observability/logger"
)

// OAuthHandlers exposes the per-event OAuth connection lifecycle.
type OAuthHandlers struct {
	flow *flow.Service
}

func NewOAuthHandlers(s *flow.Service) *OAuthHandlers {
	return &OAuthHandlers{flow: s}
}

type authorizeResponse struct {
	Success bool   `json:"success"`
	AuthURL string `json:"authUrl"`
}

type callbackResponse struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Email    string `json:"email"`
}

type statusResponse struct {
	Success              bool   `json:"success"`
	IsConfigured         bool   `json:"isConfigured"`
	Account              string `json:"account"`
	TokenExpired         bool   `json:"tokenExpired"`
	NeedsReauthorization bool   `json:"needsReauthorization"`
}

type refreshRequest struct {
	EventID int64 `json:"eventId"`
}

type refreshResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authorize handles GET /oauth/{provider}/authorize?eventId=N.
func (h *OAuthHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.authorize"))

	p, ok := provider.Parse(chi.URLParam(r, "provider"))
	if !ok {
		httperr.WriteError(w, r, httperr.ErrRouteNotFound)
		return
	}
	eventID, err := strconv.ParseInt(r.URL.Query().Get("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		httperr.WriteError(w, r, httperr.ErrInvalidEventID)
		return
	}

	authURL, err := h.flow.BeginAuthorization(ctx, eventID, p)
	if err != nil {
		metrics.FlowOperations.WithLabelValues(string(p), "authorize", "error").Inc()
		writeFlowError(w, r, err)
		return
	}
	metrics.FlowOperations.WithLabelValues(string(p), "authorize", "ok").Inc()
	log.Info("authorization url issued", logger.EventID(eventID), logger.Provider(string(p)))

	httperr.WriteJSON(w, http.StatusOK, authorizeResponse{Success: true, AuthURL: authURL})
}

// Callback handles GET /oauth/{provider}/callback?code=...&state=...
// The provider identity inside the verified state is authoritative; the path
// parameter only routes the request.
func (h *OAuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.callback"))

	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		httperr.WriteError(w, r, httperr.ErrMissingCode)
		return
	}
	if state == "" {
		httperr.WriteError(w, r, httperr.ErrInvalidState)
		return
	}

	res, err := h.flow.HandleCallback(ctx, code, state)
	if err != nil {
		metrics.FlowOperations.WithLabelValues(chi.URLParam(r, "provider"), "callback", "error").Inc()
		writeFlowError(w, r, err)
		return
	}
	metrics.FlowOperations.WithLabelValues(string(res.Provider), "callback", "ok").Inc()
	log.Info("mail account connected", logger.Provider(string(res.Provider)), logger.Account(res.Email))

	httperr.WriteJSON(w, http.StatusOK, callbackResponse{
		Success:  true,
		Provider: string(res.Provider),
		Email:    res.Email,
	})
}

// Status handles GET /oauth/status/{provider}?eventId=N.
func (h *OAuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := provider.Parse(chi.URLParam(r, "provider"))
	if !ok {
		httperr.WriteError(w, r, httperr.ErrRouteNotFound)
		return
	}
	eventID, err := strconv.ParseInt(r.URL.Query().Get("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		httperr.WriteError(w, r, httperr.ErrInvalidEventID)
		return
	}

	st, err := h.flow.CheckStatus(ctx, eventID, p)
	if err != nil {
		writeFlowError(w, r, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, statusResponse{
		Success:              true,
		IsConfigured:         st.IsConfigured,
		Account:              st.Account,
		TokenExpired:         st.TokenExpired,
		NeedsReauthorization: st.NeedsReauthorization,
	})
}

// Refresh handles POST /oauth/refresh/{provider} with body {eventId}.
func (h *OAuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.refresh"))
	// Refresh mutates the stored credential; record who asked for it.
	if claims := mw.GetAdminClaims(ctx); claims != nil {
		log = log.With(logger.Any("admin_subject", claims.Subject))
	}

	p, ok := provider.Parse(chi.URLParam(r, "provider"))
	if !ok {
		httperr.WriteError(w, r, httperr.ErrRouteNotFound)
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidJSON.WithCause(err))
		return
	}
	if req.EventID <= 0 {
		httperr.WriteError(w, r, httperr.ErrInvalidEventID)
		return
	}

	expiresAt, err := h.flow.Refresh(ctx, req.EventID, p)
	if err != nil {
		metrics.FlowOperations.WithLabelValues(string(p), "refresh", "error").Inc()
		writeFlowError(w, r, err)
		return
	}
	metrics.FlowOperations.WithLabelValues(string(p), "refresh", "ok").Inc()
	log.Info("token refreshed", logger.EventID(req.EventID), logger.Provider(string(p)))

	httperr.WriteJSON(w, http.StatusOK, refreshResponse{Success: true, ExpiresAt: expiresAt})
}

// writeFlowError maps the orchestrator's error taxonomy onto the stable
// response codes. Provider error bodies feed details after redaction.
func writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		httperr.WriteError(w, r, err)
		return
	}

	var app *httperr.AppError
	switch fe.Kind {
	case flow.KindEventNotFound:
		app = httperr.ErrEventNotFound
	case flow.KindMissingClientID:
		app = httperr.ErrMissingClientID
	case flow.KindInvalidClientCredentials:
		app = httperr.ErrInvalidCredentials
	case flow.KindMissingCredentials:
		app = httperr.ErrMissingCredentials
	case flow.KindRedirectNotAllowed:
		app = httperr.ErrInvalidRedirectURI
	case flow.KindInvalidState:
		app = httperr.ErrInvalidState
	case flow.KindExchangeFailed:
		app = httperr.ErrTokenExchange
	case flow.KindIncompleteTokenResponse:
		app = httperr.ErrMissingTokens
	case flow.KindMissingEmailClaim:
		app = httperr.ErrMissingEmail
	case flow.KindNotConfigured:
		app = httperr.ErrNotConfigured
	case flow.KindRefreshFailed:
		app = httperr.ErrRefresh
	case flow.KindDecryptionFailed:
		app = httperr.ErrDecryption
	default:
		app = httperr.ErrInternal
	}
	app = app.WithCause(err)

	// Surface the provider's own diagnostics (redirect_uri_mismatch,
	// invalid_grant) so the tenant admin can act on them.
	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) && apiErr.Body != "" {
		app = app.WithDetails(httpclient.Redact(apiErr.Body))
	} else if fe.Detail != "" {
		app = app.WithDetails(fe.Detail)
	}

	httperr.WriteError(w, r, app)
}
