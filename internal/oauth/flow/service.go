// Package flow is the OAuth connection orchestrator: it builds authorize
// URLs, redeems provider callbacks, reports connection status and refreshes
// access tokens, independently per (event, provider).
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/metrics"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/observability/logger"
	"github.com/weddary/weddary/internal/security/oauthstate"
	"github.com/weddary/weddary/internal/security/redirect"
	"github.com/weddary/weddary/internal/security/secretbox"
)

// ClientDefaults is the process-wide fallback client configuration for one
// provider, used only when the tenant has not saved its own.
type ClientDefaults struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// ConsumedStates enforces single-use state tokens. MarkConsumed returns
// false when the key was already present. Implementations live in
// internal/cache; a nil ConsumedStates degrades to TTL-only protection.
type ConsumedStates interface {
	MarkConsumed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Deps wires the orchestrator. Everything is injected; the service reads no
// ambient state.
type Deps struct {
	Store  credential.Store
	Events credential.EventResolver
	Box    *secretbox.Box
	States *oauthstate.Signer
	HTTP   *httpclient.Client

	// Consumed is optional single-use state tracking.
	Consumed ConsumedStates

	// Defaults maps provider -> process-wide fallback client config.
	Defaults map[provider.ID]ClientDefaults

	// AllowedRedirectHosts is the redirect-URI host allow-list.
	AllowedRedirectHosts []string

	// ExpiryBuffer defaults to credential.DefaultExpiryBuffer.
	ExpiryBuffer time.Duration

	// Profiles overrides the static registry. Test hook; nil means
	// provider.Get.
	Profiles func(provider.ID) (*provider.Profile, bool)
}

// Service implements the connection state machine.
type Service struct {
	store    credential.Store
	events   credential.EventResolver
	box      *secretbox.Box
	states   *oauthstate.Signer
	http     *httpclient.Client
	consumed ConsumedStates

	defaults     map[provider.ID]ClientDefaults
	allowedHosts []string
	expiryBuffer time.Duration
	profiles     func(provider.ID) (*provider.Profile, bool)

	// refreshGroup collapses concurrent refreshes per (event, provider)
	// so duplicate retries cannot clobber a newer refresh token with an
	// older one. Different keys never serialize against each other.
	refreshGroup singleflight.Group
}

// New builds the orchestrator.
func New(d Deps) *Service {
	buffer := d.ExpiryBuffer
	if buffer <= 0 {
		buffer = credential.DefaultExpiryBuffer
	}
	profiles := d.Profiles
	if profiles == nil {
		profiles = provider.Get
	}
	return &Service{
		store:        d.Store,
		events:       d.Events,
		box:          d.Box,
		states:       d.States,
		http:         d.HTTP,
		consumed:     d.Consumed,
		defaults:     d.Defaults,
		allowedHosts: d.AllowedRedirectHosts,
		expiryBuffer: buffer,
		profiles:     profiles,
	}
}

// CallbackResult is the outcome of a successful callback.
type CallbackResult struct {
	Provider provider.ID
	Email    string
}

// Status is the read-only connection snapshot for the UI.
type Status struct {
	IsConfigured         bool
	Account              string
	TokenExpired         bool
	NeedsReauthorization bool
}

// tokenResponse is the provider token-endpoint payload we care about.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// BeginAuthorization resolves the tenant's client configuration and returns
// the provider authorization URL with a fresh signed state. No persistence
// happens here; the state token is the only flow context.
func (s *Service) BeginAuthorization(ctx context.Context, eventID int64, p provider.ID) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oauth.flow"), logger.EventID(eventID), logger.Provider(string(p)))

	profile, ok := s.profiles(p)
	if !ok {
		return "", newErr(KindInvalidState, "unknown provider")
	}

	exists, err := s.events.EventExists(ctx, eventID)
	if err != nil {
		return "", wrapErr(KindStoreFailed, err)
	}
	if !exists {
		return "", newErr(KindEventNotFound, "")
	}

	cred, err := s.getCredential(ctx, eventID, p)
	if err != nil {
		return "", err
	}
	clientID, _, redirectURI := s.resolveClient(cred, p)
	if clientID == "" {
		return "", newErr(KindMissingClientID, "")
	}
	if !redirect.Validate(redirectURI, s.allowedHosts) {
		return "", newErr(KindRedirectNotAllowed, redirectURI)
	}

	state, err := s.states.Generate(string(p), eventID)
	if err != nil {
		return "", wrapErr(KindExchangeFailed, err)
	}

	u, err := url.Parse(profile.AuthorizeEndpoint)
	if err != nil {
		return "", wrapErr(KindExchangeFailed, err)
	}
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", profile.ScopeString())
	q.Set("state", state)
	for k, v := range profile.ExtraAuthorizeParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	log.Info("authorization started")
	return u.String(), nil
}

// HandleCallback verifies the state, exchanges the code, fetches the
// connected account's address and persists the encrypted token pair as a
// single merge. Only here does Enabled transition to true.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oauth.flow"))

	st, ok := s.states.Verify(state)
	if !ok {
		// Do not leak whether the event inside a tampered state exists.
		return nil, newErr(KindInvalidState, "")
	}
	p, ok := provider.Parse(st.Provider)
	if !ok {
		return nil, newErr(KindInvalidState, "")
	}
	profile, ok := s.profiles(p)
	if !ok {
		return nil, newErr(KindInvalidState, "")
	}
	if s.consumed != nil {
		fresh, err := s.consumed.MarkConsumed(ctx, st.Signature, s.states.TTL())
		if err != nil {
			// Losing the consumption set degrades to TTL-only
			// protection; it must not fail the flow.
			log.Warn("state consumption tracking unavailable", logger.Err(err))
		} else if !fresh {
			log.Warn("state replay rejected", logger.EventID(st.EventID), logger.Provider(string(p)))
			return nil, newErr(KindInvalidState, "")
		}
	}

	log = log.With(logger.EventID(st.EventID), logger.Provider(string(p)))

	cred, err := s.getCredential(ctx, st.EventID, p)
	if err != nil {
		return nil, err
	}
	clientID, clientSecret, redirectURI := s.resolveClient(cred, p)
	// The secret is never needed until code exchange, so its absence is a
	// distinct failure from the authorize-time client_id check.
	if clientID == "" || clientSecret == "" {
		return nil, newErr(KindInvalidClientCredentials, "")
	}
	if !redirect.Validate(redirectURI, s.allowedHosts) {
		return nil, newErr(KindRedirectNotAllowed, redirectURI)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", redirectURI)

	body, err := s.http.PostForm(ctx, profile.TokenEndpoint, form)
	if err != nil {
		return nil, wrapErr(KindExchangeFailed, err)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, wrapErr(KindExchangeFailed, err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, newErr(KindIncompleteTokenResponse, "")
	}
	// Expiry is anchored at response receipt, not request send.
	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	email, err := s.fetchAccountEmail(ctx, profile, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	encAccess, err := s.box.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, wrapErr(KindExchangeFailed, err)
	}
	encRefresh, err := s.box.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, wrapErr(KindExchangeFailed, err)
	}

	patch := credential.Patch{
		AccessToken:  &encAccess,
		RefreshToken: &encRefresh,
		TokenExpiry:  &expiry,
		AccountEmail: &email,
		Enabled:      credential.BoolPtr(true),
	}
	if err := s.store.Merge(ctx, st.EventID, p, patch); err != nil {
		return nil, wrapErr(KindStoreFailed, err)
	}

	log.Info("mailbox connected", logger.Account(email))
	return &CallbackResult{Provider: p, Email: email}, nil
}

// CheckStatus is a pure read of the connection state.
func (s *Service) CheckStatus(ctx context.Context, eventID int64, p provider.ID) (*Status, error) {
	cred, err := s.getCredential(ctx, eventID, p)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &Status{TokenExpired: true}, nil
	}
	configured := cred.RefreshToken != ""
	expired := credential.IsTokenExpired(cred.TokenExpiry, s.expiryBuffer)
	return &Status{
		IsConfigured:         configured,
		Account:              cred.AccountEmail,
		TokenExpired:         expired,
		NeedsReauthorization: configured && expired,
	}, nil
}

// Refresh obtains a new access token from the stored refresh token and
// persists the rotated pair atomically. Concurrent refreshes for the same
// key collapse into one provider call.
func (s *Service) Refresh(ctx context.Context, eventID int64, p provider.ID) (time.Time, error) {
	key := strconv.FormatInt(eventID, 10) + ":" + string(p)
	v, err, _ := s.refreshGroup.Do(key, func() (any, error) {
		return s.refresh(ctx, eventID, p)
	})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

func (s *Service) refresh(ctx context.Context, eventID int64, p provider.ID) (time.Time, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oauth.flow"), logger.EventID(eventID), logger.Provider(string(p)))

	profile, ok := s.profiles(p)
	if !ok {
		return time.Time{}, newErr(KindNotConfigured, "unknown provider")
	}
	cred, err := s.getCredential(ctx, eventID, p)
	if err != nil {
		return time.Time{}, err
	}
	if cred == nil || cred.RefreshToken == "" {
		return time.Time{}, newErr(KindNotConfigured, "")
	}
	refreshToken := s.box.Decrypt(cred.RefreshToken)
	if refreshToken == "" {
		return time.Time{}, newErr(KindDecryptionFailed, "")
	}
	clientID, clientSecret, _ := s.resolveClient(cred, p)
	if clientID == "" || clientSecret == "" {
		return time.Time{}, newErr(KindMissingCredentials, "")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	if profile.ResendScopeOnRefresh {
		form.Set("scope", profile.ScopeString())
	}

	started := time.Now()
	body, err := s.http.PostForm(ctx, profile.TokenEndpoint, form)
	metrics.TokenRefreshLatency.WithLabelValues(string(p)).Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return time.Time{}, wrapErr(KindRefreshFailed, err)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return time.Time{}, wrapErr(KindRefreshFailed, err)
	}
	if tok.AccessToken == "" {
		return time.Time{}, newErr(KindRefreshFailed, "no access_token in response")
	}
	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	encAccess, err := s.box.Encrypt(tok.AccessToken)
	if err != nil {
		return time.Time{}, wrapErr(KindRefreshFailed, err)
	}
	patch := credential.Patch{
		AccessToken: &encAccess,
		TokenExpiry: &expiry,
	}
	// Outlook rotates refresh tokens opportunistically; the new one must
	// land in the same merge as the access token so a crash cannot leave
	// a mismatched generation behind.
	if tok.RefreshToken != "" {
		encRefresh, err := s.box.Encrypt(tok.RefreshToken)
		if err != nil {
			return time.Time{}, wrapErr(KindRefreshFailed, err)
		}
		patch.RefreshToken = &encRefresh
	}
	if err := s.store.Merge(ctx, eventID, p, patch); err != nil {
		return time.Time{}, wrapErr(KindStoreFailed, err)
	}

	log.Info("access token refreshed", logger.Any("expires_at", expiry))
	return expiry, nil
}

// FreshAccessToken returns a usable plaintext access token, refreshing
// through the provider when the expiry-buffer policy demands it. Used by
// the outbound mail sender.
func (s *Service) FreshAccessToken(ctx context.Context, eventID int64, p provider.ID) (string, error) {
	cred, err := s.getCredential(ctx, eventID, p)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.RefreshToken == "" {
		return "", newErr(KindNotConfigured, "")
	}
	if !credential.IsTokenExpired(cred.TokenExpiry, s.expiryBuffer) {
		if token := s.box.Decrypt(cred.AccessToken); token != "" {
			return token, nil
		}
	}
	if _, err := s.Refresh(ctx, eventID, p); err != nil {
		return "", err
	}
	cred, err = s.getCredential(ctx, eventID, p)
	if err != nil {
		return "", err
	}
	// The credential can vanish between the refresh and the re-read if the
	// connection is disabled or deleted out of band.
	if cred == nil {
		return "", newErr(KindNotConfigured, "")
	}
	token := s.box.Decrypt(cred.AccessToken)
	if token == "" {
		return "", newErr(KindDecryptionFailed, "")
	}
	return token, nil
}

// getCredential translates ErrNotFound into a nil record; other store
// failures become KindStoreFailed.
func (s *Service) getCredential(ctx context.Context, eventID int64, p provider.ID) (*credential.TenantCredential, error) {
	cred, err := s.store.Get(ctx, eventID, p)
	if err != nil {
		if err == credential.ErrNotFound {
			return nil, nil
		}
		return nil, wrapErr(KindStoreFailed, err)
	}
	return cred, nil
}

// resolveClient applies the tenant-over-defaults fallback rule.
func (s *Service) resolveClient(cred *credential.TenantCredential, p provider.ID) (clientID, clientSecret, redirectURI string) {
	def := s.defaults[p]
	clientID, clientSecret, redirectURI = def.ClientID, def.ClientSecret, def.RedirectURI
	if cred != nil {
		if cred.ClientID != "" {
			clientID = cred.ClientID
		}
		if cred.ClientSecret != "" {
			clientSecret = cred.ClientSecret
		}
		if cred.RedirectURI != "" {
			redirectURI = cred.RedirectURI
		}
	}
	return clientID, clientSecret, redirectURI
}

// fetchAccountEmail reads the connected mailbox address from the provider's
// user-info endpoint, honoring the profile's field fallback order.
func (s *Service) fetchAccountEmail(ctx context.Context, profile *provider.Profile, accessToken string) (string, error) {
	body, err := s.http.GetWithBearer(ctx, profile.UserInfoEndpoint, accessToken)
	if err != nil {
		return "", wrapErr(KindExchangeFailed, err)
	}
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return "", wrapErr(KindExchangeFailed, fmt.Errorf("user info decode: %w", err))
	}
	for _, field := range profile.EmailFields {
		if v, ok := info[field].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", newErr(KindMissingEmailClaim, "")
}
