package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/weddary/weddary/internal/http/handlers"
	mw "github.com/weddary/weddary/internal/http/middlewares"
	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/rate"
	"github.com/weddary/weddary/internal/security/oauthstate"
	"github.com/weddary/weddary/internal/security/secretbox"
	"github.com/weddary/weddary/internal/store/memory"
)

const testEventID = 7

var adminSecret = []byte("router-test-admin-gate-secret!!!")

type env struct {
	store  *memory.Store
	signer *oauthstate.Signer
	fake   *httptest.Server

	tokenResponse    map[string]any
	userInfoResponse map[string]any

	srv *httptest.Server
}

func newEnv(t *testing.T, deps func(*Deps)) *env {
	t.Helper()
	e := &env{}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(e.tokenResponse)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(e.userInfoResponse)
	})
	e.fake = httptest.NewServer(mux)
	t.Cleanup(e.fake.Close)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	box, err := secretbox.New(key)
	if err != nil {
		t.Fatal(err)
	}

	e.store = memory.New()
	e.store.AddEvent(testEventID)
	e.signer = oauthstate.NewSigner([]byte("router-test-state-secret-32-byte"), 0)

	svc := flow.New(flow.Deps{
		Store:                e.store,
		Events:               e.store,
		Box:                  box,
		States:               e.signer,
		HTTP:                 httpclient.New(httpclient.WithBackoffBase(time.Millisecond)),
		AllowedRedirectHosts: []string{"example.com"},
		Defaults: map[provider.ID]flow.ClientDefaults{
			provider.Gmail: {
				ClientID:     "abc",
				ClientSecret: "shh",
				RedirectURI:  "https://app.example.com/oauth/gmail/callback",
			},
		},
		Profiles: func(id provider.ID) (*provider.Profile, bool) {
			base, ok := provider.Get(id)
			if !ok {
				return nil, false
			}
			p := *base
			p.TokenEndpoint = e.fake.URL + "/token"
			p.UserInfoEndpoint = e.fake.URL + "/userinfo"
			return &p, true
		},
	})

	d := Deps{
		OAuth:  handlers.NewOAuthHandlers(svc),
		Health: handlers.NewHealthHandlers(nil),
	}
	if deps != nil {
		deps(&d)
	}
	e.srv = httptest.NewServer(New(d))
	t.Cleanup(e.srv.Close)
	return e
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	AuthURL string `json:"authUrl"`
}

func (e *env) get(t *testing.T, path, token string) (int, envelope) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func (e *env) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func adminToken(t *testing.T, events ...int64) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, mw.AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Events: events,
	})
	signed, err := tok.SignedString(adminSecret)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestAuthorizeEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	status, body := e.get(t, "/oauth/gmail/authorize?eventId=7", "")
	if status != http.StatusOK || !body.Success {
		t.Fatalf("status=%d body=%+v", status, body)
	}
	if !strings.Contains(body.AuthURL, "client_id=abc") || !strings.Contains(body.AuthURL, "state=") {
		t.Fatalf("authUrl = %q", body.AuthURL)
	}
}

func TestAuthorizeEndpoint_Errors(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	for _, tc := range []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"bad event id", "/oauth/gmail/authorize?eventId=zero", http.StatusBadRequest, "INVALID_EVENT_ID"},
		{"missing event id", "/oauth/gmail/authorize", http.StatusBadRequest, "INVALID_EVENT_ID"},
		{"unknown event", "/oauth/gmail/authorize?eventId=99", http.StatusNotFound, "EVENT_NOT_FOUND"},
		{"unknown provider", "/oauth/yahoo/authorize?eventId=7", http.StatusNotFound, "ROUTE_NOT_FOUND"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := e.get(t, tc.path, "")
			if status != tc.status {
				t.Fatalf("status = %d, want %d", status, tc.status)
			}
			if body.Success {
				t.Fatalf("error envelope must carry success=false")
			}
			if body.Code != tc.code {
				t.Fatalf("code = %q, want %q", body.Code, tc.code)
			}
			if body.Message == "" {
				t.Fatalf("error envelope must carry a human-readable message")
			}
		})
	}
}

func TestCallbackEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.tokenResponse = map[string]any{
		"access_token":  "A1",
		"refresh_token": "R1",
		"expires_in":    3600,
	}
	e.userInfoResponse = map[string]any{"email": "a@b.com"}

	state, err := e.signer.Generate("gmail", testEventID)
	if err != nil {
		t.Fatal(err)
	}
	status, body := e.get(t, "/oauth/gmail/callback?code=xyz&state="+state, "")
	if status != http.StatusOK || !body.Success {
		t.Fatalf("status=%d body=%+v", status, body)
	}

	// And the status endpoint now reports a live connection.
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/oauth/status/gmail?eventId=7", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st struct {
		Success      bool   `json:"success"`
		IsConfigured bool   `json:"isConfigured"`
		Account      string `json:"account"`
		TokenExpired bool   `json:"tokenExpired"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Success || !st.IsConfigured || st.TokenExpired || st.Account != "a@b.com" {
		t.Fatalf("status payload: %+v", st)
	}
}

func TestCallbackEndpoint_Errors(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	status, body := e.get(t, "/oauth/gmail/callback?state=whatever", "")
	if status != http.StatusBadRequest || body.Code != "MISSING_CODE" {
		t.Fatalf("status=%d code=%q", status, body.Code)
	}

	status, body = e.get(t, "/oauth/gmail/callback?code=xyz&state=tampered", "")
	if status != http.StatusBadRequest || body.Code != "INVALID_STATE" {
		t.Fatalf("status=%d code=%q", status, body.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	// Not configured yet.
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/oauth/refresh/gmail", strings.NewReader(`{"eventId":7}`))
	req.Header.Set("Content-Type", "application/json")
	status, body := e.do(t, req)
	if status != http.StatusBadRequest || body.Code != "NOT_CONFIGURED" {
		t.Fatalf("status=%d code=%q", status, body.Code)
	}

	// Connect, then refresh succeeds.
	e.tokenResponse = map[string]any{
		"access_token":  "A1",
		"refresh_token": "R1",
		"expires_in":    3600,
	}
	e.userInfoResponse = map[string]any{"email": "a@b.com"}
	state, _ := e.signer.Generate("gmail", testEventID)
	if status, _ := e.get(t, "/oauth/gmail/callback?code=xyz&state="+state, ""); status != http.StatusOK {
		t.Fatalf("connect failed: %d", status)
	}

	e.tokenResponse = map[string]any{"access_token": "A2", "expires_in": 3600}
	req, _ = http.NewRequest(http.MethodPost, e.srv.URL+"/oauth/refresh/gmail", strings.NewReader(`{"eventId":7}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Success   bool      `json:"success"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("refresh: status=%d %+v", resp.StatusCode, out)
	}
	if until := time.Until(out.ExpiresAt); until < 3500*time.Second || until > 3700*time.Second {
		t.Fatalf("expiresAt should be ~now+3600s, got %v", until)
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(d *Deps) {
		d.AdminGate = mw.AdminGateConfig{Secret: adminSecret, Enforce: true}
	})

	status, body := e.get(t, "/oauth/gmail/authorize?eventId=7", "")
	if status != http.StatusUnauthorized || body.Code != "UNAUTHORIZED" {
		t.Fatalf("no token: status=%d code=%q", status, body.Code)
	}

	status, body = e.get(t, "/oauth/gmail/authorize?eventId=7", adminToken(t, 42))
	if status != http.StatusForbidden || body.Code != "FORBIDDEN" {
		t.Fatalf("wrong event: status=%d code=%q", status, body.Code)
	}

	status, _ = e.get(t, "/oauth/gmail/authorize?eventId=7", adminToken(t, testEventID))
	if status != http.StatusOK {
		t.Fatalf("authorized admin: status=%d", status)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(d *Deps) {
		d.AuthorizeLimiter = rate.NewMemoryLimiter(2, time.Minute)
	})

	for i := 0; i < 2; i++ {
		if status, _ := e.get(t, "/oauth/gmail/authorize?eventId=7", ""); status != http.StatusOK {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	status, body := e.get(t, "/oauth/gmail/authorize?eventId=7", "")
	if status != http.StatusTooManyRequests || body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("status=%d code=%q", status, body.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	resp, err := http.Get(e.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}

	resp, err = http.Get(e.srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
}
