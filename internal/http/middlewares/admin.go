package middlewares

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/weddary/weddary/internal/http/httperr"
)

// AdminClaims is the bearer-token payload issued by the main application.
// Events lists the event ids the caller administers; IsAdmin short-circuits
// the per-event check for platform operators.
type AdminClaims struct {
	jwt.RegisteredClaims
	IsAdmin bool    `json:"is_admin"`
	Events  []int64 `json:"events"`
}

// AdminGateConfig configures the event-admin gate.
type AdminGateConfig struct {
	// Secret verifies the HMAC-signed bearer token.
	Secret []byte
	// Enforce disables the gate when false (local development).
	Enforce bool
}

// EventIDFunc extracts the event id a request targets.
type EventIDFunc func(r *http.Request) (int64, bool)

// EventIDFromQuery reads the eventId query parameter.
func EventIDFromQuery(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("eventId"), 10, 64)
	return id, err == nil && id > 0
}

// EventIDFromPath reads a chi URL parameter.
func EventIDFromPath(param string) EventIDFunc {
	return func(r *http.Request) (int64, bool) {
		id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		return id, err == nil && id > 0
	}
}

// EventIDFromBody reads eventId from a JSON body, then restores the body so
// the handler can decode it again.
func EventIDFromBody(r *http.Request) (int64, bool) {
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return 0, false
	}
	var buf bytes.Buffer
	_, _ = io.CopyN(&buf, r.Body, 4096)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))

	var tmp struct {
		EventID int64 `json:"eventId"`
	}
	if err := json.Unmarshal(buf.Bytes(), &tmp); err != nil {
		return 0, false
	}
	return tmp.EventID, tmp.EventID > 0
}

// RequireEventAdmin verifies the bearer token and asserts the caller holds
// admin rights for the event the request targets.
func RequireEventAdmin(cfg AdminGateConfig, eventID EventIDFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enforce {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				httperr.WriteError(w, r, httperr.ErrUnauthorized.WithDetails("missing bearer token"))
				return
			}

			claims := &AdminClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return cfg.Secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil {
				httperr.WriteError(w, r, httperr.ErrUnauthorized.WithCause(err))
				return
			}

			id, ok := eventID(r)
			if !ok {
				httperr.WriteError(w, r, httperr.ErrInvalidEventID)
				return
			}
			if !claims.allows(id) {
				httperr.WriteError(w, r, httperr.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(setAdminClaims(r.Context(), claims)))
		})
	}
}

func (c *AdminClaims) allows(eventID int64) bool {
	if c.IsAdmin {
		return true
	}
	for _, id := range c.Events {
		if id == eventID {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
