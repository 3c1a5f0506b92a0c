// Package credential defines the per-(event, provider) OAuth credential
// record and the store contract the flow orchestrator consumes. Persistence
// technology is an adapter concern (see internal/store).
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/weddary/weddary/internal/oauth/provider"
)

// DefaultExpiryBuffer is subtracted from the stored expiry when deciding
// whether a token needs refreshing, so refresh happens before a token that
// is technically still valid expires mid-request.
const DefaultExpiryBuffer = 5 * time.Minute

// ErrNotFound is returned by Store.Get when no record exists for the key.
var ErrNotFound = errors.New("credential not found")

// TenantCredential is one event's connection to one mail provider.
// AccessToken and RefreshToken hold secretbox envelopes; plaintext tokens
// only ever exist transiently in memory during exchange, refresh and use.
type TenantCredential struct {
	EventID  int64
	Provider provider.ID

	ClientID     string
	ClientSecret string
	RedirectURI  string

	AccessToken  string // encrypted envelope
	RefreshToken string // encrypted envelope
	TokenExpiry  *time.Time

	AccountEmail string

	// Enabled flips to true exactly once: when a refresh token is first
	// stored after a successful callback.
	Enabled bool

	UpdatedAt time.Time
}

// Patch is a partial update; nil fields are left untouched by Merge.
type Patch struct {
	ClientID     *string
	ClientSecret *string
	RedirectURI  *string
	AccessToken  *string
	RefreshToken *string
	TokenExpiry  *time.Time
	AccountEmail *string
	Enabled      *bool
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.ClientID == nil && p.ClientSecret == nil && p.RedirectURI == nil &&
		p.AccessToken == nil && p.RefreshToken == nil && p.TokenExpiry == nil &&
		p.AccountEmail == nil && p.Enabled == nil
}

// Store is the key-value contract over (eventID, provider). Merge must apply
// the whole patch as a single update so concurrent readers never observe a
// half-written token pair.
type Store interface {
	Get(ctx context.Context, eventID int64, p provider.ID) (*TenantCredential, error)
	Merge(ctx context.Context, eventID int64, p provider.ID, patch Patch) error
}

// EventResolver answers whether a tenant event exists. It is the only thing
// the OAuth core needs from the wider event domain.
type EventResolver interface {
	EventExists(ctx context.Context, eventID int64) (bool, error)
}

// IsTokenExpired reports whether an access token is past (or within buffer
// of) its expiry. A nil expiry counts as expired.
func IsTokenExpired(expiry *time.Time, buffer time.Duration) bool {
	if expiry == nil {
		return true
	}
	return expiry.Add(-buffer).Before(time.Now())
}

// StrPtr and BoolPtr are small helpers for building patches.
func StrPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

func TimePtr(t time.Time) *time.Time { return &t }
