// Package provider holds the static per-provider OAuth2 configuration.
//
// Exactly two providers are supported: Gmail and Outlook. Each tenant event
// connects its own mailbox through one of these profiles; the profiles
// themselves are compiled in and immutable after process start.
package provider

import "strings"

// ID identifies a supported mail provider.
type ID string

const (
	Gmail   ID = "gmail"
	Outlook ID = "outlook"
)

// Parse normalizes a path/query value into a known provider ID.
func Parse(s string) (ID, bool) {
	switch ID(strings.ToLower(strings.TrimSpace(s))) {
	case Gmail:
		return Gmail, true
	case Outlook:
		return Outlook, true
	}
	return "", false
}

// Profile is the static wiring for one provider.
type Profile struct {
	ID ID

	AuthorizeEndpoint string
	TokenEndpoint     string
	UserInfoEndpoint  string
	SendEndpoint      string

	// Scopes are space-joined when building the authorize URL.
	Scopes []string

	// ExtraAuthorizeParams are provider-specific additions to the
	// authorize URL (e.g. Google's offline access knobs).
	ExtraAuthorizeParams map[string]string

	// EmailFields lists user-info response fields checked in order for the
	// connected account's address.
	EmailFields []string

	// ResendScopeOnRefresh marks providers that expect the original scope
	// set on refresh_token grants (Outlook does, Google does not).
	ResendScopeOnRefresh bool
}

// ScopeString returns the space-joined scope set.
func (p *Profile) ScopeString() string { return strings.Join(p.Scopes, " ") }

var profiles = map[ID]*Profile{
	Gmail: {
		ID:                Gmail,
		AuthorizeEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:     "https://oauth2.googleapis.com/token",
		UserInfoEndpoint:  "https://www.googleapis.com/userinfo/v2/me",
		SendEndpoint:      "https://gmail.googleapis.com/gmail/v1/users/me/messages/send",
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.send",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		ExtraAuthorizeParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		EmailFields: []string{"email"},
	},
	Outlook: {
		ID:                Outlook,
		AuthorizeEndpoint: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenEndpoint:     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		UserInfoEndpoint:  "https://graph.microsoft.com/v1.0/me",
		SendEndpoint:      "https://graph.microsoft.com/v1.0/me/sendMail",
		Scopes: []string{
			"offline_access",
			"https://graph.microsoft.com/Mail.Send",
			"https://graph.microsoft.com/User.Read",
		},
		EmailFields:          []string{"mail", "userPrincipalName"},
		ResendScopeOnRefresh: true,
	},
}

// Get returns the profile for id.
func Get(id ID) (*Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// All returns the supported profiles.
func All() []*Profile {
	return []*Profile{profiles[Gmail], profiles[Outlook]}
}
