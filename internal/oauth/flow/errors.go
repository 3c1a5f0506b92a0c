package flow

import "fmt"

// Kind is the closed set of orchestrator failure modes. The HTTP boundary
// switches on it exhaustively to pick a status code and stable error code;
// adding a variant without extending that switch is a compile-time smell the
// default branch logs loudly.
type Kind int

const (
	// KindEventNotFound: the eventId does not resolve to a tenant.
	KindEventNotFound Kind = iota + 1

	// KindMissingClientID: the tenant (and process defaults) have no
	// client_id saved; authorization cannot start.
	KindMissingClientID

	// KindInvalidClientCredentials: code exchange needs a client_secret
	// and neither the tenant nor the defaults provide one.
	KindInvalidClientCredentials

	// KindMissingCredentials: a refresh found no usable client id/secret.
	KindMissingCredentials

	// KindRedirectNotAllowed: the resolved redirect URI failed the host
	// allow-list.
	KindRedirectNotAllowed

	// KindInvalidState: the state parameter is malformed, tampered,
	// expired or already consumed.
	KindInvalidState

	// KindExchangeFailed: the provider rejected the code exchange or the
	// user-info fetch.
	KindExchangeFailed

	// KindIncompleteTokenResponse: exchange succeeded but access_token or
	// refresh_token is missing; nothing is persisted.
	KindIncompleteTokenResponse

	// KindMissingEmailClaim: the user-info response carried no address.
	KindMissingEmailClaim

	// KindNotConfigured: refresh requested but no refresh token is stored.
	KindNotConfigured

	// KindRefreshFailed: the provider rejected the refresh grant or the
	// response carried no access_token.
	KindRefreshFailed

	// KindDecryptionFailed: a stored token did not decrypt; the credential
	// is corrupt and needs re-authorization, not a retry.
	KindDecryptionFailed

	// KindStoreFailed: the credential store itself errored.
	KindStoreFailed
)

// Error is the orchestrator's tagged error. Detail carries provider
// diagnostics (already suitable for redaction at the boundary).
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.kindString()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) kindString() string {
	switch e.Kind {
	case KindEventNotFound:
		return "event not found"
	case KindMissingClientID:
		return "missing client id"
	case KindInvalidClientCredentials:
		return "invalid client credentials"
	case KindMissingCredentials:
		return "missing client credentials"
	case KindRedirectNotAllowed:
		return "redirect uri not allowed"
	case KindInvalidState:
		return "invalid state"
	case KindExchangeFailed:
		return "token exchange failed"
	case KindIncompleteTokenResponse:
		return "incomplete token response"
	case KindMissingEmailClaim:
		return "missing email claim"
	case KindNotConfigured:
		return "provider not configured"
	case KindRefreshFailed:
		return "refresh failed"
	case KindDecryptionFailed:
		return "stored token decryption failed"
	case KindStoreFailed:
		return "credential store failure"
	default:
		return fmt.Sprintf("flow error kind %d", int(e.Kind))
	}
}

func newErr(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func wrapErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
