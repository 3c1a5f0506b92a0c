package httperr

import (
	"fmt"
	"net/http"
)

// AppError is the standard application error surfaced at the HTTP boundary.
// Code is the stable machine-readable string clients branch on; Message is
// safe to show to a tenant admin.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // original cause, logged but never serialized
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy carrying extra caller-facing diagnostics.
// Copying keeps the predefined vars immutable.
func (e *AppError) WithDetails(details string) *AppError {
	ne := *e
	ne.Details = details
	return &ne
}

// WithCause returns a copy carrying the original error for logging.
func (e *AppError) WithCause(err error) *AppError {
	ne := *e
	ne.Err = err
	return &ne
}

// FromError converts any error into an AppError, defaulting to a generic 500
// so raw internals never reach the response body.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// ---------------------------------------------------------------------------
// Caller errors (400)
// ---------------------------------------------------------------------------

var (
	ErrInvalidEventID = &AppError{
		Code:       "INVALID_EVENT_ID",
		Message:    "The eventId parameter is missing or not a valid number.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingClientID = &AppError{
		Code:       "MISSING_CLIENT_ID",
		Message:    "You need to save OAuth credentials in your event settings before configuring this connection.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingCode = &AppError{
		Code:       "MISSING_CODE",
		Message:    "The provider callback did not include an authorization code.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "The authorization link is invalid or has expired. Please start the connection again.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidRedirectURI = &AppError{
		Code:       "INVALID_REDIRECT_URI",
		Message:    "The configured redirect URI is not on the allow-list for this installation.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotConfigured = &AppError{
		Code:       "NOT_CONFIGURED",
		Message:    "This mail connection has not been authorized yet.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingCredentials = &AppError{
		Code:       "MISSING_CREDENTIALS",
		Message:    "OAuth client credentials are missing for this event. Save them in your event settings first.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "The request body is not valid JSON.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ---------------------------------------------------------------------------
// Auth (401/403) and not-found (404)
// ---------------------------------------------------------------------------

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication is required.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "You do not have admin rights for this event.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrEventNotFound = &AppError{
		Code:       "EVENT_NOT_FOUND",
		Message:    "The specified event does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "The requested route does not exist.",
		HTTPStatus: http.StatusNotFound,
	}
)

// ---------------------------------------------------------------------------
// Rate limiting (429)
// ---------------------------------------------------------------------------

var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests. Try again later.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// ---------------------------------------------------------------------------
// Server errors (500+)
// ---------------------------------------------------------------------------

var (
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "The OAuth client credentials for this event are incomplete or rejected by the provider.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrMissingTokens = &AppError{
		Code:       "MISSING_TOKENS",
		Message:    "The provider did not return a complete token pair. Try authorizing again.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrMissingEmail = &AppError{
		Code:       "MISSING_EMAIL",
		Message:    "Could not determine the email address of the connected account.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrTokenExchange = &AppError{
		Code:       "TOKEN_EXCHANGE_ERROR",
		Message:    "Exchanging the authorization code with the provider failed.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrRefresh = &AppError{
		Code:       "REFRESH_ERROR",
		Message:    "Refreshing the access token with the provider failed.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDecryption = &AppError{
		Code:       "DECRYPTION_ERROR",
		Message:    "The stored credential could not be decrypted. Re-authorize the connection.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrMailSend = &AppError{
		Code:       "MAIL_SEND_ERROR",
		Message:    "Sending the test message through the provider failed.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "An internal server error occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
