package httperr

import (
	"encoding/json"
	"net/http"

	"github.com/weddary/weddary/internal/observability/logger"
)

// errorResponse is the wire shape of every error this API returns.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// WriteError serializes err as the standard error envelope. Non-AppError
// values collapse to a generic 500; the cause only goes to the log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)

	log := logger.From(r.Context())
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request error", logger.Any("code", appErr.Code), logger.Err(appErr.Err))
	} else {
		log.Warn("request rejected", logger.Any("code", appErr.Code), logger.Err(appErr.Err))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// WriteJSON serializes a success payload.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
