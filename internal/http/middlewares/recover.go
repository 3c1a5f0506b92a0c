package middlewares

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/weddary/weddary/internal/http/httperr"
	"github.com/weddary/weddary/internal/observability/logger"
)

// WithRecover converts panics into a 500 response instead of crashing the
// process. The stack only goes to the log.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log := logger.From(r.Context())
					log.Error("panic recovered",
						logger.Any("panic", fmt.Sprint(rec)),
						logger.Any("stack", string(debug.Stack())),
					)
					httperr.WriteError(w, r, httperr.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
