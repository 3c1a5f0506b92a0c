package middlewares

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyAdminClaims
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID returns the request id injected by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}

func setAdminClaims(ctx context.Context, c *AdminClaims) context.Context {
	return context.WithValue(ctx, ctxKeyAdminClaims, c)
}

// GetAdminClaims returns the verified admin claims, or nil when the request
// passed through without enforcement.
func GetAdminClaims(ctx context.Context) *AdminClaims {
	c, _ := ctx.Value(ctxKeyAdminClaims).(*AdminClaims)
	return c
}
