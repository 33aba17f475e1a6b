package httpx

import "context"

type ctxKey string

const (
	CtxKeyIdentity ctxKey = "identity"
	CtxKeyScopes   ctxKey = "scopes"
	CtxKeyClaims   ctxKey = "claims"
)

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}

// IdentityFromContext returns the authenticated identity set by AuthnMiddleware.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CtxKeyIdentity).(string)
	return id, ok && id != ""
}
