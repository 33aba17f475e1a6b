package httpx

import (
	"net/http"
	"strings"
)

// RequireAllScopes the caller must have every scope listed.
func RequireAllScopes(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasAllScopes(scopesFromCtx(r.Context()), required...) {
				WriteScopeError(w, required...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasAllScopes reports whether have contains every scope in required.
func HasAllScopes(have []string, required ...string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

// WriteScopeError writes an RFC 6750 insufficient_scope response.
func WriteScopeError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "insufficient_scope",
		"error_description": "the access token does not have the required scopes",
	})
}
