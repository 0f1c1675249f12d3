package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authcore/pkg/rbac"
)

// RequirePermission requires every listed permission to be granted by the
// caller's access token. Must run after AuthnMiddleware.
func RequirePermission(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted := permissionsFromCtx(r.Context())
			for _, p := range required {
				if !rbac.Check(granted, p) {
					writeInsufficientPermission(w, required...)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission requires at least one listed permission.
func RequireAnyPermission(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted := permissionsFromCtx(r.Context())
			for _, p := range required {
				if rbac.Check(granted, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeInsufficientPermission(w, required...)
		})
	}
}

// RFC 6750 insufficient_scope response; permissions travel as the scope list.
func writeInsufficientPermission(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_scope"))
}
