/**
 * @description
 * Authorization middleware for the operational admin endpoints.
 */
package api

import (
	"net/http"
)

// InternalAuthMiddleware validates the internal API key for operator calls.
// An empty required key closes the admin surface entirely.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				respondError(w, http.StatusForbidden, "admin endpoints are disabled")
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
