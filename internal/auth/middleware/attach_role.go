package auth

import (
	"net/http"

	"github.com/mind-engage/mindengage-testbot/internal/rbac"
)

// AttachRoleFromAllowList grants the token's role only while its subject is
// still on the admin allow-list, so removing an id revokes live tokens.
func AttachRoleFromAllowList(admins rbac.AdminSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := ClaimsFromContext(r.Context())
			if c == nil || !admins.Contains(c.Subject) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithRole(r.Context(), c.Role)))
		})
	}
}
