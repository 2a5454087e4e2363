package rbac

import (
	"log"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Require guards a route with perm using the built-in RolePermissions.
func Require(perm string) func(http.Handler) http.Handler {
	return defaultChecker.Require(perm)
}

// Require refuses requests whose context role lacks perm. The role is put
// in the context by the auth layer; a missing role is refused too.
func (c *Checker) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !c.Has(role, perm) {
				log.Printf("rbac: role %q denied %s on %s %s", role, perm, r.Method, r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
