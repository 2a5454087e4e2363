package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminSet(t *testing.T) {
	s := NewAdminSet([]string{" 7 ", "", "3", "7"})
	assert.True(t, s.Contains("7"))
	assert.True(t, s.Contains("3"))
	assert.False(t, s.Contains(""))
	assert.False(t, s.Contains("8"))
}

func TestChecker(t *testing.T) {
	c := NewChecker(map[string][]string{"grader": {"grading:*", PermTestView}})
	assert.True(t, c.Has("grader", PermGradingRun))
	assert.True(t, c.Has("grader", PermTestView))
	assert.False(t, c.Has("grader", PermTestCreate))
	assert.False(t, c.Has("nobody", PermTestView))
	assert.True(t, NewChecker(nil).Has(RoleAdmin, PermChartView))
}

func TestAdminRoleHasExactlyTheAdminPermissions(t *testing.T) {
	c := NewChecker(nil)
	for _, p := range []string{PermTestView, PermTestCreate, PermRegistrationView, PermGradingRun, PermChartView, PermEventView} {
		assert.True(t, c.Has(RoleAdmin, p), p)
	}
	assert.False(t, c.Has(RoleAdmin, "user:delete"))
}

func TestCheckerRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	c := NewChecker(map[string][]string{"viewer": {PermTestView}})

	serve := func(h http.Handler, role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, serve(c.Require(PermTestView)(ok), "viewer"))
	assert.Equal(t, http.StatusForbidden, serve(c.Require(PermGradingRun)(ok), "viewer"))
	assert.Equal(t, http.StatusForbidden, serve(c.Require(PermTestView)(ok), RoleAdmin))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(PermGradingRun)(ok)

	tests := []struct {
		role string
		want int
	}{
		{RoleAdmin, http.StatusNoContent},
		{"", http.StatusForbidden},
		{"student", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.role != "" {
			req = req.WithContext(WithRole(context.Background(), tt.role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "role %q", tt.role)
	}
}
