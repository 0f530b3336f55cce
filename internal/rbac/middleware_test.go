package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admin-auth/internal/auth"

	"github.com/gin-gonic/gin"
)

func withPrincipal(p *auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), *p))
		}
		c.Next()
	}
}

func serve(p *auth.Principal, guard gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withPrincipal(p), guard, func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func principal(kind auth.TokenKind, roles ...auth.Role) *auth.Principal {
	return &auth.Principal{Subject: "u", Roles: roles, Kind: kind, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestRequireAuthenticated(t *testing.T) {
	if code := serve(nil, RequireAuthenticated()); code != 401 {
		t.Fatalf("expected 401 for anonymous, got %d", code)
	}
	if code := serve(principal(auth.TokenKindRefresh), RequireAuthenticated()); code != 401 {
		t.Fatalf("expected 401 for refresh principal, got %d", code)
	}
	if code := serve(principal(auth.TokenKindAccess, auth.RoleGuest), RequireAuthenticated()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serve(principal(auth.TokenKindAccess), RequireAuthenticated()); code != 403 {
		t.Fatalf("expected 403 for role-less access principal, got %d", code)
	}
}

func TestRequireAnyRole_MatchesFlatRoles(t *testing.T) {
	if code := serve(principal(auth.TokenKindAccess, auth.RoleAdmin), RequireAnyRole(Admins...)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serve(principal(auth.TokenKindAccess, auth.RoleGuest, auth.RoleUser), RequireAnyRole(Members...)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ForbiddenWithoutRole(t *testing.T) {
	if code := serve(principal(auth.TokenKindAccess, auth.RoleUser), RequireAnyRole(Admins...)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(principal(auth.TokenKindAccess), RequireAnyRole(Anyone...)); code != 403 {
		t.Fatalf("expected 403 for role-less access principal, got %d", code)
	}
}

func TestRequireAnyRole_UnauthenticatedIs401(t *testing.T) {
	if code := serve(nil, RequireAnyRole(Admins...)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := serve(principal(auth.TokenKindRefresh, auth.RoleAdmin), RequireAnyRole(Admins...)); code != 401 {
		t.Fatalf("expected 401 for refresh principal, got %d", code)
	}
}
