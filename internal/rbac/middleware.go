package rbac

import (
	"net/http"

	"admin-auth/internal/auth"
	"admin-auth/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
)

func deny(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message, "data": nil})
}

// RequireAuthenticated needs an access-token principal holding at least one
// role. Refresh tokens are not accepted as credentials for protected routes;
// a role-less access principal is 403.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.PrincipalFrom(c.Request.Context())
		if err != nil || !p.IsAccess() {
			deny(c, http.StatusUnauthorized, codeUnauthorized, "Authentication required.")
			return
		}
		if len(p.Roles) == 0 {
			logger.From(c.Request.Context()).Info("access denied", "path", c.FullPath(), "reason", "no roles")
			deny(c, http.StatusForbidden, codeForbidden, "Access denied.")
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller holds any of the provided roles.
// Rules:
// - no principal (or a refresh-token principal) is 401
// - a principal without a matching role is 403
func RequireAnyRole(allowed ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.PrincipalFrom(c.Request.Context())
		if err != nil || !p.IsAccess() {
			deny(c, http.StatusUnauthorized, codeUnauthorized, "Authentication required.")
			return
		}
		if !p.HasAnyRole(allowed...) {
			logger.From(c.Request.Context()).Info("access denied", "path", c.FullPath(), "roles", auth.JoinRoles(p.Roles))
			deny(c, http.StatusForbidden, codeForbidden, "Access denied.")
			return
		}
		c.Next()
	}
}
