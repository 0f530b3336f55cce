package auth

import (
	"strings"
	"time"

	"admin-auth/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// GinPrincipalKey is the gin context key the principal is also stored under.
const GinPrincipalKey = "principal"

// Verifier is the part of Codec the middleware needs.
type Verifier interface {
	Verify(token string, now time.Time) (Principal, error)
}

// BearerToken extracts the token from an Authorization header value.
// Accepted: "Bearer <t>", a doubled "Bearer Bearer <t>", and a bare "<t>".
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if strings.HasPrefix(v, bearerPrefix) {
		v = strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
		if strings.HasPrefix(v, bearerPrefix) {
			v = strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
		}
	}
	if v == "" || v == strings.TrimSpace(bearerPrefix) {
		return "", false
	}
	return v, true
}

// Authenticate verifies the bearer token, if any, and attaches the principal
// to the request context. It never aborts: a missing or invalid token leaves
// the request anonymous and authorization is decided per route (internal/rbac).
// No identity store lookup happens here.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := BearerToken(c.GetHeader(authorizationHeader))
		if !ok {
			c.Next()
			return
		}

		p, err := v.Verify(tok, time.Now())
		if err != nil {
			logger.From(c.Request.Context()).Debug("bearer token rejected", "err", err)
			c.Next()
			return
		}

		ctx := WithPrincipal(c.Request.Context(), p)
		ctx = logger.With(ctx, logger.From(ctx).With("subject", p.Subject))
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set(GinPrincipalKey, p)

		c.Next()
	}
}
