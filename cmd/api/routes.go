package main

import (
	"admin-auth/internal/httpapi"
	"admin-auth/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
// authMW runs on every /api route; it never rejects, the guards below do.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	api.Use(authMW)

	// AUTH routes. No guard: there is no token yet at login.
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/validate", h.Validate)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/google", h.GoogleLogin)
		authGroup.GET("/google/url", h.GoogleURL)
	}

	api.GET("/me", rbac.RequireAuthenticated(), h.Me)

	// ADMIN routes
	admin := api.Group("/admin")
	admin.Use(rbac.RequireAnyRole(rbac.Admins...))
	{
		admin.POST("/users/:id/roles", h.AssignRole)
	}
}
