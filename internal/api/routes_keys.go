package api

import (
	"github.com/gin-gonic/gin"

	"github.com/keygate-io/keygate/internal/handlers"
	"github.com/keygate-io/keygate/internal/middleware"
)

// Scopes carried by issuer tokens for the management surface.
const (
	ScopePublish = "publish"
	ScopeAdmin   = "admin"
)

func registerKeyRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewKeyHandler(deps.Publisher, deps.Validator, deps.Admin)

	// Validation is unauthenticated; the opaque secret is the credential and
	// the pipeline applies its own per-caller rate limit.
	r.POST("/api/keys/validate", handler.Validate)

	managed := r.Group("/api/keys")
	if deps.HTTPLimiter != nil {
		managed.Use(middleware.RateLimit(deps.HTTPLimiter))
	}
	{
		managed.POST("", middleware.Auth(deps.JWT, ScopePublish), handler.Publish)
		managed.GET("", middleware.Auth(deps.JWT, ScopeAdmin), handler.List)
		managed.GET("/stats", middleware.Auth(deps.JWT, ScopeAdmin), handler.Stats)
		managed.DELETE("/:id", middleware.Auth(deps.JWT, ScopeAdmin), handler.Revoke)
	}
}
