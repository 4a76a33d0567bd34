package api

import (
	"github.com/gin-gonic/gin"

	"github.com/keygate-io/keygate/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, health *handlers.HealthHandler) {
	r.GET("/health", health.Ready)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}
