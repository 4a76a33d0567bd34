package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/keygate-io/keygate/internal/auth"
	"github.com/keygate-io/keygate/internal/handlers"
	"github.com/keygate-io/keygate/internal/middleware"
	"github.com/keygate-io/keygate/internal/monitoring"
	"github.com/keygate-io/keygate/internal/ratelimit"
	"github.com/keygate-io/keygate/internal/security"
	"github.com/keygate-io/keygate/internal/services"
)

// Dependencies carries everything the router needs. The validation pipeline
// owns its own rate limiter; HTTPLimiter, when set, additionally throttles the
// management surface per client IP.
type Dependencies struct {
	JWT         *iauth.JWTService
	Publisher   *services.PublisherService
	Validator   *services.ValidatorService
	Admin       *services.AdminService
	Health      *monitoring.HealthManager
	HTTPLimiter ratelimit.Limiter
	Audit       *security.AuditService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Publisher == nil || deps.Validator == nil || deps.Admin == nil {
		return nil, fmt.Errorf("pipeline services must be provided")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("health manager must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registerHealthRoutes(r, handlers.NewHealthHandler(deps.Health))
	registerKeyRoutes(r, deps)
	registerSecurityRoutes(r, deps)

	return r, nil
}
