package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keygate-io/keygate/internal/middleware"
	"github.com/keygate-io/keygate/pkg/response"
)

func registerSecurityRoutes(r *gin.Engine, deps Dependencies) {
	if deps.Audit == nil {
		return
	}

	r.GET("/api/security/audit", middleware.Auth(deps.JWT, ScopeAdmin), func(c *gin.Context) {
		result := deps.Audit.Run(c.Request.Context())
		response.Success(c, http.StatusOK, result)
	})
}
