package generate

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers /generate and /config at the root level
func RegisterRoutes(router *gin.Engine, svc *Service) {
	ctrl := NewController(svc)
	router.POST("/generate", ctrl.Generate)
	router.POST("/config", ctrl.Config)
}
