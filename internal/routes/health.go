package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/minivault/internal/config"
	"github.com/Conversly/minivault/internal/controllers"
)

// SetupHealthRoutes configures the root, info and health check endpoints
func SetupHealthRoutes(router *gin.Engine, cfg *config.Config, model controllers.ModelStatus, db controllers.DBPinger) {
	healthController := controllers.NewHealthController(model, db)
	systemController := controllers.NewSystemController(cfg, model)

	router.GET("/", systemController.Root)
	router.GET("/info", systemController.Info)
	router.GET("/health", healthController.HealthCheck)
}
