package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/minivault/internal/api/generate"
	"github.com/Conversly/minivault/internal/config"
	"github.com/Conversly/minivault/internal/controllers"
	"github.com/Conversly/minivault/internal/middleware"
)

// SetupRoutes configures all application routes. model and db may be nil when no
// backend or no interaction mirror is configured.
func SetupRoutes(router *gin.Engine, cfg *config.Config, model controllers.ModelStatus, db controllers.DBPinger, svc *generate.Service) {
	// Apply global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins...))
	router.Use(middleware.RequestID())

	// Setup route groups
	SetupHealthRoutes(router, cfg, model, db)
	generate.RegisterRoutes(router, svc)
	SetupFallbackHandlers(router)
}
