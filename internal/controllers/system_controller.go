package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/minivault/internal/config"
	"github.com/Conversly/minivault/internal/gateway"
)

const apiVersion = "2.0.0"

type SystemController struct {
	cfg   *config.Config
	model ModelStatus
}

func NewSystemController(cfg *config.Config, model ModelStatus) *SystemController {
	return &SystemController{cfg: cfg, model: model}
}

// Root godoc
// @Summary API information
// @Description Service version, model availability and the list of endpoints
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (s *SystemController) Root(c *gin.Context) {
	loaded := s.model != nil && s.model.State() == gateway.StateReady
	modelName := "None"
	if loaded {
		modelName = s.model.ModelName()
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to MiniVault API",
		"version": apiVersion,
		"features": gin.H{
			"local_llm": loaded,
			"model":     modelName,
		},
		"endpoints": gin.H{
			"generate": "POST /generate - Generate a response from a prompt",
			"config":   "POST /config - Configure LLM settings",
			"health":   "GET /health - Health check",
		},
	})
}

// Info godoc
// @Summary Get system information
// @Description Get detailed system information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /info [get]
func (s *SystemController) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":       s.cfg.ServiceName,
		"version":       apiVersion,
		"environment":   s.cfg.Environment,
		"hostname":      s.cfg.Hostname,
		"debug":         s.cfg.Debug,
		"log_level":     s.cfg.LogLevel,
		"model_backend": s.cfg.ModelBackend,
	})
}
