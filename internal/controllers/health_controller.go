package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/gateway"
	"github.com/Conversly/minivault/internal/utils"
)

// ModelStatus reports the model lifecycle. Implemented by *gateway.Gateway.
type ModelStatus interface {
	State() gateway.State
	ModelName() string
}

// DBPinger checks the interaction mirror database. Implemented by *loaders.PostgresClient.
type DBPinger interface {
	Ping(ctx context.Context) error
}

const stateUnavailable = "unavailable"

type HealthController struct {
	model ModelStatus
	db    DBPinger
}

// NewHealthController accepts a nil model when no backend is configured and a
// nil db when the interaction mirror is off.
func NewHealthController(model ModelStatus, db DBPinger) *HealthController {
	return &HealthController{model: model, db: db}
}

// HealthCheck godoc
// @Summary Check application health
// @Description Report liveness, whether the model is loaded and, if configured, the mirror database
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthController) HealthCheck(c *gin.Context) {
	state := stateUnavailable
	loaded := false
	if h.model != nil {
		st := h.model.State()
		state = st.String()
		loaded = st == gateway.StateReady
	}

	body := gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"llm_loaded": loaded,
		"llm_state":  state,
	}

	// the JSONL log is authoritative, so a down mirror is reported but does not fail the check
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			utils.Zlog.Error("Database health check failed", zap.Error(err))
			body["database"] = "down"
		} else {
			body["database"] = "up"
		}
	}

	c.JSON(http.StatusOK, body)
}
