package generate

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/utils"
)

type Controller struct {
	service *Service
}

func NewController(svc *Service) *Controller {
	return &Controller{service: svc}
}

func (c *Controller) Generate(ctx *gin.Context) {
	var req PromptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Zlog.Warn("invalid /generate payload", zap.Error(err))
		badRequest(ctx, err)
		return
	}

	resp, err := c.service.Handle(ctx.Request.Context(), req)
	if err != nil {
		internalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, GenerateResponse{Response: resp})
}

func (c *Controller) Config(ctx *gin.Context) {
	var req ConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Zlog.Warn("invalid /config payload", zap.Error(err))
		badRequest(ctx, err)
		return
	}

	status, err := c.service.Configure(ctx.Request.Context(), req.Config)
	if err != nil {
		internalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, status)
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"error":     "bad_request",
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	})
}

func internalError(ctx *gin.Context, err error) {
	var ie *InternalError
	if !errors.As(err, &ie) {
		ie = &InternalError{Detail: err.Error(), Err: err}
	}
	ctx.JSON(http.StatusInternalServerError, ErrorResponse{Detail: ie.Detail})
}
