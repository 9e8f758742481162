package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"hivisloyalty/internal/job"
	"hivisloyalty/internal/service"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SyncController is the runtime handle on the vending API poller.
type SyncController interface {
	Start(ctx context.Context) error
	Stop() error
	Status() job.SyncStatus
	RunOnce(ctx context.Context)
}

// Handler adapts HTTP requests onto the loyalty services.
type Handler struct {
	svc    *service.Services
	poller SyncController
	log    *zap.Logger
	// background context for work that outlives a request, such as the poller
	baseCtx context.Context
}

// NewHandler builds the handler. poller may be nil when no vending API is
// configured; the sync endpoints then answer 503.
func NewHandler(ctx context.Context, svc *service.Services, poller SyncController, log *zap.Logger) *Handler {
	return &Handler{
		svc:     svc,
		poller:  poller,
		log:     log.Named("http"),
		baseCtx: ctx,
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors onto the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithData(c, http.StatusBadRequest, response.CodeParamError, verr.Error(), gin.H{"fields": verr.Fields})
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, service.ErrRewardNotFound):
		response.NotFound(c, response.CodeRewardNotFound, err.Error())
	case errors.Is(err, service.ErrCodeNotFound):
		response.NotFound(c, response.CodeCodeNotFound, err.Error())
	case errors.Is(err, service.ErrExternalNotFound):
		response.NotFound(c, response.CodeExternalNotFound, err.Error())
	case errors.Is(err, service.ErrSeasonNotFound):
		response.NotFound(c, response.CodeSeasonNotFound, err.Error())
	case errors.Is(err, service.ErrMachineNotFound):
		response.NotFound(c, response.CodeMachineNotFound, err.Error())
	case errors.Is(err, service.ErrNotificationNotFound):
		response.NotFound(c, response.CodeNotificationNotFound, err.Error())
	case errors.Is(err, service.ErrMachineExists):
		response.Conflict(c, response.CodeMachineExists, err.Error())
	case errors.Is(err, service.ErrAlreadyClaimed):
		response.Conflict(c, response.CodeAlreadyClaimed, err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed):
		response.Conflict(c, response.CodeAlreadyProcessed, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, response.CodeEmailTaken, err.Error())
	case errors.Is(err, service.ErrCardNumberTaken):
		response.Conflict(c, response.CodeCardNumberTaken, err.Error())
	case errors.Is(err, service.ErrReferralAlreadyUsed):
		response.Conflict(c, response.CodeReferralUsed, err.Error())
	case errors.Is(err, service.ErrInsufficientPoints):
		response.BusinessError(c, response.CodeInsufficientPoints, err.Error())
	case errors.Is(err, service.ErrInvalidQRCode):
		response.BusinessError(c, response.CodeInvalidQRCode, err.Error())
	case errors.Is(err, service.ErrInvalidReferralCode), errors.Is(err, service.ErrOwnReferralCode):
		response.BusinessError(c, response.CodeInvalidReferralCode, err.Error())
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidPoints):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrBusy):
		response.Error(c, http.StatusServiceUnavailable, response.CodeBusy, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		response.ServerError(c, "internal error")
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}
