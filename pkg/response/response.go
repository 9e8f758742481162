package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeServerError   = 500
	CodeUnavailable   = 503
	CodeBusinessError = 1000
)

const (
	CodeUserNotFound         = 1001
	CodeInsufficientPoints   = 1002
	CodeRewardNotFound       = 1003
	CodeCodeNotFound         = 1004
	CodeAlreadyClaimed       = 1005
	CodeAlreadyProcessed     = 1006
	CodeExternalNotFound     = 1007
	CodeInvalidQRCode        = 1008
	CodeInvalidReferralCode  = 1009
	CodeReferralUsed         = 1010
	CodeEmailTaken           = 1011
	CodeCardNumberTaken      = 1012
	CodeSeasonNotFound       = 1013
	CodeBusy                 = 1014
	CodeMachineNotFound      = 1015
	CodeMachineExists        = 1016
	CodeNotificationNotFound = 1017
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error writes the envelope with an explicit HTTP status.
func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is Error plus a payload, used for field-level validation detail.
func ErrorWithData(c *gin.Context, status, code int, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

func Unavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// BusinessError is a rule violation the caller can correct.
func BusinessError(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}
