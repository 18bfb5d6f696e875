package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"vibeconnect/errs"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: http.StatusCreated, Message: "success", Data: data})
}

// Fail is the single translation point from service errors to HTTP responses.
// The error is attached to the context so the request logger records it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := StatusOf(errs.KindOf(err))
	c.AbortWithStatusJSON(status, Response{Code: status, Message: errs.MessageOf(err)})
}

func StatusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidInput, errs.KindInvalidState:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, errs.InvalidInput("%s", message))
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, errs.Unauthenticated("%s", message))
}

func NotFound(c *gin.Context, message string) {
	Fail(c, errs.NotFound("%s", message))
}
