package httpapi

import (
	"github.com/gin-gonic/gin"
)

const (
	codeOK              = "SUCCESS"
	codeValidation      = "VALIDATION_ERROR"
	codeNotFound        = "NOT_FOUND"
	codeUnauthorized    = "UNAUTHORIZED"
	codeFederationOff   = "FEDERATION_DISABLED"
	codeInternal        = "INTERNAL_SERVER_ERROR"
	messageBadJSON      = "Request body is not valid JSON."
	messageInternal     = "Internal server error."
	messageAuthRequired = "Authentication required."
)

// envelope is the body of every API response.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Code: codeOK, Message: message, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Code: code, Message: message})
}
