package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Status  int    `json:"-"`                 // HTTP status code
	Message string `json:"message,omitempty"` // Optional message
	Error   string `json:"error,omitempty"`   // Error message
	Code    string `json:"code,omitempty"`    // Machine readable error code
	Data    any    `json:"data,omitempty"`    // Response data
}

func respond(c *gin.Context, status int, resp *Response) {
	resp.Status = status
	c.JSON(status, resp)
}

// Success responses
func Success(c *gin.Context, data any) {
	respond(c, http.StatusOK, &Response{Data: data})
}

// Error responses
func Unauthorized(c *gin.Context, message string) {
	respond(c, http.StatusUnauthorized, &Response{Error: message})
}

// AbortUnauthorized is Unauthorized for middleware that must stop the chain.
func AbortUnauthorized(c *gin.Context, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, &Response{
		Status: http.StatusUnauthorized,
		Error:  message,
		Code:   code,
	})
}

func BadRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, &Response{Error: message})
}

func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, &Response{Error: message})
}

func InternalError(c *gin.Context, message string) {
	respond(c, http.StatusInternalServerError, &Response{Error: message})
}
