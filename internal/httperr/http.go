// Package httperr writes the structured error body shared by every endpoint:
// {"error":{"message","type","request_id"}}.
package httperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	TypeNotFound       = "not_found_error"
	TypeValidation     = "validation_error"
	TypeUnauthorized   = "unauthorized_error"
	TypeConflict       = "conflict_error"
	TypeUploadDisabled = "upload_disabled"
	TypeInternal       = "internal_error"
)

type Response struct {
	Error *Detail `json:"error"`
}

type Detail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// Write aborts the request with the given status and error body.
func Write(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, Response{
		Error: &Detail{
			Message:   message,
			Type:      errType,
			RequestID: c.GetString("request_id"),
		},
	})
}

func WriteNotFound(c *gin.Context, message string) {
	Write(c, http.StatusNotFound, TypeNotFound, message)
}

func WriteValidationError(c *gin.Context, message string) {
	Write(c, http.StatusBadRequest, TypeValidation, message)
}

func WriteUnauthorized(c *gin.Context, message string) {
	Write(c, http.StatusUnauthorized, TypeUnauthorized, message)
}

func WriteConflict(c *gin.Context, message string) {
	Write(c, http.StatusConflict, TypeConflict, message)
}

func WriteUploadDisabled(c *gin.Context) {
	Write(c, http.StatusServiceUnavailable, TypeUploadDisabled, "image upload is disabled")
}

func WriteInternalError(c *gin.Context, message string) {
	Write(c, http.StatusInternalServerError, TypeInternal, message)
}
