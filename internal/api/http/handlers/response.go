package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kvdb/kvdb/internal/api/validation"
	"github.com/kvdb/kvdb/internal/keystore"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// SuccessResponse is the body of requests that return nothing else
type SuccessResponse struct {
	Success bool `json:"success"`
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	var verr validation.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, keystore.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, keystore.ErrKeyAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, keystore.ErrReadOnlyViolation):
		return http.StatusForbidden
	case errors.Is(err, keystore.ErrKeyTooLong), errors.Is(err, keystore.ErrValueTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, keystore.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends the JSON error body. Storage failures are reported
// without their cause.
func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal storage error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Success: false})
}
