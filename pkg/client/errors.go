package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error represents a failed request
type Error struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the key does not exist
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if the key already exists
func (e *Error) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsReadOnly returns true if the key cannot be modified
func (e *Error) IsReadOnly() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsTooLarge returns true if the key or value exceeds the server's limits
func (e *Error) IsTooLarge() bool {
	return e.StatusCode == http.StatusRequestEntityTooLarge
}

// IsRateLimited returns true if the server rejected the request for rate
func (e *Error) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func newResponseError(resp *http.Response, body []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		e.Message = payload.Error
	} else if text := strings.TrimSpace(string(body)); text != "" {
		e.Message = text
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		e.RetryAfter = time.Duration(seconds) * time.Second
	}
	return e
}

// wrapError annotates transport failures with the operation. Responses from
// the server are already *Error and pass through.
func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{
		Message: fmt.Sprintf("%s failed", operation),
		Err:     err,
	}
}
