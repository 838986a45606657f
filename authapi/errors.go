package authapi

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-session-client/internal/errors"
)

// APIError is a non-2xx (or unsuccessful) API response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is lets callers match a 401 with errors.Is(err, errors.ErrUnauthorized).
func (e *APIError) Is(target error) bool {
	return target == errors.ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// defaultMessage mirrors the messages shown to users for common statuses.
func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Please check your input and try again"
	case http.StatusUnauthorized:
		return "You are not authorized to perform this action"
	case http.StatusNotFound:
		return "The requested resource was not found"
	case 0:
		return "Network error. Please check your connection"
	default:
		return "Server error. Please try again later"
	}
}
