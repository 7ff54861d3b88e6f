package schemas

import (
	"fmt"
	"net/http"
)

// ErrorResponse represents a standard API error (RFC 7807).
// It implements the standard Go error interface.
type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"` // HTTP Status Code
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	Reason   string `json:"reason,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// NewErrorResponse creates a general ErrorResponse.
func NewErrorResponse(status int, title, detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     fmt.Sprintf("https://whatsapp-session-service.com/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// --- Helper Constructors for Common HTTP Errors ---

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, "Bad Request", detail, instance)
}

// NewNotFoundError creates a 404 Not Found error.
func NewNotFoundError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, "Not Found", detail, instance)
}

// NewConflictError creates a 409 Conflict error.
func NewConflictError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusConflict, "Conflict", detail, instance)
}

// NewInternalError creates a 500 Internal Server Error.
// Note: Be careful not to expose sensitive technical details in production.
func NewInternalError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal Server Error", detail, instance)
}

// NewBadGatewayError creates a 502 Bad Gateway error.
// Used when the browser automation bridge or another upstream fails.
func NewBadGatewayError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadGateway, "Bad Gateway", detail, instance)
}

// --- Domain-Specific Error Constructors ---

// SessionNotReadyError creates a 409 Conflict carrying the machine-readable
// reason a session cannot send messages yet.
func SessionNotReadyError(detail, instance, reason string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://whatsapp-session-service.com/session-not-ready",
		Title:    "Session Not Ready",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
		Reason:   reason,
	}
}

// InitializationFailedError creates a 502 carrying the remediation hint of
// an exhausted initialization.
func InitializationFailedError(detail, instance, hint string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://whatsapp-session-service.com/initialization-failed",
		Title:    "Initialization Failed",
		Status:   http.StatusBadGateway,
		Detail:   detail,
		Instance: instance,
		Hint:     hint,
	}
}
