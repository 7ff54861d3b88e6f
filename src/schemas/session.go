package schemas

import (
	"time"

	"whatsapp-session-service/src/models"
)

// CreateSessionRequest represents the request body for creating a session
type CreateSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	IsReady         bool       `json:"is_ready"`
	IsAuthenticated bool       `json:"is_authenticated"`
	PhoneNumber     string     `json:"phone_number,omitempty"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SessionFromRecord maps a durable record to its API shape. The QR code is
// deliberately omitted; it has its own endpoint.
func SessionFromRecord(rec *models.SessionRecord) SessionResponse {
	resp := SessionResponse{
		SessionID:       rec.SessionID,
		UserID:          rec.UserID,
		Status:          string(rec.Status),
		IsReady:         rec.IsReady,
		IsAuthenticated: rec.IsAuthenticated,
		LastActivity:    rec.LastActivity,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.PhoneNumber != nil {
		resp.PhoneNumber = *rec.PhoneNumber
	}
	if rec.LastError != nil {
		resp.LastError = *rec.LastError
	}
	return resp
}

// SessionListResponse represents a list of sessions
type SessionListResponse struct {
	Total    int               `json:"total"`
	Sessions []SessionResponse `json:"sessions"`
}

// QRCodeResponse represents a served QR code with its remaining freshness
type QRCodeResponse struct {
	SessionID        string `json:"session_id"`
	QRCode           string `json:"qr_code"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// SessionActiveResponse reports whether a session holds a live connection
type SessionActiveResponse struct {
	SessionID string `json:"session_id"`
	Active    bool   `json:"active"`
}

// DeleteSessionResponse confirms a completed deletion
type DeleteSessionResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}
