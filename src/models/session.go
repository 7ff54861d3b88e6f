package models

import "time"

// SessionStatus represents the lifecycle state of a WhatsApp session
type SessionStatus string

const (
	StatusInitializing  SessionStatus = "INITIALIZING"
	StatusQRReady       SessionStatus = "QR_READY"
	StatusAuthenticated SessionStatus = "AUTHENTICATED"
	StatusReady         SessionStatus = "READY"
	StatusDisconnected  SessionStatus = "DISCONNECTED"
	StatusDestroyed     SessionStatus = "DESTROYED"
)

// IsValid reports whether s is one of the six lifecycle states.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusInitializing, StatusQRReady, StatusAuthenticated,
		StatusReady, StatusDisconnected, StatusDestroyed:
		return true
	}
	return false
}

// IsLive reports whether the status implies work in flight or an
// established connection.
func (s SessionStatus) IsLive() bool {
	switch s {
	case StatusInitializing, StatusQRReady, StatusAuthenticated, StatusReady:
		return true
	}
	return false
}

// IsAuthenticatedState reports whether the status implies saved credentials
// that can be restored without scanning a new code.
func (s SessionStatus) IsAuthenticatedState() bool {
	return s == StatusAuthenticated || s == StatusReady
}

// SessionRecord is the durable session row. At most one record per user may
// exist with a status other than DESTROYED.
type SessionRecord struct {
	SessionID       string        `json:"session_id"`
	UserID          string        `json:"user_id"`
	Status          SessionStatus `json:"status"`
	IsReady         bool          `json:"is_ready"`
	IsAuthenticated bool          `json:"is_authenticated"`
	QRCode          *string       `json:"qr_code,omitempty"`
	PhoneNumber     *string       `json:"phone_number,omitempty"`
	LastActivity    *time.Time    `json:"last_activity,omitempty"`
	LastError       *string       `json:"last_error,omitempty"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// QRCodeAge returns how old the stored QR code is, measured from the
// record's last update. Returns false when no code is stored.
func (r *SessionRecord) QRCodeAge(now time.Time) (time.Duration, bool) {
	if r.QRCode == nil || *r.QRCode == "" {
		return 0, false
	}
	return now.Sub(r.UpdatedAt), true
}

// SessionUpdate is a partial update applied to a session record. Nil fields
// are left untouched; the Clear flags null out their column.
type SessionUpdate struct {
	Status          *SessionStatus
	IsReady         *bool
	IsAuthenticated *bool
	QRCode          *string
	ClearQRCode     bool
	PhoneNumber     *string
	LastActivity    *time.Time
	LastError       *string
	ClearError      bool
}

// StatusPtr is a convenience for building partial updates.
func StatusPtr(s SessionStatus) *SessionStatus { return &s }

// BoolPtr is a convenience for building partial updates.
func BoolPtr(b bool) *bool { return &b }

// StringPtr is a convenience for building partial updates.
func StringPtr(s string) *string { return &s }

// TimePtr is a convenience for building partial updates.
func TimePtr(t time.Time) *time.Time { return &t }

// ListFilter narrows a session listing. Statuses is an IN filter;
// ActiveSince/CreatedSince are OR-combined when both are set (a record
// matches if it was active since the one or created since the other).
type ListFilter struct {
	Statuses     []SessionStatus
	ActiveSince  time.Time
	CreatedSince time.Time
	UserID       string
}
