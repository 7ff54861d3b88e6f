package models

import (
	"errors"
	"fmt"
)

// Domain-level sentinel errors for business logic
// These errors should not contain HTTP-specific information

var (
	// ErrSessionNotFound indicates that a session with the given ID does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound indicates that the user is unknown to the identity service
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyInitializing indicates a reentrant initialization attempt
	ErrAlreadyInitializing = errors.New("session is already initializing")

	// ErrNetworkUnavailable indicates the pre-flight reachability check failed
	ErrNetworkUnavailable = errors.New("messaging network unreachable")

	// ErrGenerationTimeout indicates no QR code arrived within the generation window
	ErrGenerationTimeout = errors.New("timed out waiting for QR code")

	// ErrRestorationCorrupted indicates a restoration produced a QR code or was
	// attempted against a record that never authenticated
	ErrRestorationCorrupted = errors.New("saved credentials are corrupted")

	// ErrRestorationTimeout indicates a restoration never reached ready
	ErrRestorationTimeout = errors.New("timed out restoring session")

	// ErrAuthenticationFailed indicates the client reported an auth failure
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrScanTimeout indicates a QR code expired without being scanned
	ErrScanTimeout = errors.New("QR code was not scanned in time")

	// ErrAlreadyAuthenticated indicates a QR code was requested for a session
	// that no longer needs one
	ErrAlreadyAuthenticated = errors.New("session is already authenticated")
)

// NotReadyReason classifies why a send was rejected, so the calling layer can
// render the correct remediation without re-deriving it.
type NotReadyReason string

const (
	ReasonPending      NotReadyReason = "pending"
	ReasonScanRequired NotReadyReason = "scan_required"
	ReasonScanExpired  NotReadyReason = "scan_expired"
	ReasonDisconnected NotReadyReason = "disconnected"
	ReasonInitFailed   NotReadyReason = "init_failed"
)

// NotReadyError is returned when a send is attempted without a live, ready
// connection.
type NotReadyError struct {
	SessionID string
	Status    SessionStatus
	Reason    NotReadyReason
	Message   string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("session %s not ready (%s): %s", e.SessionID, e.Reason, e.Message)
}

// NewNotReadyError builds a classified not-ready error.
func NewNotReadyError(sessionID string, status SessionStatus, reason NotReadyReason, message string) *NotReadyError {
	return &NotReadyError{SessionID: sessionID, Status: status, Reason: reason, Message: message}
}

// InitHint annotates an initialization failure with the remediation class the
// caller should surface: network, timeout, or transport.
type InitHint string

const (
	HintNetwork   InitHint = "network"
	HintTimeout   InitHint = "timeout"
	HintTransport InitHint = "transport"
)

// InitError wraps the last error of an exhausted initialization retry loop.
type InitError struct {
	SessionID string
	Attempts  int
	Hint      InitHint
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed for session %s after %d attempts (%s): %v",
		e.SessionID, e.Attempts, e.Hint, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// HintFor derives the remediation hint for an initialization error.
func HintFor(err error) InitHint {
	switch {
	case errors.Is(err, ErrNetworkUnavailable):
		return HintNetwork
	case errors.Is(err, ErrGenerationTimeout), errors.Is(err, ErrRestorationTimeout):
		return HintTimeout
	default:
		return HintTransport
	}
}
