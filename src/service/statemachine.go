package service

import "whatsapp-session-service/src/models"

// ClientEvent is an event received from the external automation client.
type ClientEvent string

const (
	EventQR            ClientEvent = "qr"
	EventAuthenticated ClientEvent = "authenticated"
	EventReady         ClientEvent = "ready"
	EventDisconnected  ClientEvent = "disconnected"
	EventAuthFailure   ClientEvent = "auth_failure"
)

// transitions is the full event-driven transition table. DESTROYED is
// terminal and only reachable through explicit deletion, so it never
// appears as a target here.
var transitions = map[models.SessionStatus]map[ClientEvent]models.SessionStatus{
	models.StatusInitializing: {
		EventQR:            models.StatusQRReady,
		EventAuthenticated: models.StatusAuthenticated,
		EventReady:         models.StatusReady,
		EventDisconnected:  models.StatusDisconnected,
		EventAuthFailure:   models.StatusDisconnected,
	},
	models.StatusQRReady: {
		EventAuthenticated: models.StatusAuthenticated,
		EventDisconnected:  models.StatusDisconnected,
		EventAuthFailure:   models.StatusDisconnected,
	},
	models.StatusAuthenticated: {
		EventReady:        models.StatusReady,
		EventDisconnected: models.StatusDisconnected,
		EventAuthFailure:  models.StatusDisconnected,
	},
	models.StatusReady: {
		EventDisconnected: models.StatusDisconnected,
		EventAuthFailure:  models.StatusDisconnected,
	},
}

// NextStatus maps (current status, client event) to the next status. The
// second return is false when the event is not valid in the current state;
// callers must not mutate anything in that case.
func NextStatus(current models.SessionStatus, event ClientEvent) (models.SessionStatus, bool) {
	byEvent, ok := transitions[current]
	if !ok {
		return current, false
	}
	next, ok := byEvent[event]
	if !ok {
		return current, false
	}
	return next, true
}
