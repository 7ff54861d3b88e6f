package service

import (
	"testing"

	"whatsapp-session-service/src/models"
)

func TestNextStatusValidTransitions(t *testing.T) {
	cases := []struct {
		from  models.SessionStatus
		event ClientEvent
		want  models.SessionStatus
	}{
		{models.StatusInitializing, EventQR, models.StatusQRReady},
		{models.StatusInitializing, EventAuthenticated, models.StatusAuthenticated},
		{models.StatusInitializing, EventReady, models.StatusReady},
		{models.StatusInitializing, EventDisconnected, models.StatusDisconnected},
		{models.StatusQRReady, EventAuthenticated, models.StatusAuthenticated},
		{models.StatusQRReady, EventAuthFailure, models.StatusDisconnected},
		{models.StatusAuthenticated, EventReady, models.StatusReady},
		{models.StatusAuthenticated, EventDisconnected, models.StatusDisconnected},
		{models.StatusReady, EventDisconnected, models.StatusDisconnected},
		{models.StatusReady, EventAuthFailure, models.StatusDisconnected},
	}
	for _, c := range cases {
		got, ok := NextStatus(c.from, c.event)
		if !ok {
			t.Errorf("%s + %s: expected valid transition", c.from, c.event)
			continue
		}
		if got != c.want {
			t.Errorf("%s + %s: got %s, want %s", c.from, c.event, got, c.want)
		}
	}
}

func TestNextStatusRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from  models.SessionStatus
		event ClientEvent
	}{
		// An authenticated or ready session must never regress to a QR code
		// through an event; that signal means corruption.
		{models.StatusReady, EventQR},
		{models.StatusAuthenticated, EventQR},
		{models.StatusQRReady, EventQR},
		{models.StatusQRReady, EventReady},
		{models.StatusReady, EventAuthenticated},
		// Terminal states accept nothing.
		{models.StatusDisconnected, EventQR},
		{models.StatusDisconnected, EventReady},
		{models.StatusDestroyed, EventQR},
		{models.StatusDestroyed, EventDisconnected},
	}
	for _, c := range cases {
		got, ok := NextStatus(c.from, c.event)
		if ok {
			t.Errorf("%s + %s: expected rejection, got %s", c.from, c.event, got)
		}
		if got != c.from {
			t.Errorf("%s + %s: rejected transition must return current status, got %s", c.from, c.event, got)
		}
	}
}
