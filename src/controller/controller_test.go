package controller

import (
	"errors"
	"net/http"
	"testing"

	"whatsapp-session-service/src/models"
)

func TestMapDomainErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", models.ErrSessionNotFound, http.StatusNotFound},
		{"user not found", models.ErrUserNotFound, http.StatusNotFound},
		{"already initializing", models.ErrAlreadyInitializing, http.StatusConflict},
		{"already authenticated", models.ErrAlreadyAuthenticated, http.StatusConflict},
		{"restoration corrupted", models.ErrRestorationCorrupted, http.StatusConflict},
		{"network unavailable", models.ErrNetworkUnavailable, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := mapDomainError(c.err, "/sessions/x")
			if resp.Status != c.want {
				t.Fatalf("got status %d, want %d", resp.Status, c.want)
			}
			if resp.Instance != "/sessions/x" {
				t.Fatalf("instance not carried: %+v", resp)
			}
		})
	}
}

func TestMapDomainErrorCarriesNotReadyReason(t *testing.T) {
	err := models.NewNotReadyError("s1", models.StatusQRReady, models.ReasonScanRequired, "scan the code")
	resp := mapDomainError(err, "/sessions/s1/messages")

	if resp.Status != http.StatusConflict {
		t.Fatalf("got status %d, want 409", resp.Status)
	}
	if resp.Reason != string(models.ReasonScanRequired) {
		t.Fatalf("reason not carried: %+v", resp)
	}
	if resp.Detail != "scan the code" {
		t.Fatalf("detail not carried: %+v", resp)
	}
}

func TestMapDomainErrorCarriesInitHint(t *testing.T) {
	err := &models.InitError{
		SessionID: "s1",
		Attempts:  3,
		Hint:      models.HintTimeout,
		Err:       models.ErrGenerationTimeout,
	}
	resp := mapDomainError(err, "/sessions/s1")

	if resp.Status != http.StatusBadGateway {
		t.Fatalf("got status %d, want 502", resp.Status)
	}
	if resp.Hint != string(models.HintTimeout) {
		t.Fatalf("hint not carried: %+v", resp)
	}
}
