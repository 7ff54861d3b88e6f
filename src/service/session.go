package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-session-service/src/models"
)

// CreateSession returns the user's current session, reviving or replacing
// it when it has gone stale, or creates a brand-new one. Initialization
// always runs detached; the returned record reflects the state at return
// time, usually INITIALIZING or whatever the live session already reached.
func (m *Manager) CreateSession(ctx context.Context, userID string) (*models.SessionRecord, error) {
	exists, err := m.identity.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify user: %w", err)
	}
	if !exists {
		return nil, models.ErrUserNotFound
	}

	rec, err := m.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if rec != nil {
		if !m.sessionExpired(rec, time.Now()) {
			now := time.Now()
			m.registry.Touch(rec.SessionID, now)
			if err := m.store.Update(ctx, rec.SessionID, models.SessionUpdate{
				LastActivity: &now,
			}); err != nil {
				slog.Warn("Failed to record session reuse",
					"session_id", rec.SessionID, "error", err)
			}
			rec.LastActivity = &now
			return rec, nil
		}

		// The record went stale (expired QR, stuck initialization, dropped
		// connection). Revive it in place so the user keeps their session
		// identity.
		slog.Info("Reviving stale session",
			"session_id", rec.SessionID, "user_id", userID, "status", rec.Status)
		return m.reinitialize(ctx, rec)
	}

	rec, err = m.store.Create(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("Created session", "session_id", rec.SessionID, "user_id", userID)
	m.publishEvent("created", rec.SessionID, userID)
	m.startInitialization(rec.SessionID, false)
	return rec, nil
}

// reinitialize tears down any leftover runtime for a record and starts a
// fresh detached initialization, restoring from saved credentials when the
// session had authenticated and the credentials are still on disk.
func (m *Manager) reinitialize(ctx context.Context, rec *models.SessionRecord) (*models.SessionRecord, error) {
	m.teardownRuntime(ctx, rec.SessionID)

	restore := rec.IsAuthenticated && m.creds.Exists(rec.SessionID)
	if err := m.prepareForInit(ctx, rec.SessionID, restore); err != nil {
		return nil, err
	}
	m.startInitialization(rec.SessionID, restore)
	return m.store.FindByID(ctx, rec.SessionID)
}

// prepareForInit resets a record for a new initialization attempt. The
// restoration variant keeps is_authenticated set, because that flag is what
// marks the session as restorable.
func (m *Manager) prepareForInit(ctx context.Context, sessionID string, restore bool) error {
	if restore {
		return m.store.Update(ctx, sessionID, models.SessionUpdate{
			Status:      models.StatusPtr(models.StatusInitializing),
			IsReady:     models.BoolPtr(false),
			ClearQRCode: true,
			ClearError:  true,
		})
	}
	return m.resetToInitializing(ctx, sessionID)
}

// sessionExpired applies the per-status staleness rules to a record.
func (m *Manager) sessionExpired(rec *models.SessionRecord, now time.Time) bool {
	switch rec.Status {
	case models.StatusQRReady:
		if age, ok := rec.QRCodeAge(now); ok {
			return age > m.cfg.QRCodeTTL
		}
		return now.Sub(rec.UpdatedAt) > m.cfg.QRCodeTTL

	case models.StatusInitializing:
		if m.registry.IsInitializing(rec.SessionID) {
			return false
		}
		return now.Sub(rec.UpdatedAt) > m.cfg.InitStuckAfter

	case models.StatusAuthenticated, models.StatusReady:
		if h := m.registry.Get(rec.SessionID); h != nil {
			// A live handle that fell out of its authenticated states is a
			// broken connection, however recent the activity.
			return h.Status != models.StatusReady && h.Status != models.StatusAuthenticated
		}
		last := rec.UpdatedAt
		if rec.LastActivity != nil {
			last = *rec.LastActivity
		}
		return now.Sub(last) > m.cfg.IdleExpiry

	default:
		// DISCONNECTED and DESTROYED always need a fresh start.
		return true
	}
}

// GetSessionStatus returns the durable record for a session, reconciled
// against the live registry first.
func (m *Manager) GetSessionStatus(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.reconcileOnRead(ctx, rec), nil
}

// GetUserSession returns the user's current non-destroyed session.
func (m *Manager) GetUserSession(ctx context.Context, userID string) (*models.SessionRecord, error) {
	rec, err := m.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrSessionNotFound
	}
	return m.reconcileOnRead(ctx, rec), nil
}

// reconcileOnRead squares the durable record with the live registry before
// the record is handed out. A handle's cached status wins over the record;
// a record claiming a live state with no handle behind it is demoted, as is
// an unscanned QR code past its validity window. Returns the refreshed
// record, or the input when nothing changed.
func (m *Manager) reconcileOnRead(ctx context.Context, rec *models.SessionRecord) *models.SessionRecord {
	sessionID := rec.SessionID

	if h := m.registry.Get(sessionID); h != nil {
		if h.Status == rec.Status {
			return rec
		}
		upd := models.SessionUpdate{
			Status:  models.StatusPtr(h.Status),
			IsReady: models.BoolPtr(h.Status == models.StatusReady),
		}
		if h.IsAuthenticated {
			upd.IsAuthenticated = models.BoolPtr(true)
		}
		slog.Info("Reconciling record with live connection state",
			"session_id", sessionID, "record", rec.Status, "handle", h.Status)
		if err := m.store.Update(ctx, sessionID, upd); err != nil {
			slog.Warn("Failed to reconcile session record",
				"session_id", sessionID, "error", err)
			return rec
		}
		return m.refreshRecord(ctx, rec)
	}

	if m.registry.IsInitializing(sessionID) {
		return rec
	}

	switch rec.Status {
	case models.StatusReady, models.StatusAuthenticated:
		m.markDisconnected(ctx, sessionID, "no live connection in this process")
		return m.refreshRecord(ctx, rec)

	case models.StatusQRReady:
		age, ok := rec.QRCodeAge(time.Now())
		if !ok {
			age = time.Since(rec.UpdatedAt)
		}
		if age > m.cfg.QRCodeTTL {
			m.timers.CancelAll(sessionID)
			m.markDisconnected(ctx, sessionID, "QR code expired without being scanned")
			return m.refreshRecord(ctx, rec)
		}
	}
	return rec
}

func (m *Manager) refreshRecord(ctx context.Context, rec *models.SessionRecord) *models.SessionRecord {
	fresh, err := m.store.FindByID(ctx, rec.SessionID)
	if err != nil {
		return rec
	}
	return fresh
}

// GetQRCode returns a fresh QR code for a session, or a classified error
// describing why none can be served right now.
func (m *Manager) GetQRCode(ctx context.Context, sessionID string) (string, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return "", err
	}

	switch rec.Status {
	case models.StatusAuthenticated, models.StatusReady:
		return "", models.ErrAlreadyAuthenticated

	case models.StatusDestroyed:
		return "", models.ErrSessionNotFound

	case models.StatusInitializing:
		return "", models.NewNotReadyError(sessionID, rec.Status,
			models.ReasonPending, "QR code is not generated yet")

	case models.StatusDisconnected:
		msg := "session is disconnected; restart it to get a new QR code"
		if rec.LastError != nil {
			msg = *rec.LastError
		}
		return "", models.NewNotReadyError(sessionID, rec.Status,
			models.ReasonDisconnected, msg)
	}

	age, ok := rec.QRCodeAge(time.Now())
	if !ok {
		return "", models.NewNotReadyError(sessionID, rec.Status,
			models.ReasonPending, "QR code is not generated yet")
	}
	if age > m.cfg.QRCodeTTL {
		// A stale code is never served; the session has to start over.
		m.teardownRuntime(ctx, sessionID)
		m.markDisconnected(ctx, sessionID, "QR code expired without being scanned")
		return "", models.NewNotReadyError(sessionID, models.StatusDisconnected,
			models.ReasonScanExpired, "stored QR code is stale; restart the session")
	}
	return *rec.QRCode, nil
}

// GetUserSessions lists every session recorded for a user.
func (m *Manager) GetUserSessions(ctx context.Context, userID string) ([]models.SessionRecord, error) {
	return m.store.List(ctx, models.ListFilter{UserID: userID})
}

// GetActiveSessions lists every session in a live state.
func (m *Manager) GetActiveSessions(ctx context.Context) ([]models.SessionRecord, error) {
	return m.store.List(ctx, models.ListFilter{
		Statuses: []models.SessionStatus{
			models.StatusInitializing,
			models.StatusQRReady,
			models.StatusAuthenticated,
			models.StatusReady,
		},
	})
}

// IsSessionActive reports whether a session has a live connection in this
// process.
func (m *Manager) IsSessionActive(sessionID string) bool {
	h := m.registry.Get(sessionID)
	return h != nil && h.Status.IsLive()
}

// RestartSession tears a session down and reinitializes it, restoring from
// saved credentials when possible.
func (m *Manager) RestartSession(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusDestroyed {
		return nil, models.ErrSessionNotFound
	}

	slog.Info("Restarting session", "session_id", sessionID)
	m.publishEvent("restarting", sessionID, rec.UserID)
	return m.reinitialize(ctx, rec)
}

// DeleteSession removes every trace of a session: the live connection, the
// timers, the local credentials, the remote backup, and the durable record.
// It is unconditional and idempotent: every step runs even when earlier
// ones found nothing to remove, so a half-deleted session can always be
// finished off by calling it again.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return err
	}

	m.teardownRuntime(ctx, sessionID)

	if err := m.creds.Delete(sessionID); err != nil {
		slog.Warn("Failed to delete local credentials",
			"session_id", sessionID, "error", err)
	}
	if err := m.backup.Delete(ctx, sessionID); err != nil {
		slog.Warn("Failed to delete credential backup",
			"session_id", sessionID, "error", err)
	}

	if rec != nil {
		if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
			return fmt.Errorf("failed to delete session record: %w", err)
		}
	}

	// Verify nothing survived; force-remove anything that did.
	if h := m.registry.Remove(sessionID); h != nil {
		slog.Error("Connection handle survived deletion; removed it",
			"session_id", sessionID)
		if err := h.Client.Destroy(ctx); err != nil {
			slog.Warn("Failed to destroy surviving client",
				"session_id", sessionID, "error", err)
		}
	}
	if m.timers.Has(sessionID) {
		slog.Error("Timers survived deletion; cancelled them", "session_id", sessionID)
		m.timers.CancelAll(sessionID)
	}
	if m.creds.Exists(sessionID) {
		return fmt.Errorf("local credentials for session %s survived deletion", sessionID)
	}

	if rec != nil {
		slog.Info("Deleted session", "session_id", sessionID, "user_id", rec.UserID)
		m.publishEvent("deleted", sessionID, rec.UserID)
	}
	return nil
}
