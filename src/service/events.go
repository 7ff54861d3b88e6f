package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/rabbitmq"
	"whatsapp-session-service/src/waclient"

	"errors"
)

// initWaiter lets a blocked initialization observe the first relevant event.
// Channels are buffered so event handlers never block on a slow waiter.
type initWaiter struct {
	restoring bool

	qr    chan string
	ready chan struct{}
	fail  chan error
}

type waiterTable struct {
	mu sync.Mutex
	m  map[string]*initWaiter
}

func newWaiterTable() *waiterTable {
	return &waiterTable{m: make(map[string]*initWaiter)}
}

func (t *waiterTable) add(sessionID string, restoring bool) *initWaiter {
	w := &initWaiter{
		restoring: restoring,
		qr:        make(chan string, 1),
		ready:     make(chan struct{}, 1),
		fail:      make(chan error, 1),
	}
	t.mu.Lock()
	t.m[sessionID] = w
	t.mu.Unlock()
	return w
}

func (t *waiterTable) remove(sessionID string) {
	t.mu.Lock()
	delete(t.m, sessionID)
	t.mu.Unlock()
}

func (t *waiterTable) get(sessionID string) *initWaiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[sessionID]
}

// clientHandlers wires the external client's events into the state machine.
func (m *Manager) clientHandlers(sessionID, userID string) waclient.EventHandlers {
	return waclient.EventHandlers{
		OnQR:            func(code string) { m.handleQR(sessionID, userID, code) },
		OnAuthenticated: func() { m.handleAuthenticated(sessionID, userID) },
		OnReady:         func() { m.handleReady(sessionID, userID) },
		OnDisconnected:  func(reason string) { m.handleDisconnected(sessionID, userID, reason) },
		OnAuthFailure:   func(msg string) { m.handleAuthFailure(sessionID, userID, msg) },
		OnLoadingScreen: func(percent int, msg string) {
			slog.Debug("Client loading", "session_id", sessionID, "percent", percent, "message", msg)
		},
		OnStateChange: func(state string) {
			slog.Debug("Client state changed", "session_id", sessionID, "state", state)
		},
	}
}

func (m *Manager) handleQR(sessionID, userID, code string) {
	ctx := context.Background()

	if w := m.waiters.get(sessionID); w != nil && w.restoring {
		// A scan code during a restoration wait means the saved credentials
		// were rejected. The waiter demotes the session; the code itself is
		// never stored or announced.
		m.notifyQR(sessionID, code)
		return
	}

	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		// Deleted concurrently; the waiter still learns a code arrived so a
		// restoration in flight can classify it as corruption.
		m.notifyQR(sessionID, code)
		return
	}

	next, ok := NextStatus(rec.Status, EventQR)
	if !ok {
		// A QR event outside INITIALIZING (e.g. during a restoration of an
		// authenticated record) is not a valid transition; the waiter
		// decides what it means.
		slog.Warn("Ignoring QR event in current state",
			"session_id", sessionID, "status", rec.Status)
		m.notifyQR(sessionID, code)
		return
	}

	upd := models.SessionUpdate{
		Status:     models.StatusPtr(next),
		QRCode:     models.StringPtr(code),
		ClearError: true,
	}
	if err := m.store.Update(ctx, sessionID, upd); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Error("Failed to store QR code", "session_id", sessionID, "error", err)
	}
	m.registry.UpdateStatus(sessionID, next, false, false)

	slog.Info("QR code generated", "session_id", sessionID)
	m.publishEvent("qr_ready", sessionID, userID)
	m.notifyQR(sessionID, code)
}

func (m *Manager) handleAuthenticated(sessionID, userID string) {
	ctx := context.Background()

	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return
	}
	next, ok := NextStatus(rec.Status, EventAuthenticated)
	if !ok {
		slog.Warn("Ignoring authenticated event in current state",
			"session_id", sessionID, "status", rec.Status)
		return
	}

	// Authentication supersedes the scan timeout.
	m.timers.CancelScanTimeout(sessionID)

	upd := models.SessionUpdate{
		Status:          models.StatusPtr(next),
		IsAuthenticated: models.BoolPtr(true),
		ClearQRCode:     true,
		ClearError:      true,
	}
	if err := m.store.Update(ctx, sessionID, upd); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Error("Failed to record authentication", "session_id", sessionID, "error", err)
	}
	m.registry.UpdateStatus(sessionID, next, false, true)

	m.backupCredentials(ctx, sessionID)

	slog.Info("Session authenticated", "session_id", sessionID)
	m.publishEvent("authenticated", sessionID, userID)
}

func (m *Manager) handleReady(sessionID, userID string) {
	ctx := context.Background()

	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return
	}
	next, ok := NextStatus(rec.Status, EventReady)
	if !ok {
		slog.Warn("Ignoring ready event in current state",
			"session_id", sessionID, "status", rec.Status)
		return
	}

	now := time.Now()
	upd := models.SessionUpdate{
		Status:          models.StatusPtr(next),
		IsReady:         models.BoolPtr(true),
		IsAuthenticated: models.BoolPtr(true),
		LastActivity:    &now,
		ClearError:      true,
	}

	if h := m.registry.Get(sessionID); h != nil {
		if info, err := h.Client.Info(ctx); err == nil && info.PhoneNumber != "" {
			upd.PhoneNumber = &info.PhoneNumber
			m.registry.SetPhoneNumber(sessionID, info.PhoneNumber)
		} else if err != nil {
			slog.Warn("Failed to read client info", "session_id", sessionID, "error", err)
		}
	}

	if err := m.store.Update(ctx, sessionID, upd); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Error("Failed to record ready state", "session_id", sessionID, "error", err)
	}
	m.registry.UpdateStatus(sessionID, next, true, true)
	m.registry.Touch(sessionID, now)

	slog.Info("Session ready", "session_id", sessionID)
	m.publishEvent("ready", sessionID, userID)

	if w := m.waiters.get(sessionID); w != nil {
		select {
		case w.ready <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) handleDisconnected(sessionID, userID, reason string) {
	ctx := context.Background()

	if reason == "" {
		reason = "client disconnected"
	}
	slog.Warn("Session disconnected", "session_id", sessionID, "reason", reason)

	m.timers.CancelAll(sessionID)
	m.destroyHandle(ctx, sessionID)
	m.markDisconnected(ctx, sessionID, reason)

	m.publishEvent("disconnected", sessionID, userID)
	m.notifyFail(sessionID, errors.New(reason))
}

func (m *Manager) handleAuthFailure(sessionID, userID, message string) {
	ctx := context.Background()

	slog.Warn("Authentication failed", "session_id", sessionID, "message", message)

	m.timers.CancelAll(sessionID)
	m.destroyHandle(ctx, sessionID)
	m.markDisconnected(ctx, sessionID, "authentication failure: "+message)

	// Auth failure invalidates the saved credentials.
	upd := models.SessionUpdate{IsAuthenticated: models.BoolPtr(false)}
	if err := m.store.Update(ctx, sessionID, upd); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Error("Failed to clear authentication flag", "session_id", sessionID, "error", err)
	}

	m.publishEvent("auth_failure", sessionID, userID)
	m.notifyFail(sessionID, models.ErrAuthenticationFailed)
}

// backupCredentials copies the freshly written local credentials to the
// remote backup store. Failures are logged; the session stays usable.
func (m *Manager) backupCredentials(ctx context.Context, sessionID string) {
	blob, err := m.creds.Load(sessionID)
	if err != nil {
		slog.Warn("Failed to load credentials for backup",
			"session_id", sessionID, "error", err)
		return
	}
	if blob == nil {
		return
	}
	if err := m.backup.Save(ctx, sessionID, blob); err != nil {
		slog.Warn("Failed to back up credentials",
			"session_id", sessionID, "error", err)
		return
	}
	slog.Info("Credentials backed up", "session_id", sessionID)
}

func (m *Manager) notifyQR(sessionID, code string) {
	if w := m.waiters.get(sessionID); w != nil {
		select {
		case w.qr <- code:
		default:
		}
	}
}

func (m *Manager) notifyFail(sessionID string, err error) {
	if w := m.waiters.get(sessionID); w != nil {
		select {
		case w.fail <- err:
		default:
		}
	}
}

// publishEvent emits a lifecycle event for downstream consumers. Publishing
// is best effort; a broker outage never blocks the state machine.
func (m *Manager) publishEvent(event, sessionID, userID string) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishSessionEvent(rabbitmq.SessionEvent{
		Event:     event,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to publish lifecycle event",
			"event", event, "session_id", sessionID, "error", err)
	}
}
