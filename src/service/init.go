package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/waclient"
)

// InitializeClient runs the full initialization protocol for a session:
// pre-flight checks, client construction, then either the restoration wait
// or the QR-generation race, inside a bounded retry loop. It returns once
// the session reaches QR_READY (new session) or READY (restoration).
//
// Initialization is not reentrant: a second call for the same session while
// one is in flight fails with ErrAlreadyInitializing.
func (m *Manager) InitializeClient(ctx context.Context, sessionID string, isRestoration bool) error {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if !m.registry.BeginInit(sessionID) {
		return models.ErrAlreadyInitializing
	}
	defer m.registry.EndInit(sessionID)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= m.cfg.MaxInitRetries; attempt++ {
		attempts++

		if attempt == 0 {
			if err := m.preflight(ctx); err != nil {
				// An unreachable network fails immediately; retrying a DNS
				// outage with a browser process helps nobody.
				lastErr = err
				break
			}
		} else {
			slog.Info("Retrying initialization",
				"session_id", sessionID, "attempt", attempt+1)
			select {
			case <-time.After(m.cfg.InitRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			// State may have moved while we slept.
			if m.registry.Get(sessionID) != nil {
				return nil
			}
			rec, err = m.store.FindByID(ctx, sessionID)
			if err != nil {
				return err
			}
		}

		err := m.initOnce(ctx, rec, isRestoration)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, models.ErrRestorationCorrupted) {
			// Corrupted credentials do not get better with retries.
			break
		}
	}

	m.markDisconnected(context.Background(), sessionID, lastErr.Error())
	return &models.InitError{
		SessionID: sessionID,
		Attempts:  attempts,
		Hint:      models.HintFor(lastErr),
		Err:       lastErr,
	}
}

// preflight runs the first-attempt environment checks: memory headroom,
// live-connection pressure, and messaging network reachability. Only the
// reachability failure is fatal.
func (m *Manager) preflight(ctx context.Context) error {
	if heap := heapInUse(); heap > m.cfg.MinHeapHeadroomBytes {
		slog.Warn("Process memory usage is high before initialization",
			"heap_in_use_bytes", heap)
	}
	if live := m.registry.Len(); live >= m.cfg.MaxLiveConnectionsSoft {
		slog.Warn("Many connections already live in this process",
			"live_connections", live, "soft_limit", m.cfg.MaxLiveConnectionsSoft)
	}
	if err := m.netCheck(ctx, m.cfg.MessagingHost); err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, err)
	}
	return nil
}

// initOnce performs a single initialization attempt.
func (m *Manager) initOnce(ctx context.Context, rec *models.SessionRecord, isRestoration bool) error {
	sessionID := rec.SessionID

	if isRestoration && !rec.IsAuthenticated {
		// A restoration against a record that never authenticated is a
		// corrupted-restoration signal; fail fast instead of silently
		// falling back to QR generation.
		m.markDisconnected(ctx, sessionID, "restoration requested for a session that never authenticated")
		return models.ErrRestorationCorrupted
	}

	w := m.waiters.add(sessionID, isRestoration)
	defer m.waiters.remove(sessionID)

	client, err := m.clients.New(sessionID, m.clientHandlers(sessionID, rec.UserID))
	if err != nil {
		return fmt.Errorf("failed to construct client: %w", err)
	}

	m.registry.Put(&ConnectionHandle{
		SessionID:       sessionID,
		UserID:          rec.UserID,
		Status:          models.StatusInitializing,
		IsAuthenticated: rec.IsAuthenticated,
		LastActivity:    time.Now(),
		Client:          client,
	})

	if err := client.Initialize(ctx); err != nil {
		m.destroyHandle(context.Background(), sessionID)
		return fmt.Errorf("client initialization failed: %w", err)
	}

	if isRestoration {
		return m.awaitRestoration(ctx, sessionID, w)
	}
	return m.awaitQRCode(ctx, sessionID, w)
}

// awaitRestoration waits for a restored client to come up ready. Receiving
// a QR code here means the local credentials are corrupted.
func (m *Manager) awaitRestoration(ctx context.Context, sessionID string, w *initWaiter) error {
	slog.Info("Restoring session from saved credentials", "session_id", sessionID)

	timeout := time.NewTimer(m.cfg.RestoreReadyTimeout)
	defer timeout.Stop()

	select {
	case <-w.ready:
		slog.Info("Session restored", "session_id", sessionID)
		return nil

	case <-w.qr:
		m.destroyHandle(context.Background(), sessionID)
		m.markDisconnected(context.Background(), sessionID, "received QR code during restoration; local credentials are corrupted")
		return models.ErrRestorationCorrupted

	case err := <-w.fail:
		m.destroyHandle(context.Background(), sessionID)
		return fmt.Errorf("restoration failed: %w", err)

	case <-timeout.C:
		m.destroyHandle(context.Background(), sessionID)
		m.markDisconnected(context.Background(), sessionID, "restoration timed out waiting for ready")
		return models.ErrRestorationTimeout

	case <-ctx.Done():
		m.destroyHandle(context.Background(), sessionID)
		return ctx.Err()
	}
}

// awaitQRCode races the first QR event against the generation timeout,
// logging progress at a fixed interval. Success arms the scan timeout.
func (m *Manager) awaitQRCode(ctx context.Context, sessionID string, w *initWaiter) error {
	m.timers.StartProgress(sessionID, m.cfg.GenerationProgressInterval, func(elapsed time.Duration) {
		slog.Info("Still waiting for QR code",
			"session_id", sessionID, "elapsed", elapsed.Round(time.Second))
	})
	defer m.timers.CancelProgress(sessionID)

	genTimeout := make(chan struct{})
	m.timers.SetGenerationTimeout(sessionID, m.cfg.GenerationTimeout, func() {
		close(genTimeout)
	})

	select {
	case <-w.qr:
		m.timers.CancelGenerationTimeout(sessionID)
		m.timers.SetScanTimeout(sessionID, m.cfg.ScanTimeout, func() {
			m.onScanTimeout(sessionID)
		})
		return nil

	case <-genTimeout:
		m.destroyHandle(context.Background(), sessionID)
		m.markDisconnected(context.Background(), sessionID, "QR code generation timed out")
		return models.ErrGenerationTimeout

	case err := <-w.fail:
		m.timers.CancelGenerationTimeout(sessionID)
		m.destroyHandle(context.Background(), sessionID)
		return fmt.Errorf("client failed before producing a QR code: %w", err)

	case <-ctx.Done():
		m.timers.CancelGenerationTimeout(sessionID)
		m.destroyHandle(context.Background(), sessionID)
		return ctx.Err()
	}
}

// onScanTimeout demotes a session whose QR code was never scanned. The
// record is re-read first: authentication may have won the race.
func (m *Manager) onScanTimeout(sessionID string) {
	ctx := context.Background()

	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return
	}
	if rec.Status != models.StatusQRReady {
		return
	}

	slog.Warn("QR code was not scanned in time", "session_id", sessionID)
	m.destroyHandle(ctx, sessionID)
	m.markDisconnected(ctx, sessionID, models.ErrScanTimeout.Error())
	m.publishEvent("scan_timeout", sessionID, rec.UserID)
}

// heapInUse is a variable so tests can simulate memory pressure.
var heapInUse = waclient.HeapInUse
