package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"whatsapp-session-service/src/models"
)

// StartSweeper runs the periodic cleanup loop until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("Cleanup sweeper started", "interval", m.cfg.SweepInterval)
	for {
		select {
		case <-ticker.C:
			m.SweepOnce(ctx)
		case <-ctx.Done():
			slog.Info("Cleanup sweeper stopped")
			return
		}
	}
}

// SweepOnce runs one cleanup pass: it demotes sessions stuck in
// INITIALIZING or sitting on a long-expired QR code, and destroys live
// handles whose durable record is gone. Timer-driven demotion handles the
// common case; the sweeper catches what a crash or missed event left over.
func (m *Manager) SweepOnce(ctx context.Context) {
	now := time.Now()

	records, err := m.store.List(ctx, models.ListFilter{
		Statuses: []models.SessionStatus{
			models.StatusInitializing,
			models.StatusQRReady,
		},
	})
	if err != nil {
		slog.Error("Sweep failed to list sessions", "error", err)
	} else {
		for i := range records {
			rec := &records[i]
			if m.registry.IsInitializing(rec.SessionID) {
				continue
			}

			switch rec.Status {
			case models.StatusInitializing:
				if now.Sub(rec.UpdatedAt) > m.cfg.SweepStuckAfter {
					slog.Warn("Sweeping session stuck in initialization",
						"session_id", rec.SessionID, "age", now.Sub(rec.UpdatedAt).Round(time.Second))
					m.teardownRuntime(ctx, rec.SessionID)
					m.markDisconnected(ctx, rec.SessionID, "initialization never completed")
					m.publishEvent("swept", rec.SessionID, rec.UserID)
				}

			case models.StatusQRReady:
				age, ok := rec.QRCodeAge(now)
				if !ok {
					age = now.Sub(rec.UpdatedAt)
				}
				// The scan timer normally handles this; it is lost when the
				// process restarts with the session still in QR_READY.
				if age > m.cfg.ScanTimeout && !m.timers.Has(rec.SessionID) {
					slog.Warn("Sweeping session with expired QR code",
						"session_id", rec.SessionID, "age", age.Round(time.Second))
					m.teardownRuntime(ctx, rec.SessionID)
					m.markDisconnected(ctx, rec.SessionID, models.ErrScanTimeout.Error())
					m.publishEvent("swept", rec.SessionID, rec.UserID)
				}
			}
		}
	}

	// Orphaned handles: live connections whose record was deleted or
	// destroyed out from under them.
	for _, h := range m.registry.List() {
		rec, err := m.store.FindByID(ctx, h.SessionID)
		orphaned := errors.Is(err, models.ErrSessionNotFound) ||
			(err == nil && rec.Status == models.StatusDestroyed)
		if !orphaned {
			continue
		}
		slog.Warn("Destroying orphaned connection", "session_id", h.SessionID)
		m.teardownRuntime(ctx, h.SessionID)
	}
}
