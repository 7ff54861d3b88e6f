package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/utils"
	"whatsapp-session-service/src/waclient"
)

// ensureReady returns a live ready handle for a session, working for it
// where it can: an authenticated session with no handle in this process is
// restored from saved credentials, and a stalled initialization is
// restarted. Only when no path leads to a ready connection does it return a
// classified NotReadyError explaining what the caller must do.
func (m *Manager) ensureReady(ctx context.Context, sessionID string) (*ConnectionHandle, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusDestroyed {
		return nil, models.ErrSessionNotFound
	}

	if h := m.registry.Get(sessionID); h != nil && h.Status == models.StatusReady {
		return h, nil
	}

	switch rec.Status {
	case models.StatusReady, models.StatusAuthenticated:
		return m.restoreForSend(ctx, rec)

	case models.StatusInitializing:
		if m.registry.IsInitializing(sessionID) ||
			time.Since(rec.UpdatedAt) <= m.cfg.InitStuckAfter {
			return nil, models.NewNotReadyError(sessionID, rec.Status,
				models.ReasonPending, "session is still connecting")
		}
		return m.restartStalled(ctx, rec)

	case models.StatusQRReady:
		age, ok := rec.QRCodeAge(time.Now())
		if !ok {
			age = time.Since(rec.UpdatedAt)
		}
		if age > m.cfg.QRCodeTTL {
			m.teardownRuntime(ctx, sessionID)
			m.markDisconnected(ctx, sessionID, "QR code expired without being scanned")
			return nil, models.NewNotReadyError(sessionID, models.StatusDisconnected,
				models.ReasonScanExpired, "QR code expired without being scanned; restart the session")
		}
		return nil, models.NewNotReadyError(sessionID, rec.Status,
			models.ReasonScanRequired, "scan the QR code to authenticate this session")

	default: // DISCONNECTED
		if rec.LastError != nil && *rec.LastError != "" {
			return nil, models.NewNotReadyError(sessionID, rec.Status,
				models.ReasonInitFailed, *rec.LastError)
		}
		return nil, models.NewNotReadyError(sessionID, rec.Status,
			models.ReasonDisconnected, "session is disconnected; restart it before sending")
	}
}

// restoreForSend brings an authenticated session without a live connection
// back up synchronously so a pending send can proceed.
func (m *Manager) restoreForSend(ctx context.Context, rec *models.SessionRecord) (*ConnectionHandle, error) {
	sessionID := rec.SessionID

	if !rec.IsAuthenticated {
		m.markDisconnected(ctx, sessionID, "no live connection and no saved authentication")
		return nil, models.NewNotReadyError(sessionID, models.StatusDisconnected,
			models.ReasonDisconnected, "session lost its connection; restart it")
	}
	if !m.creds.Exists(sessionID) {
		if err := m.pullBackup(ctx, sessionID); err != nil {
			m.markDisconnected(ctx, sessionID, "no credentials available to restore the connection")
			return nil, models.NewNotReadyError(sessionID, models.StatusDisconnected,
				models.ReasonDisconnected, "no credentials available; restart the session and rescan")
		}
	}

	slog.Info("Restoring session for a pending send", "session_id", sessionID)
	m.teardownRuntime(ctx, sessionID)
	if err := m.prepareForInit(ctx, sessionID, true); err != nil {
		return nil, err
	}
	if err := m.InitializeClient(ctx, sessionID, true); err != nil {
		if errors.Is(err, models.ErrAlreadyInitializing) {
			return nil, models.NewNotReadyError(sessionID, models.StatusInitializing,
				models.ReasonPending, "session is being restored")
		}
		return nil, err
	}

	h := m.registry.Get(sessionID)
	if h == nil || h.Status != models.StatusReady {
		return nil, models.NewNotReadyError(sessionID, models.StatusDisconnected,
			models.ReasonDisconnected, "restoration did not produce a ready connection")
	}
	return h, nil
}

// restartStalled restarts an initialization that has sat in INITIALIZING
// past the stuck threshold. An authenticated record restores to READY and
// the send proceeds; an unauthenticated one yields a fresh code and the
// caller is told to scan it.
func (m *Manager) restartStalled(ctx context.Context, rec *models.SessionRecord) (*ConnectionHandle, error) {
	sessionID := rec.SessionID
	slog.Warn("Restarting stalled initialization for a pending send",
		"session_id", sessionID, "age", time.Since(rec.UpdatedAt).Round(time.Second))

	if rec.IsAuthenticated && m.creds.Exists(sessionID) {
		return m.restoreForSend(ctx, rec)
	}

	m.teardownRuntime(ctx, sessionID)
	if err := m.resetToInitializing(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := m.InitializeClient(ctx, sessionID, false); err != nil {
		if errors.Is(err, models.ErrAlreadyInitializing) {
			return nil, models.NewNotReadyError(sessionID, models.StatusInitializing,
				models.ReasonPending, "session is still connecting")
		}
		return nil, err
	}
	return nil, models.NewNotReadyError(sessionID, models.StatusQRReady,
		models.ReasonScanRequired, "initialization was restarted; scan the new QR code")
}

// SendMessage delivers one message through a ready session and records the
// activity. The recipient may be a raw phone number or a canonical address.
func (m *Manager) SendMessage(ctx context.Context, sessionID, to, body string, media *waclient.Media) (string, error) {
	h, err := m.ensureReady(ctx, sessionID)
	if err != nil {
		return "", err
	}

	address, err := utils.NormalizePhone(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}

	msgID, err := h.Client.SendMessage(ctx, address, body, media)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	now := time.Now()
	m.registry.Touch(sessionID, now)
	if err := m.store.Update(ctx, sessionID, models.SessionUpdate{
		LastActivity: models.TimePtr(now),
	}); err != nil {
		slog.Warn("Failed to record send activity",
			"session_id", sessionID, "error", err)
	}
	return msgID, nil
}

// SendBulkMessages delivers up to BulkMaxItems messages sequentially with a
// randomized pause between items. Items fail independently; the result
// always carries one entry per item, in order.
func (m *Manager) SendBulkMessages(ctx context.Context, sessionID string, items []models.BulkItem) (*models.BulkResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("bulk send requires at least one item")
	}
	if len(items) > m.cfg.BulkMaxItems {
		return nil, fmt.Errorf("bulk send is limited to %d items, got %d",
			m.cfg.BulkMaxItems, len(items))
	}

	// Fail the whole request up front when the session cannot send at all.
	if _, err := m.ensureReady(ctx, sessionID); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &models.BulkResult{
		Total:   len(items),
		Results: make([]models.BulkItemResult, 0, len(items)),
	}

	for i, item := range items {
		if i > 0 {
			select {
			case <-time.After(m.bulkDelay()):
			case <-ctx.Done():
				// Keep the accounting for the items already attempted.
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
		}

		var media *waclient.Media
		if item.MediaURL != "" {
			media = &waclient.Media{URL: item.MediaURL}
		}

		msgID, err := m.SendMessage(ctx, sessionID, item.To, item.Body, media)
		r := models.BulkItemResult{Index: i, To: item.To}
		if err != nil {
			r.Error = err.Error()
			result.Failed++
		} else {
			r.Success = true
			r.MessageID = msgID
			result.Successful++
		}
		result.Results = append(result.Results, r)
	}

	result.Duration = time.Since(start)
	slog.Info("Bulk send finished",
		"session_id", sessionID,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// bulkDelay picks a uniform random pause within the configured window.
func (m *Manager) bulkDelay() time.Duration {
	min, max := m.cfg.BulkDelayMin, m.cfg.BulkDelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
