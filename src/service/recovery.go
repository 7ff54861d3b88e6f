package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-session-service/src/models"
)

// RunStartupRecovery walks the sessions left in a live state by the
// previous process, scoped to recent ones: active within the activity
// window or created within the creation window. Records caught mid-flight
// (INITIALIZING, QR_READY) are demoted outright. Authenticated sessions are
// restored from credentials, pulling them down from the remote backup when
// the local copy is gone, and falling back to a fresh scan when neither
// store has them. Older records are left for the sweeper.
func (m *Manager) RunStartupRecovery(ctx context.Context) (*models.RecoveryReport, error) {
	start := time.Now()

	records, err := m.store.List(ctx, models.ListFilter{
		Statuses: []models.SessionStatus{
			models.StatusInitializing,
			models.StatusQRReady,
			models.StatusAuthenticated,
			models.StatusReady,
		},
		ActiveSince:  start.Add(-m.cfg.RecoveryActivityWindow),
		CreatedSince: start.Add(-m.cfg.RecoveryCreationWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for recovery: %w", err)
	}

	report := &models.RecoveryReport{Total: len(records)}
	slog.Info("Starting session recovery", "candidates", len(records))

	for i := range records {
		rec := &records[i]
		outcome, recErr := m.recoverSession(ctx, rec)

		result := models.SessionRecoveryResult{
			SessionID: rec.SessionID,
			UserID:    rec.UserID,
			Outcome:   outcome,
		}
		if recErr != nil {
			result.Error = recErr.Error()
		}
		report.Results = append(report.Results, result)

		switch outcome {
		case models.RecoveryRestored:
			report.RestoredViaBackup++
		case models.RecoveryRescan:
			report.RestoredViaRescan++
		case models.RecoveryDemoted:
			report.Demoted++
		case models.RecoveryFailed:
			report.Failed++
		}
	}

	report.Duration = time.Since(start)
	slog.Info("Session recovery finished",
		"total", report.Total,
		"restored", report.RestoredViaBackup,
		"rescan", report.RestoredViaRescan,
		"demoted", report.Demoted,
		"failed", report.Failed,
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// recoverSession decides and executes the recovery path for one record.
func (m *Manager) recoverSession(ctx context.Context, rec *models.SessionRecord) (models.RecoveryOutcome, error) {
	now := time.Now()

	switch rec.Status {
	case models.StatusInitializing, models.StatusQRReady:
		// Caught mid-flight by the restart; a half-built client or an
		// already-displayed code cannot be trusted across processes.
		m.markDisconnected(ctx, rec.SessionID, "initialization interrupted by restart")
		return models.RecoveryDemoted, nil
	}

	if !rec.IsAuthenticated {
		// READY/AUTHENTICATED without the durable flag is inconsistent.
		m.markDisconnected(ctx, rec.SessionID, "session state inconsistent after restart")
		return models.RecoveryDemoted, nil
	}

	lastActive := rec.UpdatedAt
	if rec.LastActivity != nil {
		lastActive = *rec.LastActivity
	}
	if now.Sub(lastActive) > m.cfg.RecoveryActivityWindow {
		m.markDisconnected(ctx, rec.SessionID, "session idle across restart; not restored")
		return models.RecoveryDemoted, nil
	}

	if !m.creds.Exists(rec.SessionID) {
		if err := m.pullBackup(ctx, rec.SessionID); err != nil {
			slog.Warn("No restorable credentials; forcing a fresh scan",
				"session_id", rec.SessionID, "error", err)
			return m.rescanFresh(ctx, rec.SessionID)
		}
	}

	if err := m.prepareForInit(ctx, rec.SessionID, true); err != nil {
		return models.RecoveryFailed, err
	}
	if err := m.InitializeClient(ctx, rec.SessionID, true); err != nil {
		return models.RecoveryFailed, err
	}
	return models.RecoveryRestored, nil
}

// rescanFresh wipes whatever credential material is left and reinitializes
// the session for a new QR scan.
func (m *Manager) rescanFresh(ctx context.Context, sessionID string) (models.RecoveryOutcome, error) {
	if err := m.creds.Delete(sessionID); err != nil {
		slog.Warn("Failed to clear local credentials before rescan",
			"session_id", sessionID, "error", err)
	}
	if err := m.resetToInitializing(ctx, sessionID); err != nil {
		return models.RecoveryFailed, err
	}
	if err := m.InitializeClient(ctx, sessionID, false); err != nil {
		return models.RecoveryFailed, err
	}
	return models.RecoveryRescan, nil
}

// pullBackup copies the remote credential backup into the local store.
func (m *Manager) pullBackup(ctx context.Context, sessionID string) error {
	blob, err := m.backup.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read credential backup: %w", err)
	}
	if blob == nil {
		return fmt.Errorf("no credential backup for session %s", sessionID)
	}
	if err := m.creds.Save(sessionID, blob); err != nil {
		return fmt.Errorf("failed to write local credentials: %w", err)
	}
	slog.Info("Pulled credentials from backup", "session_id", sessionID)
	return nil
}

// Diagnose builds a read-only snapshot of how the three stores and the
// in-memory registry agree about one session, with a recommended action.
func (m *Manager) Diagnose(ctx context.Context, sessionID string) (*models.SessionDiagnostics, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	d := &models.SessionDiagnostics{
		SessionID:       sessionID,
		DurableStatus:   rec.Status,
		LocalAuthExists: m.creds.Exists(sessionID),
	}
	if h := m.registry.Get(sessionID); h != nil {
		d.HandlePresent = true
		d.HandleStatus = h.Status
	}
	if exists, err := m.backup.Exists(ctx, sessionID); err == nil {
		d.BackupExists = exists
	}
	if age, ok := rec.QRCodeAge(time.Now()); ok {
		secs := age.Seconds()
		d.QRCodeAgeSeconds = &secs
	}

	switch {
	case rec.IsAuthenticated && rec.QRCode != nil && *rec.QRCode != "":
		// An authenticated session should never be holding a QR code.
		d.SyncStatus = models.SyncStatusCorrupted
		d.RecommendedAction = "clear_and_reinitialize"

	case rec.Status == models.StatusReady && !d.HandlePresent:
		d.SyncStatus = models.SyncStatusOutOfSync
		d.RecommendedAction = "reinitialize"

	case rec.IsAuthenticated && !d.LocalAuthExists && d.BackupExists:
		d.SyncStatus = models.SyncStatusPartialSync
		d.RecommendedAction = "restore_from_backup"

	case rec.IsAuthenticated && !d.LocalAuthExists && !d.BackupExists:
		d.SyncStatus = models.SyncStatusOutOfSync
		d.RecommendedAction = "clear_and_reinitialize"

	case rec.IsAuthenticated && d.LocalAuthExists && !d.BackupExists:
		d.SyncStatus = models.SyncStatusPartialSync
		d.RecommendedAction = "backup_credentials"

	default:
		d.SyncStatus = models.SyncStatusSynced
		d.RecommendedAction = "none"
	}
	return d, nil
}

// ValidateAndSync reconciles a session's record against the live registry,
// then diagnoses it and applies the cheap repairs: it copies credentials in
// whichever direction is missing. Repairs that need a new client
// (reinitialize, clear) are left to their explicit operations.
func (m *Manager) ValidateAndSync(ctx context.Context, sessionID string) (*models.SessionDiagnostics, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.reconcileOnRead(ctx, rec)

	d, err := m.Diagnose(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch d.RecommendedAction {
	case "restore_from_backup":
		if err := m.pullBackup(ctx, sessionID); err != nil {
			return d, err
		}
	case "backup_credentials":
		m.backupCredentials(ctx, sessionID)
	default:
		return d, nil
	}
	return m.Diagnose(ctx, sessionID)
}

// ForceInitialize tears down whatever runtime a session has and runs a
// synchronous initialization, restoring from credentials when possible.
// It is the operator's escape hatch for a wedged session.
func (m *Manager) ForceInitialize(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusDestroyed {
		return nil, models.ErrSessionNotFound
	}

	m.teardownRuntime(ctx, sessionID)

	restore := rec.IsAuthenticated && m.creds.Exists(sessionID)
	if err := m.prepareForInit(ctx, sessionID, restore); err != nil {
		return nil, err
	}
	if err := m.InitializeClient(ctx, sessionID, restore); err != nil {
		return nil, err
	}
	return m.store.FindByID(ctx, sessionID)
}

// ClearAndReinitialize wipes a session's credentials everywhere and starts
// over with a fresh QR scan. This is the remedy for corrupted credentials.
func (m *Manager) ClearAndReinitialize(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	rec, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusDestroyed {
		return nil, models.ErrSessionNotFound
	}

	slog.Info("Clearing credentials and reinitializing", "session_id", sessionID)
	m.teardownRuntime(ctx, sessionID)

	if err := m.creds.Delete(sessionID); err != nil {
		slog.Warn("Failed to delete local credentials",
			"session_id", sessionID, "error", err)
	}
	if err := m.backup.Delete(ctx, sessionID); err != nil {
		slog.Warn("Failed to delete credential backup",
			"session_id", sessionID, "error", err)
	}

	if err := m.resetToInitializing(ctx, sessionID); err != nil {
		return nil, err
	}
	m.startInitialization(sessionID, false)
	return m.store.FindByID(ctx, sessionID)
}
