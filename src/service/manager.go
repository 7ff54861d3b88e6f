package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"whatsapp-session-service/src/backup"
	"whatsapp-session-service/src/config"
	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/rabbitmq"
	"whatsapp-session-service/src/waclient"
)

// SessionStore is the durable session store consumed by the manager.
type SessionStore interface {
	FindByUser(ctx context.Context, userID string) (*models.SessionRecord, error)
	FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	Create(ctx context.Context, userID string) (*models.SessionRecord, error)
	Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, filter models.ListFilter) ([]models.SessionRecord, error)
}

// Identity resolves whether a user exists.
type Identity interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Config carries every lifecycle constant the manager uses. Tests shrink
// the durations; production uses Default().
type Config struct {
	QRCodeTTL                  time.Duration
	ScanTimeout                time.Duration
	GenerationTimeout          time.Duration
	GenerationProgressInterval time.Duration
	RestoreReadyTimeout        time.Duration
	InitStuckAfter             time.Duration
	IdleExpiry                 time.Duration
	InitRetryBackoff           time.Duration
	MaxInitRetries             int
	SweepInterval              time.Duration
	SweepStuckAfter            time.Duration
	RecoveryActivityWindow     time.Duration
	RecoveryCreationWindow     time.Duration
	BulkMaxItems               int
	BulkDelayMin               time.Duration
	BulkDelayMax               time.Duration
	MaxLiveConnectionsSoft     int
	MinHeapHeadroomBytes       uint64
	MessagingHost              string
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		QRCodeTTL:                  config.QRCodeTTL,
		ScanTimeout:                config.ScanTimeout,
		GenerationTimeout:          config.GenerationTimeout,
		GenerationProgressInterval: config.GenerationProgressInterval,
		RestoreReadyTimeout:        config.RestoreReadyTimeout,
		InitStuckAfter:             config.InitStuckAfter,
		IdleExpiry:                 config.IdleExpiry,
		InitRetryBackoff:           config.InitRetryBackoff,
		MaxInitRetries:             config.MaxInitRetries,
		SweepInterval:              config.SweepInterval,
		SweepStuckAfter:            config.SweepStuckAfter,
		RecoveryActivityWindow:     config.RecoveryActivityWindow,
		RecoveryCreationWindow:     config.RecoveryCreationWindow,
		BulkMaxItems:               config.BulkMaxItems,
		BulkDelayMin:               config.BulkDelayMin,
		BulkDelayMax:               config.BulkDelayMax,
		MaxLiveConnectionsSoft:     config.MaxLiveConnectionsSoft,
		MinHeapHeadroomBytes:       config.MinHeapHeadroomBytes,
		MessagingHost:              config.MessagingHost,
	}
}

// Manager owns the whole session lifecycle: the connection registry, the
// timer bundles, the durable store, the remote backup, and the external
// automation clients. It is safe for concurrent use.
type Manager struct {
	store     SessionStore
	backup    backup.Store
	creds     *waclient.CredentialStore
	clients   waclient.Factory
	identity  Identity
	publisher rabbitmq.Publisher

	registry *ConnectionRegistry
	timers   *TimerManager
	waiters  *waiterTable
	cfg      Config

	netCheck func(ctx context.Context, host string) error
}

// NewManager wires a session manager from its collaborators.
func NewManager(
	store SessionStore,
	backupStore backup.Store,
	creds *waclient.CredentialStore,
	clients waclient.Factory,
	identity Identity,
	publisher rabbitmq.Publisher,
	cfg Config,
) *Manager {
	return &Manager{
		store:     store,
		backup:    backupStore,
		creds:     creds,
		clients:   clients,
		identity:  identity,
		publisher: publisher,
		registry:  NewConnectionRegistry(),
		timers:    NewTimerManager(),
		waiters:   newWaiterTable(),
		cfg:       cfg,
		netCheck:  waclient.CheckNetwork,
	}
}

// Registry exposes the connection registry for read-only inspection.
func (m *Manager) Registry() *ConnectionRegistry { return m.registry }

// QRCodeTTL exposes the freshness window used when serving QR codes.
func (m *Manager) QRCodeTTL() time.Duration { return m.cfg.QRCodeTTL }

// Shutdown destroys every live handle and cancels every timer. Called once
// when the process exits.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, h := range m.registry.List() {
		if err := h.Client.Destroy(ctx); err != nil {
			slog.Error("Failed to destroy client during shutdown",
				"session_id", h.SessionID, "error", err)
		}
		m.registry.Remove(h.SessionID)
	}
	m.timers.Shutdown()
	slog.Info("Session manager shut down")
}

// destroyHandle removes the handle and destroys its client. Safe to call
// when no handle exists.
func (m *Manager) destroyHandle(ctx context.Context, sessionID string) {
	h := m.registry.Remove(sessionID)
	if h == nil {
		return
	}
	if err := h.Client.Destroy(ctx); err != nil {
		slog.Warn("Failed to destroy client",
			"session_id", sessionID, "error", err)
	}
}

// teardownRuntime destroys the handle and cancels all timers for a session.
func (m *Manager) teardownRuntime(ctx context.Context, sessionID string) {
	m.timers.CancelAll(sessionID)
	m.destroyHandle(ctx, sessionID)
}

// markDisconnected demotes the durable record to DISCONNECTED, clearing the
// QR code and recording the reason. is_authenticated is preserved so the
// recovery paths can tell a restorable session from one that must rescan.
// A missing record is a benign race with concurrent deletion.
func (m *Manager) markDisconnected(ctx context.Context, sessionID, reason string) {
	upd := models.SessionUpdate{
		Status:      models.StatusPtr(models.StatusDisconnected),
		IsReady:     models.BoolPtr(false),
		ClearQRCode: true,
		LastError:   models.StringPtr(reason),
	}
	if err := m.store.Update(ctx, sessionID, upd); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Error("Failed to mark session disconnected",
			"session_id", sessionID, "error", err)
	}
	m.registry.UpdateStatus(sessionID, models.StatusDisconnected, false, false)
}

// resetToInitializing wipes a record back to a clean INITIALIZING state:
// no QR code, no flags, no errors.
func (m *Manager) resetToInitializing(ctx context.Context, sessionID string) error {
	return m.store.Update(ctx, sessionID, models.SessionUpdate{
		Status:          models.StatusPtr(models.StatusInitializing),
		IsReady:         models.BoolPtr(false),
		IsAuthenticated: models.BoolPtr(false),
		ClearQRCode:     true,
		ClearError:      true,
	})
}

// startInitialization runs the initialization protocol detached from the
// caller's request. Failures end up on the record, not in a return value.
func (m *Manager) startInitialization(sessionID string, isRestoration bool) {
	go func() {
		if err := m.InitializeClient(context.Background(), sessionID, isRestoration); err != nil {
			if errors.Is(err, models.ErrAlreadyInitializing) {
				return
			}
			slog.Error("Background initialization failed",
				"session_id", sessionID, "error", err)
		}
	}()
}
