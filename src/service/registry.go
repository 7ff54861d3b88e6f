package service

import (
	"sync"
	"time"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/waclient"
)

// ConnectionHandle is the in-memory record of one live automation client.
// It is never persisted; its existence is itself a fact that reconciliation
// compares against the durable record.
type ConnectionHandle struct {
	SessionID       string
	UserID          string
	Status          models.SessionStatus
	IsReady         bool
	IsAuthenticated bool
	PhoneNumber     string
	LastActivity    time.Time
	Client          waclient.Client
}

// ConnectionRegistry is the authoritative in-memory map of session id to
// live connection handle. All mutation goes through its methods; the
// in-flight markers give the per-session idempotency guard initialization
// needs across awaits.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	handles  map[string]*ConnectionHandle
	inflight map[string]struct{}
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		handles:  make(map[string]*ConnectionHandle),
		inflight: make(map[string]struct{}),
	}
}

// Get returns the handle for a session, or nil.
func (r *ConnectionRegistry) Get(sessionID string) *ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[sessionID]
}

// Put stores a handle, replacing any previous one.
func (r *ConnectionRegistry) Put(h *ConnectionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.SessionID] = h
}

// Remove deletes the handle and returns it, or nil if absent.
func (r *ConnectionRegistry) Remove(sessionID string) *ConnectionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handles[sessionID]
	delete(r.handles, sessionID)
	return h
}

// BeginInit marks a session as having an initialization in flight. It
// returns false when a handle already exists or another initialization is
// running, making double-initialization impossible.
func (r *ConnectionRegistry) BeginInit(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handles[sessionID]; exists {
		return false
	}
	if _, busy := r.inflight[sessionID]; busy {
		return false
	}
	r.inflight[sessionID] = struct{}{}
	return true
}

// IsInitializing reports whether an initialization is currently in flight.
func (r *ConnectionRegistry) IsInitializing(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, busy := r.inflight[sessionID]
	return busy
}

// EndInit clears the in-flight marker.
func (r *ConnectionRegistry) EndInit(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, sessionID)
}

// UpdateStatus mutates the cached state of a handle if it exists.
func (r *ConnectionRegistry) UpdateStatus(sessionID string, status models.SessionStatus, ready, authenticated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[sessionID]; ok {
		h.Status = status
		h.IsReady = ready
		h.IsAuthenticated = authenticated
	}
}

// Touch records activity on a handle.
func (r *ConnectionRegistry) Touch(sessionID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[sessionID]; ok {
		h.LastActivity = at
	}
}

// SetPhoneNumber records the bound phone number on a handle.
func (r *ConnectionRegistry) SetPhoneNumber(sessionID, phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[sessionID]; ok {
		h.PhoneNumber = phone
	}
}

// Len returns the number of live handles.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// List returns a snapshot of all handles.
func (r *ConnectionRegistry) List() []*ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnectionHandle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}
