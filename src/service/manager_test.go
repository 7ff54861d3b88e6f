package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-session-service/src/models"
	"whatsapp-session-service/src/rabbitmq"
	"whatsapp-session-service/src/waclient"
)

// memStore is an in-memory SessionStore for tests.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*models.SessionRecord
	seq  int
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*models.SessionRecord)}
}

func (s *memStore) FindByUser(ctx context.Context, userID string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.SessionRecord
	for _, r := range s.recs {
		if r.UserID != userID || r.Status == models.StatusDestroyed {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (s *memStore) FindByID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) Create(ctx context.Context, userID string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now()
	r := &models.SessionRecord{
		SessionID: fmt.Sprintf("sess-%d", s.seq),
		UserID:    userID,
		Status:    models.StatusInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.recs[r.SessionID] = r
	cp := *r
	return &cp, nil
}

func (s *memStore) Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if upd.Status != nil {
		r.Status = *upd.Status
	}
	if upd.IsReady != nil {
		r.IsReady = *upd.IsReady
	}
	if upd.IsAuthenticated != nil {
		r.IsAuthenticated = *upd.IsAuthenticated
	}
	if upd.ClearQRCode {
		r.QRCode = nil
	} else if upd.QRCode != nil {
		r.QRCode = upd.QRCode
	}
	if upd.PhoneNumber != nil {
		r.PhoneNumber = upd.PhoneNumber
	}
	if upd.LastActivity != nil {
		r.LastActivity = upd.LastActivity
	}
	if upd.ClearError {
		r.LastError = nil
		r.LastErrorTime = nil
	} else if upd.LastError != nil {
		r.LastError = upd.LastError
		now := time.Now()
		r.LastErrorTime = &now
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, sessionID)
	return nil
}

func (s *memStore) List(ctx context.Context, filter models.ListFilter) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SessionRecord
	for _, r := range s.recs {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if !filter.ActiveSince.IsZero() || !filter.CreatedSince.IsZero() {
			active := !filter.ActiveSince.IsZero() &&
				r.LastActivity != nil && r.LastActivity.After(filter.ActiveSince)
			created := !filter.CreatedSince.IsZero() &&
				r.CreatedAt.After(filter.CreatedSince)
			if !active && !created {
				continue
			}
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				if r.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *r)
	}
	return out, nil
}

// setCreatedAt backdates a record, for staleness scenarios.
func (s *memStore) setCreatedAt(sessionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recs[sessionID]; ok {
		r.CreatedAt = at
		r.UpdatedAt = at
	}
}

// memBackup is an in-memory backup.Store.
type memBackup struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBackup() *memBackup {
	return &memBackup{blobs: make(map[string][]byte)}
}

func (b *memBackup) Exists(ctx context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[sessionID]
	return ok, nil
}

func (b *memBackup) Save(ctx context.Context, sessionID string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[sessionID] = blob
	return nil
}

func (b *memBackup) Get(ctx context.Context, sessionID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blobs[sessionID], nil
}

func (b *memBackup) Delete(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, sessionID)
	return nil
}

func (b *memBackup) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.blobs {
		out = append(out, k)
	}
	return out, nil
}

// fakeClient scripts the external automation client.
type fakeClient struct {
	sessionID string
	handlers  waclient.EventHandlers
	factory   *fakeFactory

	mu        sync.Mutex
	destroyed bool
	sent      []string
}

func (c *fakeClient) Initialize(ctx context.Context) error {
	if c.factory.initErr != nil {
		return c.factory.initErr
	}
	if fn := c.factory.onInit; fn != nil {
		go fn(c)
	}
	return nil
}

func (c *fakeClient) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	return nil
}

func (c *fakeClient) wasDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *fakeClient) SendMessage(ctx context.Context, address, body string, media *waclient.Media) (string, error) {
	if fn := c.factory.sendFn; fn != nil {
		id, err := fn(address, body)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.sent = append(c.sent, address)
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Lock()
	c.sent = append(c.sent, address)
	n := len(c.sent)
	c.mu.Unlock()
	return fmt.Sprintf("msg-%d", n), nil
}

func (c *fakeClient) sentTo() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeClient) Info(ctx context.Context) (*waclient.Info, error) {
	return &waclient.Info{PhoneNumber: "15551234567"}, nil
}

// fakeFactory builds fakeClients and remembers them by session id.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient

	onInit  func(c *fakeClient)
	initErr error
	sendFn  func(address, body string) (string, error)
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{clients: make(map[string]*fakeClient)}
}

func (f *fakeFactory) New(sessionID string, handlers waclient.EventHandlers) (waclient.Client, error) {
	c := &fakeClient{sessionID: sessionID, handlers: handlers, factory: f}
	f.mu.Lock()
	f.clients[sessionID] = c
	f.mu.Unlock()
	return c, nil
}

func (f *fakeFactory) client(sessionID string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[sessionID]
}

// capturedPublisher records published lifecycle events in order.
type capturedPublisher struct {
	mu     sync.Mutex
	bodies []string
}

func (p *capturedPublisher) PublishSessionEvent(event rabbitmq.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, string(body))
	return nil
}

func (p *capturedPublisher) contains(fragment string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.bodies {
		if strings.Contains(b, fragment) {
			return true
		}
	}
	return false
}

// waitForEvent polls the publisher until a lifecycle event containing the
// fragment shows up.
func waitForEvent(t *testing.T, p *capturedPublisher, fragment string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.contains(fragment) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no published event containing %q", fragment)
}

// fakeIdentity answers user existence checks.
type fakeIdentity struct {
	exists bool
	err    error
}

func (f *fakeIdentity) UserExists(ctx context.Context, userID string) (bool, error) {
	return f.exists, f.err
}

// testHarness bundles a manager with its fakes.
type testHarness struct {
	m       *Manager
	store   *memStore
	backup  *memBackup
	creds   *waclient.CredentialStore
	factory *fakeFactory
	pub     *capturedPublisher
	ident   *fakeIdentity
}

func testConfig() Config {
	return Config{
		QRCodeTTL:                  1 * time.Second,
		ScanTimeout:                2 * time.Second,
		GenerationTimeout:          500 * time.Millisecond,
		GenerationProgressInterval: 1 * time.Hour,
		RestoreReadyTimeout:        500 * time.Millisecond,
		InitStuckAfter:             1 * time.Hour,
		IdleExpiry:                 1 * time.Hour,
		InitRetryBackoff:           10 * time.Millisecond,
		MaxInitRetries:             0,
		SweepInterval:              1 * time.Hour,
		SweepStuckAfter:            1 * time.Hour,
		RecoveryActivityWindow:     1 * time.Hour,
		RecoveryCreationWindow:     1 * time.Hour,
		BulkMaxItems:               50,
		BulkDelayMin:               10 * time.Millisecond,
		BulkDelayMax:               20 * time.Millisecond,
		MaxLiveConnectionsSoft:     100,
		MinHeapHeadroomBytes:       1 << 62,
		MessagingHost:              "localhost",
	}
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	creds, err := waclient.NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}

	h := &testHarness{
		store:   newMemStore(),
		backup:  newMemBackup(),
		creds:   creds,
		factory: newFakeFactory(),
		pub:     &capturedPublisher{},
		ident:   &fakeIdentity{exists: true},
	}
	h.m = NewManager(h.store, h.backup, h.creds, h.factory, h.ident, h.pub, cfg)
	h.m.netCheck = func(ctx context.Context, host string) error { return nil }

	t.Cleanup(func() { h.m.Shutdown(context.Background()) })
	return h
}

// waitForStatus polls the store until the record reaches the wanted status.
func waitForStatus(t *testing.T, store *memStore, sessionID string, want models.SessionStatus) *models.SessionRecord {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.FindByID(context.Background(), sessionID)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, err := store.FindByID(context.Background(), sessionID)
	t.Fatalf("session %s never reached %s (last: %+v, err: %v)", sessionID, want, rec, err)
	return nil
}

// seedRecord inserts a record directly, bypassing initialization.
func seedRecord(t *testing.T, store *memStore, userID string, mutate func(*models.SessionRecord)) *models.SessionRecord {
	t.Helper()
	rec, err := store.Create(context.Background(), userID)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if mutate != nil {
		store.mu.Lock()
		mutate(store.recs[rec.SessionID])
		cp := *store.recs[rec.SessionID]
		store.mu.Unlock()
		return &cp
	}
	return rec
}

var errScripted = errors.New("scripted failure")
