package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-session-service/src/models"
)

// driveToReady walks a fresh session through the full authentication flow.
func driveToReady(t *testing.T, h *testHarness, userID string) *models.SessionRecord {
	t.Helper()
	h.factory.onInit = func(c *fakeClient) {
		c.handlers.OnQR("qr-code-1")
		_ = h.creds.Save(c.sessionID, []byte("auth-blob"))
		c.handlers.OnAuthenticated()
		c.handlers.OnReady()
	}
	rec, err := h.m.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return waitForStatus(t, h.store, rec.SessionID, models.StatusReady)
}

func TestSendMessageNormalizesRecipient(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := driveToReady(t, h, "u1")

	msgID, err := h.m.SendMessage(context.Background(), rec.SessionID, "+1 (555) 123-4567", "hello", nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected a message id")
	}

	sent := h.factory.client(rec.SessionID).sentTo()
	if len(sent) != 1 || sent[0] != "15551234567@c.us" {
		t.Fatalf("unexpected delivery address: %v", sent)
	}

	got, _ := h.store.FindByID(context.Background(), rec.SessionID)
	if got.LastActivity == nil {
		t.Fatal("send must record activity")
	}
}

func TestSendMessageRejectsInvalidRecipient(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := driveToReady(t, h, "u1")

	if _, err := h.m.SendMessage(context.Background(), rec.SessionID, "not-a-number", "hello", nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSendMessageClassifiesNotReady(t *testing.T) {
	h := newTestHarness(t, testConfig())

	cases := []struct {
		name   string
		mutate func(*models.SessionRecord)
		reason models.NotReadyReason
	}{
		{
			name:   "qr pending scan",
			mutate: func(r *models.SessionRecord) { r.Status = models.StatusQRReady; r.QRCode = models.StringPtr("qr") },
			reason: models.ReasonScanRequired,
		},
		{
			name:   "still connecting",
			mutate: func(r *models.SessionRecord) { r.Status = models.StatusInitializing },
			reason: models.ReasonPending,
		},
		{
			name: "disconnected after failure",
			mutate: func(r *models.SessionRecord) {
				r.Status = models.StatusDisconnected
				r.LastError = models.StringPtr("initialization never completed")
			},
			reason: models.ReasonInitFailed,
		},
		{
			name:   "disconnected cleanly",
			mutate: func(r *models.SessionRecord) { r.Status = models.StatusDisconnected },
			reason: models.ReasonDisconnected,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := seedRecord(t, h.store, "u-"+c.name, c.mutate)
			_, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hi", nil)

			var notReady *models.NotReadyError
			if !errors.As(err, &notReady) {
				t.Fatalf("expected NotReadyError, got %v", err)
			}
			if notReady.Reason != c.reason {
				t.Fatalf("expected reason %s, got %s", c.reason, notReady.Reason)
			}
		})
	}
}

func TestSendMessageExpiredQRCode(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := seedRecord(t, h.store, "u1", func(r *models.SessionRecord) {
		r.Status = models.StatusQRReady
		r.QRCode = models.StringPtr("qr")
	})
	h.store.setCreatedAt(rec.SessionID, time.Now().Add(-5*time.Second))

	_, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hi", nil)
	var notReady *models.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if notReady.Reason != models.ReasonScanExpired {
		t.Fatalf("expected scan_expired, got %s", notReady.Reason)
	}
}

func TestSendMessageRestoresAuthenticatedSession(t *testing.T) {
	h := newTestHarness(t, testConfig())
	h.factory.onInit = func(c *fakeClient) {
		c.handlers.OnReady()
	}

	now := time.Now()
	rec := seedRecord(t, h.store, "u1", func(r *models.SessionRecord) {
		r.Status = models.StatusReady
		r.IsReady = true
		r.IsAuthenticated = true
		r.LastActivity = &now
	})
	if err := h.creds.Save(rec.SessionID, []byte("auth-blob")); err != nil {
		t.Fatalf("seed creds: %v", err)
	}
	// No live handle: the previous process owned the connection.

	msgID, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hello", nil)
	if err != nil {
		t.Fatalf("send must restore the session first, got %v", err)
	}
	if msgID == "" {
		t.Fatal("expected a message id")
	}
	if h := h.m.Registry().Get(rec.SessionID); h == nil || h.Status != models.StatusReady {
		t.Fatal("expected a live ready handle after the restore")
	}
}

func TestSendMessageRestoresFromBackup(t *testing.T) {
	h := newTestHarness(t, testConfig())
	h.factory.onInit = func(c *fakeClient) {
		c.handlers.OnReady()
	}

	now := time.Now()
	rec := seedRecord(t, h.store, "u1", func(r *models.SessionRecord) {
		r.Status = models.StatusAuthenticated
		r.IsAuthenticated = true
		r.LastActivity = &now
	})
	// Local credentials are gone; only the remote backup has them.
	if err := h.backup.Save(context.Background(), rec.SessionID, []byte("auth-blob")); err != nil {
		t.Fatalf("seed backup: %v", err)
	}

	if _, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hello", nil); err != nil {
		t.Fatalf("send must pull the backup and restore, got %v", err)
	}
	if !h.creds.Exists(rec.SessionID) {
		t.Fatal("expected the backup to be pulled into local credentials")
	}
}

func TestSendMessageRestartsStalledInitialization(t *testing.T) {
	cfg := testConfig()
	cfg.InitStuckAfter = 50 * time.Millisecond
	h := newTestHarness(t, cfg)
	h.factory.onInit = func(c *fakeClient) {
		c.handlers.OnQR("qr-restarted")
	}

	rec := seedRecord(t, h.store, "u1", nil)
	h.store.setCreatedAt(rec.SessionID, time.Now().Add(-time.Minute))

	_, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hello", nil)
	var notReady *models.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if notReady.Reason != models.ReasonScanRequired {
		t.Fatalf("expected scan_required after the restart, got %s", notReady.Reason)
	}

	got, _ := h.store.FindByID(context.Background(), rec.SessionID)
	if got.Status != models.StatusQRReady {
		t.Fatalf("expected a restarted QR_READY session, got %s", got.Status)
	}
	if got.QRCode == nil || *got.QRCode != "qr-restarted" {
		t.Fatalf("expected the fresh code, got %v", got.QRCode)
	}
}

func TestSendMessageDestroyedSession(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := seedRecord(t, h.store, "u1", func(r *models.SessionRecord) {
		r.Status = models.StatusDestroyed
	})

	_, err := h.m.SendMessage(context.Background(), rec.SessionID, "15551234567", "hi", nil)
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestBulkSendItemsFailIndependently(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := driveToReady(t, h, "u1")

	h.factory.sendFn = func(address, body string) (string, error) {
		if body == "poison" {
			return "", errScripted
		}
		return "msg-ok", nil
	}

	items := []models.BulkItem{
		{To: "15551230001", Body: "one"},
		{To: "15551230002", Body: "poison"},
		{To: "15551230003", Body: "three"},
	}

	start := time.Now()
	result, err := h.m.SendBulkMessages(context.Background(), rec.SessionID, items)
	if err != nil {
		t.Fatalf("bulk send: %v", err)
	}
	elapsed := time.Since(start)

	if result.Total != 3 || result.Successful != 2 || result.Failed != 1 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if result.Successful+result.Failed != result.Total {
		t.Fatalf("totals must add up: %+v", result)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected one result per item, got %d", len(result.Results))
	}
	for i, r := range result.Results {
		if r.Index != i {
			t.Fatalf("results out of order: %+v", result.Results)
		}
	}
	if result.Results[1].Success || result.Results[1].Error == "" {
		t.Fatalf("poison item should have failed: %+v", result.Results[1])
	}
	if !result.Results[0].Success || result.Results[0].MessageID == "" {
		t.Fatalf("first item should have succeeded: %+v", result.Results[0])
	}

	// Two inter-item pauses of at least the minimum delay.
	if min := 2 * testConfig().BulkDelayMin; elapsed < min {
		t.Fatalf("bulk send finished too fast: %v < %v", elapsed, min)
	}
}

func TestBulkSendLimits(t *testing.T) {
	cfg := testConfig()
	cfg.BulkMaxItems = 2
	h := newTestHarness(t, cfg)
	rec := driveToReady(t, h, "u1")

	items := []models.BulkItem{
		{To: "15551230001", Body: "a"},
		{To: "15551230002", Body: "b"},
		{To: "15551230003", Body: "c"},
	}
	if _, err := h.m.SendBulkMessages(context.Background(), rec.SessionID, items); err == nil {
		t.Fatal("expected limit error")
	}
	if _, err := h.m.SendBulkMessages(context.Background(), rec.SessionID, nil); err == nil {
		t.Fatal("expected empty-request error")
	}
}

func TestBulkSendPacesSequentialItems(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := driveToReady(t, h, "u1")

	items := []models.BulkItem{
		{To: "15551230001", Body: "a"},
		{To: "15551230002", Body: "b"},
		{To: "15551230003", Body: "c"},
		{To: "15551230004", Body: "d"},
	}
	result, err := h.m.SendBulkMessages(context.Background(), rec.SessionID, items)
	if err != nil {
		t.Fatalf("bulk send: %v", err)
	}

	if len(result.Results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(result.Results))
	}
	if result.Successful+result.Failed != result.Total {
		t.Fatalf("totals must add up: %+v", result)
	}
	// One pause between each pair of items, none after the last.
	if min := time.Duration(len(items)-1) * testConfig().BulkDelayMin; result.Duration < min {
		t.Fatalf("batch finished too fast: %v < %v", result.Duration, min)
	}
}

func TestBulkSendCancelledMidBatchKeepsPartialResults(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := driveToReady(t, h, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.factory.sendFn = func(address, body string) (string, error) {
		cancel()
		return "msg-1", nil
	}

	items := []models.BulkItem{
		{To: "15551230001", Body: "a"},
		{To: "15551230002", Body: "b"},
		{To: "15551230003", Body: "c"},
	}
	result, err := h.m.SendBulkMessages(ctx, rec.SessionID, items)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil {
		t.Fatal("cancellation must keep the partial result")
	}
	if len(result.Results) != 1 || !result.Results[0].Success {
		t.Fatalf("expected the one attempted item, got %+v", result.Results)
	}
	if result.Successful != 1 || result.Failed != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
}

func TestBulkSendRejectedWhenNotReady(t *testing.T) {
	h := newTestHarness(t, testConfig())
	rec := seedRecord(t, h.store, "u1", func(r *models.SessionRecord) {
		r.Status = models.StatusQRReady
		r.QRCode = models.StringPtr("qr")
	})

	_, err := h.m.SendBulkMessages(context.Background(), rec.SessionID, []models.BulkItem{{To: "15551230001", Body: "a"}})
	var notReady *models.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
}
