package service

import (
	"sync"
	"time"
)

// TimerBundle holds the up to three timers a session can own. A slot is
// nulled the moment its timer is cancelled or fires, so a stale handle can
// never be cleared twice or fire twice.
type TimerBundle struct {
	progressStop chan struct{}
	generation   *time.Timer
	scan         *time.Timer
}

func (b *TimerBundle) empty() bool {
	return b.progressStop == nil && b.generation == nil && b.scan == nil
}

// TimerManager owns every per-session timer in the process. Bundles with no
// live timers are removed; global shutdown cancels everything.
type TimerManager struct {
	mu      sync.Mutex
	bundles map[string]*TimerBundle
}

// NewTimerManager creates an empty timer manager.
func NewTimerManager() *TimerManager {
	return &TimerManager{bundles: make(map[string]*TimerBundle)}
}

func (tm *TimerManager) bundle(sessionID string) *TimerBundle {
	b, ok := tm.bundles[sessionID]
	if !ok {
		b = &TimerBundle{}
		tm.bundles[sessionID] = b
	}
	return b
}

func (tm *TimerManager) prune(sessionID string) {
	if b, ok := tm.bundles[sessionID]; ok && b.empty() {
		delete(tm.bundles, sessionID)
	}
}

// StartProgress runs fn every interval with the elapsed time since start,
// until the progress slot is cancelled. An existing progress timer is
// replaced.
func (tm *TimerManager) StartProgress(sessionID string, interval time.Duration, fn func(elapsed time.Duration)) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	b := tm.bundle(sessionID)
	if b.progressStop != nil {
		close(b.progressStop)
	}
	stop := make(chan struct{})
	b.progressStop = stop

	started := time.Now()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn(time.Since(started))
			}
		}
	}()
}

// CancelProgress stops the progress timer and nulls its slot.
func (tm *TimerManager) CancelProgress(sessionID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	b, ok := tm.bundles[sessionID]
	if !ok || b.progressStop == nil {
		return
	}
	close(b.progressStop)
	b.progressStop = nil
	tm.prune(sessionID)
}

// SetGenerationTimeout arms the generation-timeout slot. The slot is nulled
// before fn runs, and fn is skipped entirely if the timer was cancelled or
// replaced in the meantime.
func (tm *TimerManager) SetGenerationTimeout(sessionID string, d time.Duration, fn func()) {
	tm.setSlot(sessionID, slotGeneration, d, fn)
}

// CancelGenerationTimeout disarms the generation-timeout slot.
func (tm *TimerManager) CancelGenerationTimeout(sessionID string) {
	tm.cancelSlot(sessionID, slotGeneration)
}

// SetScanTimeout arms the scan-timeout slot.
func (tm *TimerManager) SetScanTimeout(sessionID string, d time.Duration, fn func()) {
	tm.setSlot(sessionID, slotScan, d, fn)
}

// CancelScanTimeout disarms the scan-timeout slot.
func (tm *TimerManager) CancelScanTimeout(sessionID string) {
	tm.cancelSlot(sessionID, slotScan)
}

type timerSlot int

const (
	slotGeneration timerSlot = iota
	slotScan
)

func (b *TimerBundle) slot(s timerSlot) **time.Timer {
	if s == slotGeneration {
		return &b.generation
	}
	return &b.scan
}

func (tm *TimerManager) setSlot(sessionID string, s timerSlot, d time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	b := tm.bundle(sessionID)
	slot := b.slot(s)
	if *slot != nil {
		(*slot).Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		tm.mu.Lock()
		current, ok := tm.bundles[sessionID]
		// Only fire if this timer is still the one armed in the slot.
		if !ok || *current.slot(s) != t {
			tm.mu.Unlock()
			return
		}
		*current.slot(s) = nil
		tm.prune(sessionID)
		tm.mu.Unlock()
		fn()
	})
	*slot = t
}

func (tm *TimerManager) cancelSlot(sessionID string, s timerSlot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	b, ok := tm.bundles[sessionID]
	if !ok {
		return
	}
	slot := b.slot(s)
	if *slot == nil {
		return
	}
	(*slot).Stop()
	*slot = nil
	tm.prune(sessionID)
}

// CancelAll cancels every timer in a session's bundle and removes it.
func (tm *TimerManager) CancelAll(sessionID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	b, ok := tm.bundles[sessionID]
	if !ok {
		return
	}
	if b.progressStop != nil {
		close(b.progressStop)
		b.progressStop = nil
	}
	if b.generation != nil {
		b.generation.Stop()
		b.generation = nil
	}
	if b.scan != nil {
		b.scan.Stop()
		b.scan = nil
	}
	delete(tm.bundles, sessionID)
}

// Has reports whether the session still has a timer bundle.
func (tm *TimerManager) Has(sessionID string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.bundles[sessionID]
	return ok
}

// Count returns the number of live bundles.
func (tm *TimerManager) Count() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.bundles)
}

// Shutdown cancels every bundle.
func (tm *TimerManager) Shutdown() {
	tm.mu.Lock()
	ids := make([]string, 0, len(tm.bundles))
	for id := range tm.bundles {
		ids = append(ids, id)
	}
	tm.mu.Unlock()

	for _, id := range ids {
		tm.CancelAll(id)
	}
}
