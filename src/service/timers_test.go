package service

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFiresOnce(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Shutdown()

	var fired atomic.Int32
	tm.SetScanTimeout("s1", 20*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one firing, got %d", got)
	}
	if tm.Has("s1") {
		t.Fatal("expected bundle to be pruned after firing")
	}
}

func TestTimerCancelPreventsFiring(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Shutdown()

	var fired atomic.Int32
	tm.SetScanTimeout("s1", 30*time.Millisecond, func() { fired.Add(1) })
	tm.CancelScanTimeout("s1")

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected no firing after cancel, got %d", got)
	}
	if tm.Has("s1") {
		t.Fatal("expected bundle to be pruned after cancel")
	}
}

func TestTimerReplacementSupersedesOldCallback(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Shutdown()

	var first, second atomic.Int32
	tm.SetScanTimeout("s1", 30*time.Millisecond, func() { first.Add(1) })
	tm.SetScanTimeout("s1", 30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatal("replaced timer callback must not fire")
	}
	if second.Load() != 1 {
		t.Fatalf("expected replacement to fire once, got %d", second.Load())
	}
}

func TestCancelAllClearsEveryTimer(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Shutdown()

	var fired atomic.Int32
	tm.SetGenerationTimeout("s1", 30*time.Millisecond, func() { fired.Add(1) })
	tm.SetScanTimeout("s1", 30*time.Millisecond, func() { fired.Add(1) })
	tm.StartProgress("s1", 10*time.Millisecond, func(time.Duration) { fired.Add(1) })

	tm.CancelAll("s1")

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected nothing to fire after CancelAll, got %d", got)
	}
	if tm.Count() != 0 {
		t.Fatalf("expected no bundles, got %d", tm.Count())
	}
}

func TestTimersAreIndependentAcrossSessions(t *testing.T) {
	tm := NewTimerManager()
	defer tm.Shutdown()

	var a, b atomic.Int32
	tm.SetScanTimeout("a", 20*time.Millisecond, func() { a.Add(1) })
	tm.SetScanTimeout("b", 20*time.Millisecond, func() { b.Add(1) })
	tm.CancelScanTimeout("a")

	time.Sleep(80 * time.Millisecond)
	if a.Load() != 0 {
		t.Fatal("cancelled session timer fired")
	}
	if b.Load() != 1 {
		t.Fatalf("expected other session timer to fire once, got %d", b.Load())
	}
}
