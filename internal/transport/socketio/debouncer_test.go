package socketio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRapidTriggersCollapseToOne(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	// enqueue + skip + enqueue in quick succession
	for i := 0; i < 10; i++ {
		d.Trigger()
	}

	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 callback, got %d", got)
	}
}

func TestDebouncerWindowResetsOnTrigger(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(20 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("callback fired inside a moving window: %d", got)
	}

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 callback, got %d", got)
	}
}

func TestDebouncerSeparateBurstsFireSeparately(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(100 * time.Millisecond)
	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 callbacks, got %d", got)
	}
}

func TestDebouncerStopPreventsCallbacks(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no callbacks after Stop, got %d", got)
	}
}

func TestDebouncerStaleFlushIsIgnored(t *testing.T) {
	var calls int32

	d := NewBroadcastDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.Trigger()

	// A timer that fired just before the second Trigger.
	d.flush(stale)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("stale flush ran the callback %d times", got)
	}

	// The current timer must still be cancellable.
	d.Stop()
	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no callbacks after Stop, got %d", got)
	}
}
