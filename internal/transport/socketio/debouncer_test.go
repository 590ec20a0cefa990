package socketio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRapidProgressEventsCollapseToOne(t *testing.T) {
	var progressCalls int32
	var songsCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() { atomic.AddInt32(&songsCalls, 1) },
	)
	defer d.Stop()

	// Fire 10 rapid progress events
	for i := 0; i < 10; i++ {
		d.Trigger("progress")
	}

	// Wait for debounce window to elapse
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected 1 progress callback, got %d", got)
	}
	if got := atomic.LoadInt32(&songsCalls); got != 0 {
		t.Errorf("expected 0 songs callbacks, got %d", got)
	}
}

func TestDebouncerRapidAcceptedEventsCollapseToOne(t *testing.T) {
	var progressCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() {},
	)
	defer d.Stop()

	// Simulate songs being accepted one per frame
	for i := 0; i < 20; i++ {
		d.Trigger("accepted")
		time.Sleep(5 * time.Millisecond)
	}

	// Wait for debounce window
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected 1 progress callback for rapid accepted events, got %d", got)
	}
}

func TestDebouncerLoadedTriggersProgressAndSongs(t *testing.T) {
	var progressCalls int32
	var songsCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() { atomic.AddInt32(&songsCalls, 1) },
	)
	defer d.Stop()

	d.Trigger("loaded")

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected 1 progress callback for loaded event, got %d", got)
	}
	if got := atomic.LoadInt32(&songsCalls); got != 1 {
		t.Errorf("expected 1 songs callback for loaded event, got %d", got)
	}
}

func TestDebouncerMixedEventsWithinWindow(t *testing.T) {
	var progressCalls int32
	var songsCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() { atomic.AddInt32(&songsCalls, 1) },
	)
	defer d.Stop()

	// Mix of progress, accepted and loaded events within the window
	d.Trigger("progress")
	d.Trigger("accepted")
	d.Trigger("loaded")
	d.Trigger("progress")

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected 1 progress callback for mixed events, got %d", got)
	}
	if got := atomic.LoadInt32(&songsCalls); got != 1 {
		t.Errorf("expected 1 songs callback for mixed events, got %d", got)
	}
}

func TestDebouncerSeparateWindowsFireIndependently(t *testing.T) {
	var progressCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() {},
	)
	defer d.Stop()

	// First burst
	d.Trigger("progress")
	time.Sleep(100 * time.Millisecond) // Wait for first flush

	// Second burst (separate window)
	d.Trigger("progress")
	time.Sleep(100 * time.Millisecond) // Wait for second flush

	if got := atomic.LoadInt32(&progressCalls); got != 2 {
		t.Errorf("expected 2 progress callbacks for separate windows, got %d", got)
	}
}

func TestDebouncerStopPreventsCallbacks(t *testing.T) {
	var progressCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() {},
	)

	d.Trigger("progress")
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 0 {
		t.Errorf("expected 0 progress callbacks after stop, got %d", got)
	}
}

func TestDebouncerTriggerAfterStopIsIgnored(t *testing.T) {
	var progressCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() {},
	)

	d.Stop()
	d.Trigger("progress")

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&progressCalls); got != 0 {
		t.Errorf("expected 0 progress callbacks after stop+trigger, got %d", got)
	}
}

func TestDebouncerFlushFiresImmediately(t *testing.T) {
	var progressCalls int32

	d := NewBroadcastDebouncer(time.Hour,
		func() { atomic.AddInt32(&progressCalls, 1) },
		func() {},
	)
	defer d.Stop()

	d.Trigger("progress")
	d.Flush()

	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected 1 progress callback after flush, got %d", got)
	}

	// Nothing pending: a second flush is a no-op.
	d.Flush()
	if got := atomic.LoadInt32(&progressCalls); got != 1 {
		t.Errorf("expected no extra callback, got %d", got)
	}
}
