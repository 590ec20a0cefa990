package socketio

import (
	"sync"
	"time"
)

// BroadcastDebouncer collapses rapid loader events into batched broadcasts.
// Multiple events within the debounce window result in a single broadcast
// for each affected type (progress and/or song list).
type BroadcastDebouncer struct {
	window           time.Duration
	progressCallback func()
	songsCallback    func()

	mu              sync.Mutex
	pendingProgress bool
	pendingSongs    bool
	timer           *time.Timer
	stopped         bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration.
// progressCallback is called when progress or accepted-song events need
// broadcasting. songsCallback is called when the catalog changed.
func NewBroadcastDebouncer(window time.Duration, progressCallback, songsCallback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:           window,
		progressCallback: progressCallback,
		songsCallback:    songsCallback,
	}
}

// Trigger records that the given loader event happened.
// The actual broadcast callbacks are deferred until the debounce window elapses
// without further triggers.
func (d *BroadcastDebouncer) Trigger(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch event {
	case "progress", "accepted":
		d.pendingProgress = true
	case "loaded":
		d.pendingProgress = true
		d.pendingSongs = true
	}

	// Reset the timer
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// Flush fires pending callbacks now instead of waiting for the window.
func (d *BroadcastDebouncer) Flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.flush()
}

// flush fires callbacks for any pending flags and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doProgress := d.pendingProgress
	doSongs := d.pendingSongs
	d.pendingProgress = false
	d.pendingSongs = false
	d.mu.Unlock()

	if doProgress && d.progressCallback != nil {
		d.progressCallback()
	}
	if doSongs && d.songsCallback != nil {
		d.songsCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingProgress = false
	d.pendingSongs = false
}
