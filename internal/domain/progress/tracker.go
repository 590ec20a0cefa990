// Package progress tracks the fraction of a song scan that has completed.
package progress

import (
	"slices"
	"sync"
	"time"
)

// Stage is the phase of the current run.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageArchives  Stage = "archives"
	StageScanning  Stage = "scanning"
	StageAccepting Stage = "accepting"
	StageComplete  Stage = "complete"
	StageCancelled Stage = "cancelled"
)

// Snapshot is a consistent view of the tracker.
type Snapshot struct {
	RunID     string    `json:"runId"`
	Stage     Stage     `json:"stage"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Fraction  float64   `json:"fraction"`
	Current   string    `json:"current,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Percent returns the fraction as an integer 0-100.
func (s Snapshot) Percent() int {
	return int(s.Fraction*100 + 0.5)
}

// Done reports whether the run has finished or was cancelled.
func (s Snapshot) Done() bool {
	return s.Stage == StageComplete || s.Stage == StageCancelled
}

// Tracker exposes scan progress as a fraction in [0,1]. Within a run the
// fraction never decreases. It is safe to read from any goroutine.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	listeners []func(Snapshot)
	now       func() time.Time
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		snap: Snapshot{Stage: StageIdle},
		now:  time.Now,
	}
}

// AddListener registers fn to receive every update. Listeners run on the
// goroutine that made the update and must not call back into the tracker
// synchronously with a write.
func (t *Tracker) AddListener(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Start resets the tracker to 0 for a new run.
func (t *Tracker) Start(runID string, total int) {
	now := t.now()
	t.update(func(s *Snapshot) {
		*s = Snapshot{
			RunID:     runID,
			Stage:     StageArchives,
			Total:     max(total, 0),
			StartedAt: now,
		}
	})
}

// SetStage moves the run to stage without changing the fraction.
func (t *Tracker) SetStage(stage Stage) {
	t.update(func(s *Snapshot) {
		if s.Done() {
			return
		}
		s.Stage = stage
	})
}

// SetTotal sets the number of work items in this run.
func (t *Tracker) SetTotal(total int) {
	t.update(func(s *Snapshot) {
		if s.Done() {
			return
		}
		s.Total = max(total, 0)
		s.Fraction = max(s.Fraction, fraction(s.Processed, s.Total))
	})
}

// Step records one processed item; current names it for display.
func (t *Tracker) Step(current string) {
	t.update(func(s *Snapshot) {
		if s.Done() {
			return
		}
		s.Processed++
		s.Current = current
		s.Fraction = max(s.Fraction, fraction(s.Processed, s.Total))
	})
}

// SetCurrent updates the display name of the item in flight.
func (t *Tracker) SetCurrent(current string) {
	t.update(func(s *Snapshot) {
		s.Current = current
	})
}

// Finish pins the fraction to 1.
func (t *Tracker) Finish() {
	t.finish(StageComplete)
}

// Cancel pins the fraction to 1 and marks the run cancelled. The next Start
// resets it.
func (t *Tracker) Cancel() {
	t.finish(StageCancelled)
}

func (t *Tracker) finish(stage Stage) {
	t.update(func(s *Snapshot) {
		if s.Done() {
			return
		}
		s.Stage = stage
		s.Fraction = 1
		s.Current = ""
	})
}

// Fraction returns the current fraction.
func (t *Tracker) Fraction() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Fraction
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

func (t *Tracker) update(fn func(*Snapshot)) {
	t.mu.Lock()
	before := t.snap
	fn(&t.snap)
	changed := t.snap != before
	if changed {
		t.snap.UpdatedAt = t.now()
	}
	snap := t.snap
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(snap)
	}
}

func fraction(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(processed) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}
