package catalog

import (
	"sync"
	"time"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
)

// Level is the pooled, host-facing representation of a loaded song. Runtime
// state attached to it (decoded audio, textures) survives incremental
// refreshes as long as the song is unchanged.
type Level struct {
	mu          sync.RWMutex
	record      *song.Record
	boundAt     time.Time
	binds       int
	attachments map[string]any
}

// NewLevel returns an unbound Level.
func NewLevel() *Level {
	return &Level{}
}

// Bind points the level at rec.
func (l *Level) Bind(rec *song.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = rec
	l.boundAt = time.Now()
	l.binds++
}

// Refresh swaps in a newer record for the same song, keeping attachments.
func (l *Level) Refresh(rec *song.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = rec
}

// Reset clears the record and any attached runtime state.
func (l *Level) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = nil
	l.boundAt = time.Time{}
	l.attachments = nil
}

// Record returns the bound record, or nil.
func (l *Level) Record() *song.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.record
}

// ID returns the bound song's canonical ID.
func (l *Level) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.record == nil {
		return ""
	}
	return l.record.ID
}

// BoundAt returns when the current record was bound.
func (l *Level) BoundAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.boundAt
}

// Binds counts how many records this instance has been bound to.
func (l *Level) Binds() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.binds
}

// Attach stores runtime state under key.
func (l *Level) Attach(key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attachments == nil {
		l.attachments = make(map[string]any)
	}
	l.attachments[key] = v
}

// Attachment returns state stored with Attach.
func (l *Level) Attachment(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.attachments[key]
	return v, ok
}
