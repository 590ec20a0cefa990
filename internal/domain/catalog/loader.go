package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
)

// ErrScanInProgress is returned when a refresh is requested while another
// scan is still running.
var ErrScanInProgress = errors.New("song scan already in progress")

// LoadSummary is reported to the host when a refresh finishes.
type LoadSummary struct {
	RunID     string        `json:"runId"`
	Full      bool          `json:"full"`
	Count     int           `json:"count"`
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Issues    int           `json:"issues"`
	Cancelled bool          `json:"cancelled"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Adapter is the host integration. LoadingStarted, SongAccepted and
// SongsLoaded run on the primary context; ProgressChanged runs on whichever
// goroutine advanced the tracker.
type Adapter interface {
	LoadingStarted(runID string, full bool)
	SongAccepted(rec *song.Record)
	ProgressChanged(snap progress.Snapshot)
	SongsLoaded(summary LoadSummary)
}

// ResultSink receives every finished refresh, e.g. to persist an index. result
// is nil for cancelled runs and may be nil for failed ones.
type ResultSink func(result *ScanResult, summary LoadSummary)

// NopAdapter ignores every notification.
type NopAdapter struct{}

func (NopAdapter) LoadingStarted(string, bool)       {}
func (NopAdapter) SongAccepted(*song.Record)         {}
func (NopAdapter) ProgressChanged(progress.Snapshot) {}
func (NopAdapter) SongsLoaded(LoadSummary)           {}

type run struct {
	id        string
	full      bool
	started   time.Time
	cancel    context.CancelFunc
	cancelled bool
	bgDone    chan struct{} // closed when the background goroutine returns
	done      chan struct{} // closed when the run is finalized or cancelled
	doneOnce  sync.Once
	err       error
}

func (r *run) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithResultSink registers fn to receive finished refreshes. It runs on the
// primary context.
func WithResultSink(fn ResultSink) LoaderOption {
	return func(l *Loader) {
		l.sinks = append(l.sinks, fn)
	}
}

// Loader orchestrates refreshes: one background scan at a time, with accepted
// songs and the final reconcile handed to the primary context through a
// WorkQueue. The primary context must call Tick regularly.
type Loader struct {
	root    string
	scanner *Scanner
	catalog *Catalog
	queue   *WorkQueue
	adapter Adapter
	sinks   []ResultSink

	mu     sync.Mutex
	active *run
}

// NewLoader wires a Loader. A nil adapter is replaced by NopAdapter.
func NewLoader(root string, scanner *Scanner, catalog *Catalog, adapter Adapter, opts ...LoaderOption) *Loader {
	if adapter == nil {
		adapter = NopAdapter{}
	}
	l := &Loader{
		root:    root,
		scanner: scanner,
		catalog: catalog,
		queue:   NewWorkQueue(),
		adapter: adapter,
	}
	for _, opt := range opts {
		opt(l)
	}
	scanner.Tracker().AddListener(adapter.ProgressChanged)
	return l
}

// Root returns the songs root.
func (l *Loader) Root() string {
	return l.root
}

// Catalog returns the live catalog.
func (l *Loader) Catalog() *Catalog {
	return l.catalog
}

// Progress returns the current progress snapshot.
func (l *Loader) Progress() progress.Snapshot {
	return l.scanner.Tracker().Snapshot()
}

// Queue returns the primary-context work queue.
func (l *Loader) Queue() *WorkQueue {
	return l.queue
}

// Busy reports whether a scan is running and has not been cancelled.
func (l *Loader) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil && !l.active.cancelled
}

// Refresh starts a background scan. fullRefresh re-parses every folder;
// otherwise only folders not already in the catalog are parsed. If a
// cancelled scan is still winding down, Refresh waits for it to exit.
func (l *Loader) Refresh(ctx context.Context, fullRefresh bool) error {
	l.mu.Lock()
	prev := l.active
	if prev != nil && !prev.cancelled {
		l.mu.Unlock()
		return ErrScanInProgress
	}
	l.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.bgDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	if l.active != nil && l.active != prev {
		l.mu.Unlock()
		return ErrScanInProgress
	}

	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:      uuid.NewString(),
		full:    fullRefresh,
		started: time.Now(),
		cancel:  cancel,
		bgDone:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	l.active = r
	l.mu.Unlock()

	loaded := l.catalog.Records()
	log.Info().Str("run", r.id).Bool("full", fullRefresh).Int("loaded", len(loaded)).Msg("Song refresh started")
	l.adapter.LoadingStarted(r.id, fullRefresh)

	go l.scan(scanCtx, r, loaded)
	return nil
}

func (l *Loader) scan(ctx context.Context, r *run, loaded []*song.Record) {
	defer close(r.bgDone)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("run", r.id).Msg("Song scan panicked")
			l.queue.Post(func() { l.finalize(r, nil, errors.New("scan panicked")) })
		}
	}()

	result, err := l.scanner.Scan(ctx, l.root, ScanRequest{
		RunID:       r.id,
		FullRefresh: r.full,
		Loaded:      loaded,
		OnAccept: func(rec *song.Record) {
			if ctx.Err() != nil {
				return
			}
			l.queue.Post(func() {
				if !l.isCurrent(r) {
					return
				}
				l.adapter.SongAccepted(rec)
			})
		},
	})

	if ctx.Err() != nil {
		return
	}
	l.queue.Post(func() { l.finalize(r, result, err) })
}

// finalize runs on the primary context once all accepted songs have been
// delivered.
func (l *Loader) finalize(r *run, result *ScanResult, scanErr error) {
	if !l.isCurrent(r) {
		return
	}

	summary := LoadSummary{
		RunID:    r.id,
		Full:     r.full,
		Duration: time.Since(r.started),
	}

	if scanErr != nil {
		log.Error().Err(scanErr).Str("run", r.id).Str("root", l.root).Msg("Song refresh failed")
		summary.Error = scanErr.Error()
		summary.Count = l.catalog.Len()
		r.err = scanErr
	} else {
		delta := Reconcile(l.catalog.Records(), result.Songs)
		l.catalog.Apply(delta, r.full)

		summary.Count = l.catalog.Len()
		summary.Added = len(delta.Added)
		summary.Removed = len(delta.Removed)
		summary.Unchanged = len(delta.Unchanged)
		summary.Skipped = result.Skipped
		summary.Issues = len(result.Issues)

		log.Info().
			Str("run", r.id).
			Int("songs", summary.Count).
			Int("added", summary.Added).
			Int("removed", summary.Removed).
			Int("unchanged", summary.Unchanged).
			Int("skipped", summary.Skipped).
			Msgf("%d songs loaded", summary.Count)
	}

	for _, sink := range l.sinks {
		sink(result, summary)
	}

	l.mu.Lock()
	if l.active == r {
		l.active = nil
	}
	l.mu.Unlock()
	r.finish()

	l.adapter.SongsLoaded(summary)
}

// Cancel stops the running scan. Queued work is dropped, progress is pinned
// to 1, and the catalog keeps its previous contents. The cancelled summary is
// delivered to sinks and the adapter on the next Tick.
func (l *Loader) Cancel() bool {
	l.mu.Lock()
	r := l.active
	if r == nil || r.cancelled {
		l.mu.Unlock()
		return false
	}
	r.cancelled = true
	r.err = context.Canceled
	r.cancel()
	l.mu.Unlock()

	dropped := l.queue.Clear()
	l.scanner.Tracker().Cancel()
	log.Info().Str("run", r.id).Int("dropped", dropped).Msg("Song refresh cancelled")

	// Clear the active run once the goroutine is gone so the next Refresh
	// does not have to wait.
	go func() {
		<-r.bgDone
		l.mu.Lock()
		if l.active == r {
			l.active = nil
		}
		l.mu.Unlock()
	}()

	summary := LoadSummary{
		RunID:     r.id,
		Full:      r.full,
		Cancelled: true,
		Duration:  time.Since(r.started),
	}
	l.queue.Post(func() {
		summary.Count = l.catalog.Len()
		for _, sink := range l.sinks {
			sink(nil, summary)
		}
		r.finish()
		l.adapter.SongsLoaded(summary)
	})
	return true
}

// Tick drains queued work. It must be called from the primary context, e.g.
// once per frame or on a ticker. limit <= 0 drains everything queued.
func (l *Loader) Tick(limit int) int {
	return l.queue.Drain(limit)
}

// Wait blocks until the current run is finalized or cancelled, or ctx ends.
// Someone must keep calling Tick for a run to finalize.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	r := l.active
	l.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshAndWait runs a refresh to completion, draining the queue on the
// calling goroutine. It suits callers that are themselves the primary
// context, like a CLI.
func (l *Loader) RefreshAndWait(ctx context.Context, fullRefresh bool, tick time.Duration) error {
	if err := l.Refresh(ctx, fullRefresh); err != nil {
		return err
	}

	l.mu.Lock()
	r := l.active
	l.mu.Unlock()
	if r == nil {
		return nil
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		l.Tick(0)
		select {
		case <-r.done:
			l.Tick(0)
			return r.err
		case <-ctx.Done():
			l.Cancel()
			l.Tick(0)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Loader) isCurrent(r *run) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active == r && !r.cancelled
}
