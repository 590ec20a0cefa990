// Package socketio provides the Socket.io server that pushes song loading
// progress and the loaded catalog to UI clients.
package socketio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

const (
	// DefaultDebounce is the progress broadcast window.
	DefaultDebounce = 100 * time.Millisecond
	// DefaultMaxExternalClients bounds non-localhost UI connections.
	DefaultMaxExternalClients = 4
)

// Refresher is the part of catalog.Loader the server drives.
type Refresher interface {
	Refresh(ctx context.Context, fullRefresh bool) error
	Cancel() bool
	Progress() progress.Snapshot
	Busy() bool
}

// IndexStats reports the state of the persistent song index.
type IndexStats interface {
	GetStats() (*cache.CacheStats, error)
}

// Option configures a Server.
type Option func(*Server)

// WithDebounce sets the progress broadcast window.
func WithDebounce(window time.Duration) Option {
	return func(s *Server) {
		if window > 0 {
			s.debounce = window
		}
	}
}

// WithIndex enables the index status events.
func WithIndex(index IndexStats) Option {
	return func(s *Server) {
		s.index = index
	}
}

// WithMaxExternalClients sets how many non-localhost clients may stay
// connected before the oldest is evicted.
func WithMaxExternalClients(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.limiter = NewConnectionLimiter(n)
		}
	}
}

// Server handles Socket.io connections and events. It implements
// catalog.Adapter.
type Server struct {
	io        *socket.Server
	songs     *catalog.Catalog
	loader    Refresher
	index     IndexStats
	debounce  time.Duration
	debouncer *BroadcastDebouncer
	limiter   *ConnectionLimiter

	mu          sync.RWMutex
	clients     map[string]*socket.Socket
	progress    progress.Snapshot
	currentSong string
}

var _ catalog.Adapter = (*Server)(nil)

// NewServer creates a new Socket.io server over the live catalog. Call
// Attach before serving so clients can trigger refreshes.
func NewServer(songs *catalog.Catalog, opts ...Option) (*Server, error) {
	// Configure Socket.io server options
	ioOpts := socket.DefaultServerOptions()
	ioOpts.SetPingTimeout(20 * time.Second)
	ioOpts.SetPingInterval(25 * time.Second)
	ioOpts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:       socket.NewServer(nil, ioOpts),
		songs:    songs,
		debounce: DefaultDebounce,
		limiter:  NewConnectionLimiter(DefaultMaxExternalClients),
		clients:  make(map[string]*socket.Socket),
		progress: progress.Snapshot{Stage: progress.StageIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debouncer = NewBroadcastDebouncer(s.debounce, s.BroadcastProgress, s.BroadcastSongs)

	s.setupHandlers()

	return s, nil
}

// Attach sets the loader that refreshSongs and cancelRefresh drive.
func (s *Server) Attach(loader Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = loader
}

func (s *Server) refresher() Refresher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loader
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	songHandlers := NewSongHandlers(s)
	indexHandlers := NewIndexHandlers(s.index)

	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remoteIP := client.Handshake().Address

		log.Info().Str("id", clientID).Str("remote", remoteIP).Msg("Client connected")

		evictedID := s.limiter.TryAdd(clientID, remoteIP)

		s.mu.Lock()
		s.clients[clientID] = client
		evicted := s.clients[evictedID]
		delete(s.clients, evictedID)
		s.mu.Unlock()

		if evicted != nil {
			log.Info().Str("id", evictedID).Msg("Evicting oldest external client")
			evicted.Disconnect(true)
		}

		// Send initial status after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			client.Emit("pushScanStatus", s.ScanStatus())
			songHandlers.pushSongs(client, "", 1, 0)
		}()

		// Handle disconnect
		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		songHandlers.RegisterHandlers(client)
		indexHandlers.RegisterHandlers(client)
	})
}

// ScanStatus is the payload of pushScanStatus and pushScanProgress.
type ScanStatus struct {
	Busy        bool           `json:"busy"`
	RunID       string         `json:"runId,omitempty"`
	Stage       progress.Stage `json:"stage"`
	Progress    float64        `json:"progress"` // 0..1
	Percent     int            `json:"percent"`
	Processed   int            `json:"processed"`
	Total       int            `json:"total"`
	Current     string         `json:"current,omitempty"`
	CurrentSong string         `json:"currentSong,omitempty"`
	SongCount   int            `json:"songCount"`
}

// ScanStatus returns the latest loader state.
func (s *Server) ScanStatus() ScanStatus {
	s.mu.RLock()
	snap := s.progress
	current := s.currentSong
	loader := s.loader
	s.mu.RUnlock()

	busy := false
	if loader != nil {
		snap = loader.Progress()
		busy = loader.Busy()
	}

	return ScanStatus{
		Busy:        busy,
		RunID:       snap.RunID,
		Stage:       snap.Stage,
		Progress:    snap.Fraction,
		Percent:     snap.Percent(),
		Processed:   snap.Processed,
		Total:       snap.Total,
		Current:     snap.Current,
		CurrentSong: current,
		SongCount:   s.songs.Len(),
	}
}

// --- catalog.Adapter ---

// LoadingEvent is the payload of songs:loading.
type LoadingEvent struct {
	RunID string `json:"runId"`
	Full  bool   `json:"full"`
}

// LoadingStarted broadcasts songs:loading.
func (s *Server) LoadingStarted(runID string, full bool) {
	s.mu.Lock()
	s.currentSong = ""
	s.mu.Unlock()

	log.Debug().Str("run", runID).Bool("full", full).Msg("Broadcast songs:loading")
	s.io.Emit("songs:loading", LoadingEvent{RunID: runID, Full: full})
}

// SongAccepted records the song being accepted for the status text.
func (s *Server) SongAccepted(rec *song.Record) {
	s.mu.Lock()
	s.currentSong = rec.Title
	s.mu.Unlock()
	s.debouncer.Trigger("accepted")
}

// ProgressChanged schedules a progress broadcast. A finished or cancelled
// run is pushed immediately.
func (s *Server) ProgressChanged(snap progress.Snapshot) {
	s.mu.Lock()
	s.progress = snap
	s.mu.Unlock()

	s.debouncer.Trigger("progress")
	if snap.Done() {
		s.debouncer.Flush()
	}
}

// SongsLoaded broadcasts songs:loaded and the refreshed song list.
func (s *Server) SongsLoaded(summary catalog.LoadSummary) {
	s.mu.Lock()
	s.currentSong = ""
	s.mu.Unlock()

	s.io.Emit("songs:loaded", summary)
	s.debouncer.Trigger("loaded")
	s.debouncer.Flush()
}

// BroadcastProgress sends the scan status to all connected clients.
func (s *Server) BroadcastProgress() {
	status := s.ScanStatus()
	s.io.Emit("pushScanProgress", status)

	if log.Debug().Enabled() {
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().Int("percent", status.Percent).Int("clients", clientCount).Msg("Broadcast scan progress")
	}
}

// BroadcastSongs sends the first page of songs to all connected clients.
func (s *Server) BroadcastSongs() {
	s.io.Emit("pushSongs", BuildSongList(s.songs.Records(), 1, 0))
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
