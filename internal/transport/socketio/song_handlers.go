package socketio

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

// SongHandlers contains Socket.IO handlers for the song catalog.
type SongHandlers struct {
	server *Server
}

// NewSongHandlers creates a new SongHandlers instance.
func NewSongHandlers(server *Server) *SongHandlers {
	return &SongHandlers{server: server}
}

// RegisterHandlers registers all song-related Socket.IO handlers.
func (h *SongHandlers) RegisterHandlers(client *socket.Socket) {
	client.On("getSongs", func(args ...interface{}) {
		h.handleGetSongs(client, args...)
	})

	client.On("getSong", func(args ...interface{}) {
		h.handleGetSong(client, args...)
	})

	client.On("refreshSongs", func(args ...interface{}) {
		h.handleRefresh(client, args...)
	})

	client.On("cancelRefresh", func(args ...interface{}) {
		h.handleCancel(client)
	})

	client.On("getScanStatus", func(args ...interface{}) {
		client.Emit("pushScanStatus", h.server.ScanStatus())
	})
}

// SongSummary is one entry of pushSongs.
type SongSummary struct {
	ID           string   `json:"id"`
	Hash         string   `json:"hash"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"subtitle"`
	Author       string   `json:"author"`
	BPM          float64  `json:"bpm"`
	Difficulties []string `json:"difficulties"`
	HasCover     bool     `json:"hasCover"`
	CoverURL     string   `json:"coverUrl,omitempty"`
}

// SongListResponse is the payload of pushSongs.
type SongListResponse struct {
	Songs []SongSummary `json:"songs"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Summarize converts a record to its list entry.
func Summarize(rec *song.Record) SongSummary {
	hash := song.Key(rec.ID)
	s := SongSummary{
		ID:           rec.ID,
		Hash:         hash,
		Title:        rec.Title,
		Subtitle:     rec.Subtitle,
		Author:       rec.Author,
		BPM:          rec.BPM,
		Difficulties: make([]string, 0, len(rec.Difficulties)),
		HasCover:     rec.CoverPath != "",
	}
	for _, d := range rec.Difficulties {
		s.Difficulties = append(s.Difficulties, d.Difficulty.String())
	}
	if s.HasCover {
		s.CoverURL = "/api/v1/songs/" + hash + "/cover"
	}
	return s
}

// BuildSongList pages recs. limit <= 0 uses the default page size.
func BuildSongList(recs []*song.Record, page, limit int) SongListResponse {
	pag := cache.NewPagination(page, limit)

	resp := SongListResponse{
		Songs: []SongSummary{},
		Total: len(recs),
		Page:  pag.Page,
		Limit: pag.Limit,
	}
	if pag.Offset >= len(recs) {
		return resp
	}
	end := min(pag.Offset+pag.Limit, len(recs))
	for _, rec := range recs[pag.Offset:end] {
		resp.Songs = append(resp.Songs, Summarize(rec))
	}
	return resp
}

func (h *SongHandlers) pushSongs(client *socket.Socket, query string, page, limit int) {
	resp := BuildSongList(h.server.songs.Search(query), page, limit)

	log.Debug().
		Int("total", resp.Total).
		Int("page", resp.Page).
		Str("query", query).
		Msg("Sending pushSongs")

	client.Emit("pushSongs", resp)
}

// handleGetSongs handles the getSongs event.
func (h *SongHandlers) handleGetSongs(client *socket.Socket, args ...interface{}) {
	log.Debug().Msg("Received getSongs")

	query, page, limit := "", 1, 0
	if payload := firstPayload(args); payload != nil {
		if q, ok := payload["query"].(string); ok {
			query = q
		}
		if p, ok := payload["page"].(float64); ok {
			page = int(p)
		}
		if l, ok := payload["limit"].(float64); ok {
			limit = int(l)
		}
	}

	h.pushSongs(client, query, page, limit)
}

// handleGetSong handles the getSong event. The song is addressed by its full
// id or by its song.Key hash.
func (h *SongHandlers) handleGetSong(client *socket.Socket, args ...interface{}) {
	payload := firstPayload(args)
	if payload == nil {
		return
	}

	var lvl *catalog.Level
	var ok bool
	if id, _ := payload["id"].(string); id != "" {
		lvl, ok = h.server.songs.Lookup(id)
	} else if hash, _ := payload["hash"].(string); hash != "" {
		lvl, ok = h.server.songs.LookupKey(hash)
	}
	if !ok {
		client.Emit("pushSong", map[string]interface{}{"error": "song not found"})
		return
	}

	client.Emit("pushSong", lvl.Record())
}

// handleRefresh handles the refreshSongs event.
func (h *SongHandlers) handleRefresh(client *socket.Socket, args ...interface{}) {
	full := false
	if payload := firstPayload(args); payload != nil {
		full, _ = payload["full"].(bool)
	}

	log.Info().Bool("full", full).Msg("Received refreshSongs")

	loader := h.server.refresher()
	if loader == nil {
		client.Emit("pushScanStatus", h.server.ScanStatus())
		return
	}

	if err := loader.Refresh(context.Background(), full); err != nil {
		if errors.Is(err, catalog.ErrScanInProgress) {
			log.Debug().Msg("Refresh requested while a scan is running")
		} else {
			log.Error().Err(err).Msg("Refresh failed to start")
		}
	}

	client.Emit("pushScanStatus", h.server.ScanStatus())
}

// handleCancel handles the cancelRefresh event.
func (h *SongHandlers) handleCancel(client *socket.Socket) {
	if loader := h.server.refresher(); loader != nil {
		if loader.Cancel() {
			log.Info().Msg("Refresh cancelled by client")
		}
	}
	client.Emit("pushScanStatus", h.server.ScanStatus())
}

func firstPayload(args []interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	payload, _ := args[0].(map[string]interface{})
	return payload
}
