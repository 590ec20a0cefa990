package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/artwork"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
	"github.com/xyonico/BeatSaberSongLoader/internal/transport/socketio"
	"github.com/xyonico/BeatSaberSongLoader/internal/version"
)

// api serves the loaded catalog over HTTP.
type api struct {
	songs   *catalog.Catalog
	loader  socketio.Refresher
	assets  *artwork.AssetCache
	thumbs  *artwork.ThumbnailGenerator
	index   *cache.DAO
	metrics http.Handler
	socket  http.Handler
}

func (a *api) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", a.handleHealth)
	router.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})

	router.Route("/api/v1/songs", func(r chi.Router) {
		r.Get("/", a.handleListSongs)
		r.Post("/refresh", a.handleRefresh)
		r.Post("/cancel", a.handleCancel)
		r.Get("/{hash}", a.handleGetSong)
		r.Get("/{hash}/cover", a.handleCover)
	})

	if a.index != nil {
		router.Get("/api/v1/index/songs", a.handleIndexSongs)
	}
	if a.metrics != nil {
		router.Handle("/metrics", a.metrics)
	}
	if a.socket != nil {
		router.Handle("/socket.io/*", a.socket)
	}
	return router
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	busy := a.loader != nil && a.loader.Busy()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"songs":  a.songs.Len(),
		"busy":   busy,
	})
}

func (a *api) handleListSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	writeJSON(w, http.StatusOK, socketio.BuildSongList(a.songs.Search(q.Get("query")), page, limit))
}

// SongDetail is the full record of one loaded song.
type SongDetail struct {
	*song.Record
	Hash  string              `json:"hash"`
	Audio *artwork.AudioAsset `json:"audio,omitempty"`
	Cover string              `json:"coverUrl,omitempty"`
	Binds int                 `json:"binds"`
}

func (a *api) handleGetSong(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	lvl, ok := a.songs.LookupKey(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "song_not_found")
		return
	}

	rec := lvl.Record()
	detail := SongDetail{Record: rec, Hash: hash, Binds: lvl.Binds()}
	if audio := rec.AudioPath(); audio != "" {
		asset, err := a.assets.Audio(filepath.Join(rec.Dir, audio))
		if err != nil {
			log.Debug().Err(err).Str("id", rec.ID).Msg("Song audio unavailable")
		} else {
			detail.Audio = asset
		}
	}
	if rec.CoverPath != "" {
		detail.Cover = socketio.Summarize(rec).CoverURL
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *api) handleCover(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	lvl, ok := a.songs.LookupKey(hash)
	if !ok || lvl.Record().CoverPath == "" {
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	coverPath := lvl.Record().CoverPath

	w.Header().Set("Cache-Control", "public, max-age=86400")

	if size := r.URL.Query().Get("size"); size != "" && a.thumbs != nil {
		thumbPath, err := a.thumbs.Generate(coverPath, hash, artwork.ParseThumbnailSize(size))
		if err == nil {
			http.ServeFile(w, r, thumbPath)
			return
		}
		log.Warn().Err(err).Str("hash", hash).Msg("Thumbnail generation failed, serving original")
	}

	cover, err := a.assets.Cover(coverPath)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Failed to read cover")
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", cover.MimeType)
	w.Write(cover.Data)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if a.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "loader_unavailable")
		return
	}
	full := r.URL.Query().Get("full") == "true"
	if err := a.loader.Refresh(r.Context(), full); err != nil {
		if errors.Is(err, catalog.ErrScanInProgress) {
			writeError(w, http.StatusConflict, "scan_in_progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "full": full})
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := a.loader != nil && a.loader.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (a *api) handleIndexSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	pag := cache.NewPagination(page, limit)

	songs, total, err := a.index.ListSongs(q.Get("query"), pag)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list indexed songs")
		writeError(w, http.StatusInternalServerError, "index_unavailable")
		return
	}
	if songs == nil {
		songs = []*cache.CachedSong{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"songs": songs,
		"total": total,
		"page":  pag.Page,
		"limit": pag.Limit,
	})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
