package socketio

import (
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
)

// IndexHandlers contains Socket.IO handlers for the persistent song index.
type IndexHandlers struct {
	index IndexStats
}

// NewIndexHandlers creates a new IndexHandlers instance. index may be nil.
func NewIndexHandlers(index IndexStats) *IndexHandlers {
	return &IndexHandlers{index: index}
}

// RegisterHandlers registers all index-related Socket.IO handlers.
func (h *IndexHandlers) RegisterHandlers(client *socket.Socket) {
	client.On("getIndexStatus", func(args ...interface{}) {
		client.Emit("pushIndexStatus", h.Status())
	})
}

// IndexStatusResponse represents the index status response.
type IndexStatusResponse struct {
	Enabled         bool   `json:"enabled"`
	LastUpdated     string `json:"lastUpdated"`
	LastFullScan    string `json:"lastFullScan"`
	SongCount       int    `json:"songCount"`
	DifficultyCount int    `json:"difficultyCount"`
	ArchiveCount    int    `json:"archiveCount"`
	IsBuilding      bool   `json:"isBuilding"`
	BuildProgress   int    `json:"buildProgress"`
	SchemaVersion   string `json:"schemaVersion"`
}

// Status reads the index statistics.
func (h *IndexHandlers) Status() IndexStatusResponse {
	if h.index == nil {
		return IndexStatusResponse{}
	}

	stats, err := h.index.GetStats()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get index status")
		return IndexStatusResponse{}
	}

	resp := IndexStatusResponse{
		Enabled:         true,
		SongCount:       stats.SongCount,
		DifficultyCount: stats.DifficultyCount,
		ArchiveCount:    stats.ArchiveCount,
		IsBuilding:      stats.IsBuilding,
		BuildProgress:   stats.BuildProgress,
		SchemaVersion:   stats.SchemaVersion,
	}

	if !stats.LastUpdated.IsZero() {
		resp.LastUpdated = stats.LastUpdated.Format("2006-01-02T15:04:05Z07:00")
	}
	if !stats.LastFullScan.IsZero() {
		resp.LastFullScan = stats.LastFullScan.Format("2006-01-02T15:04:05Z07:00")
	}

	log.Debug().
		Int("songs", resp.SongCount).
		Bool("building", resp.IsBuilding).
		Msg("Sending pushIndexStatus")

	return resp
}
