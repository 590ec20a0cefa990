package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
)

// Indexer writes completed scans into the index. Its Write method is a
// catalog.ResultSink and Progress is a tracker listener.
type Indexer struct {
	db  *DB
	dao *DAO
}

// NewIndexer creates an indexer over an open database.
func NewIndexer(db *DB) *Indexer {
	return &Indexer{
		db:  db,
		dao: NewDAO(db),
	}
}

// DAO returns the indexer's data access object.
func (ix *Indexer) DAO() *DAO {
	return ix.dao
}

// Progress mirrors scan progress into the building state.
func (ix *Indexer) Progress(snap progress.Snapshot) {
	ix.db.SetBuildingState(!snap.Done(), snap.Percent())
}

// Write persists one scan. Cancelled or failed scans leave the index as it
// was.
func (ix *Indexer) Write(result *catalog.ScanResult, summary catalog.LoadSummary) {
	if summary.Cancelled || summary.Error != "" || result == nil {
		ix.db.SetBuildingState(false, 0)
		return
	}
	if err := ix.Index(result, summary.Full); err != nil {
		log.Error().Err(err).Str("run", summary.RunID).Msg("Failed to write song index")
	}
}

// Index replaces the indexed songs and archives with the contents of result.
func (ix *Indexer) Index(result *catalog.ScanResult, full bool) error {
	startTime := time.Now()

	ix.db.SetBuildingState(true, 95)
	defer ix.db.SetBuildingState(false, 100)

	if err := ix.dao.ReplaceSongs(result.Songs); err != nil {
		return fmt.Errorf("failed to index songs: %w", err)
	}

	if result.Archives != nil {
		if err := ix.dao.ReplaceArchives(result.Archives.Entries); err != nil {
			return fmt.Errorf("failed to index archives: %w", err)
		}
	}

	if err := ix.db.MarkScanComplete(full); err != nil {
		return fmt.Errorf("failed to mark scan complete: %w", err)
	}

	log.Info().
		Str("run", result.RunID).
		Int("songs", len(result.Songs)).
		Bool("full", full).
		Dur("duration", time.Since(startTime)).
		Msg("Song index written")
	return nil
}
