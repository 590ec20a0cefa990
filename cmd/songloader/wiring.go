package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/config"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/artwork"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/archive"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

// newScanner builds the parser and scanner the config describes.
func newScanner(cfg *config.Config) *catalog.Scanner {
	parser := song.NewParser(
		song.WithIDPolicy(cfg.Identity),
		song.WithCoverResolver(artwork.ResolveCover),
	)
	return catalog.NewScanner(parser, catalog.WithArchiveOptions(
		archive.WithCacheDirName(cfg.CacheDirName),
		archive.WithExtensions(cfg.ArchiveExtensions),
	))
}

// openIndex opens the SQLite song index.
func openIndex(cfg *config.Config) (*cache.DB, error) {
	db := cache.NewDB(cfg.IndexPath)
	if err := db.Open(); err != nil {
		return nil, fmt.Errorf("open song index: %w", err)
	}
	return db, nil
}

func closeIndex(db *cache.DB) {
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close song index")
	}
}
