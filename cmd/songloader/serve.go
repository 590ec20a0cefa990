package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/artwork"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
	"github.com/xyonico/BeatSaberSongLoader/internal/telemetry"
	"github.com/xyonico/BeatSaberSongLoader/internal/transport/socketio"
	"github.com/xyonico/BeatSaberSongLoader/internal/version"
)

var serveNoInitialScan bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load songs and serve them over HTTP and Socket.io",
	Long: `serve runs a full refresh at startup, then keeps the catalog in memory
and serves it to UI clients. Clients trigger further refreshes through the
refreshSongs event or POST /api/v1/songs/refresh.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoInitialScan, "no-initial-scan", false, "Do not refresh at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("songs", cfg.SongsDir).
		Str("index", cfg.IndexPath).
		Bool("include_author", cfg.Identity.IncludeAuthor).
		Msg("Configuration loaded")

	db, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer closeIndex(db)
	indexer := cache.NewIndexer(db)
	indexer.DAO().LogCacheStats()

	songs := catalog.NewCatalog()
	assets := artwork.NewAssetCache()
	thumbs := artwork.NewThumbnailGenerator(cfg.ThumbnailDir)

	socketServer, err := socketio.NewServer(songs,
		socketio.WithDebounce(cfg.Loader.ProgressDebounce),
		socketio.WithIndex(db),
	)
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer socketServer.Close()

	opts := []catalog.LoaderOption{
		catalog.WithResultSink(indexer.Write),
		catalog.WithResultSink(assetSink(songs, assets, thumbs)),
	}
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New()
		opts = append(opts, catalog.WithResultSink(metrics.Observe))
	}

	scanner := newScanner(cfg)
	scanner.Tracker().AddListener(indexer.Progress)
	loader := catalog.NewLoader(cfg.SongsDir, scanner, songs, socketServer, opts...)
	socketServer.Attach(loader)

	a := &api{
		songs:  songs,
		loader: loader,
		assets: assets,
		thumbs: thumbs,
		index:  indexer.DAO(),
		socket: socketServer,
	}
	if metrics != nil {
		a.metrics = metrics.Handler()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      corsMiddleware(a.routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if !serveNoInitialScan {
		if err := loader.Refresh(ctx, true); err != nil {
			log.Error().Err(err).Msg("Initial song refresh failed to start")
		}
	}

	// This goroutine is the primary context: accepted songs and finished
	// scans are applied here.
	ticker := time.NewTicker(cfg.Loader.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			loader.Tick(cfg.Loader.DrainBatch)
		case err := <-errCh:
			loader.Cancel()
			loader.Tick(0)
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			log.Info().Msg("Shutting down...")
			loader.Cancel()
			loader.Tick(0)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server shutdown error")
			}
			log.Info().Msg("Server stopped")
			return nil
		}
	}
}

// assetSink drops cached assets after a full refresh and prunes thumbnails
// of songs that are no longer loaded.
func assetSink(songs *catalog.Catalog, assets *artwork.AssetCache, thumbs *artwork.ThumbnailGenerator) catalog.ResultSink {
	return func(result *catalog.ScanResult, summary catalog.LoadSummary) {
		if result == nil || !summary.Full {
			return
		}
		assets.Reset()

		keep := make(map[string]struct{}, songs.Len())
		for _, rec := range songs.Records() {
			keep[song.Key(rec.ID)] = struct{}{}
		}
		if n := thumbs.Prune(keep); n > 0 {
			log.Info().Int("removed", n).Msg("Pruned stale thumbnails")
		}
	}
}
