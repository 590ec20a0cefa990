package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

var (
	scanFull    bool
	scanNoIndex bool
	scanQuiet   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the songs folder once and update the song index",
	Long: `scan extracts new song archives, parses every song folder, drops
duplicates and prints the loaded songs sorted by title. Without --full,
folders already recorded in the index are reused instead of parsed again.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanFull, "full", false, "Re-parse every song folder")
	scanCmd.Flags().BoolVar(&scanNoIndex, "no-index", false, "Do not read or write the song index")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Hide the progress bar and the song list")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanner := newScanner(cfg)
	songs := catalog.NewCatalog()

	var opts []catalog.LoaderOption
	if !scanNoIndex {
		db, err := openIndex(cfg)
		if err != nil {
			return err
		}
		defer closeIndex(db)

		indexer := cache.NewIndexer(db)
		scanner.Tracker().AddListener(indexer.Progress)
		opts = append(opts, catalog.WithResultSink(indexer.Write))

		if !scanFull {
			if err := seedFromIndex(songs, indexer.DAO()); err != nil {
				return err
			}
		}
	}

	var summary catalog.LoadSummary
	opts = append(opts, catalog.WithResultSink(func(_ *catalog.ScanResult, s catalog.LoadSummary) {
		summary = s
	}))

	if !scanQuiet {
		bar := newScanBar()
		scanner.Tracker().AddListener(func(snap progress.Snapshot) {
			updateScanBar(bar, snap)
		})
		defer bar.Finish()
	}

	loader := catalog.NewLoader(cfg.SongsDir, scanner, songs, nil, opts...)
	if err := loader.RefreshAndWait(ctx, scanFull, cfg.Loader.DrainInterval); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if !scanQuiet {
		fmt.Fprintln(os.Stderr)
		for _, rec := range songs.Records() {
			fmt.Printf("%s  %s\n", shortHash(song.Key(rec.ID)), describe(rec))
		}
	}

	fmt.Fprintf(os.Stderr, "Scan complete: %d songs (%d added, %d removed), %d skipped, %d issues, %.1fs\n",
		summary.Count, summary.Added, summary.Removed, summary.Skipped, summary.Issues, summary.Duration.Seconds())
	return nil
}

// seedFromIndex loads the indexed songs into the catalog so an incremental
// scan can reuse them.
func seedFromIndex(songs *catalog.Catalog, dao *cache.DAO) error {
	records, err := dao.LoadRecords()
	if err != nil {
		return fmt.Errorf("read song index: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	songs.Apply(catalog.Reconcile(nil, records), true)
	return nil
}

func newScanBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetDescription("[cyan][1/2][reset] Extracting archives..."),
	)
}

func updateScanBar(bar *progressbar.ProgressBar, snap progress.Snapshot) {
	switch snap.Stage {
	case progress.StageArchives:
		bar.Describe("[cyan][1/2][reset] Extracting archives...")
		return
	case progress.StageScanning:
		bar.Describe("[cyan][2/2][reset] Loading songs...")
	}
	if snap.Total > 0 && bar.GetMax() != snap.Total {
		bar.ChangeMax(snap.Total)
	}
	_ = bar.Set(snap.Processed)
}

func describe(rec *song.Record) string {
	labels := make([]string, 0, len(rec.Difficulties))
	for _, d := range rec.Difficulties {
		labels = append(labels, d.Difficulty.String())
	}
	title := rec.Title
	if rec.Subtitle != "" {
		title += " " + rec.Subtitle
	}
	return fmt.Sprintf("%s - %s [%s]", title, rec.Author, strings.Join(labels, ", "))
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
