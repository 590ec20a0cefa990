package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/archive"
)

// ErrCatalogRootMissing aborts a scan whose songs root does not exist.
var ErrCatalogRootMissing = errors.New("catalog root missing")

// ScanRequest parameterizes one scan.
type ScanRequest struct {
	RunID       string
	FullRefresh bool
	// Loaded is the currently loaded song set. On incremental refresh, any
	// candidate folder already represented here is reused instead of parsed.
	Loaded []*song.Record
	// OnAccept is called from the scanning goroutine for every accepted song,
	// in discovery order.
	OnAccept func(*song.Record)
}

// ScanResult is the outcome of one scan.
type ScanResult struct {
	RunID      string
	Songs      []*song.Record // sorted by title
	Candidates int
	Parsed     int
	Reused     int
	Skipped    int
	Issues     []*song.Issue
	Archives   *archive.SyncResult
	Duration   time.Duration
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithArchiveOptions passes options to the archive cache of each scanned root.
func WithArchiveOptions(opts ...archive.Option) ScannerOption {
	return func(s *Scanner) {
		s.archiveOpts = append(s.archiveOpts, opts...)
	}
}

// WithTracker reports progress to t.
func WithTracker(t *progress.Tracker) ScannerOption {
	return func(s *Scanner) {
		if t != nil {
			s.tracker = t
		}
	}
}

// Scanner walks a songs root and produces a deduplicated song list.
type Scanner struct {
	parser      *song.Parser
	tracker     *progress.Tracker
	archiveOpts []archive.Option
}

// NewScanner creates a Scanner.
func NewScanner(parser *song.Parser, opts ...ScannerOption) *Scanner {
	if parser == nil {
		parser = song.NewParser()
	}
	s := &Scanner{
		parser:  parser,
		tracker: progress.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the progress tracker this scanner reports to.
func (s *Scanner) Tracker() *progress.Tracker {
	return s.tracker
}

type candidate struct {
	path        string
	name        string
	archiveHash string
	archivePath string
}

// Scan runs the archive cache over root, parses every candidate folder, drops
// duplicate canonical IDs (first seen wins) and returns the songs sorted by
// title. Per-folder failures are logged and counted; only a missing root or
// cancellation returns an error.
func (s *Scanner) Scan(ctx context.Context, root string, req ScanRequest) (*ScanResult, error) {
	start := time.Now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := log.With().Str("run", runID).Str("root", root).Logger()

	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogRootMissing, root, err)
	}

	s.tracker.Start(runID, 0)
	result := &ScanResult{RunID: runID}

	cache := archive.New(root, s.archiveOpts...)
	synced, err := cache.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.tracker.Cancel()
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogRootMissing, root, err)
	}
	result.Archives = synced
	for _, issue := range synced.Issues {
		result.Issues = append(result.Issues, song.NewIssue(archive.ErrArchiveExtraction, root, issue))
	}

	candidates, err := listCandidates(root, cache, synced)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCatalogRootMissing, root, err)
	}
	result.Candidates = len(candidates)

	s.tracker.SetStage(progress.StageScanning)
	s.tracker.SetTotal(len(candidates))

	loaded := make(map[string][]*song.Record)
	if !req.FullRefresh {
		for _, rec := range req.Loaded {
			loaded[rec.SourceFolder] = append(loaded[rec.SourceFolder], rec)
		}
	}

	seen := make(map[string]string)
	accept := func(rec *song.Record) {
		if first, dup := seen[rec.ID]; dup {
			logger.Warn().Str("path", rec.Dir).Str("kept", first).Msg("Duplicate song found")
			result.Skipped++
			result.Issues = append(result.Issues, song.NewIssue(song.ErrDuplicateCanonicalID, rec.Dir, nil))
			return
		}
		seen[rec.ID] = rec.Dir
		result.Songs = append(result.Songs, rec)
		if req.OnAccept != nil {
			req.OnAccept(rec)
		}
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			logger.Info().Int("processed", s.tracker.Snapshot().Processed).Msg("Song scan cancelled")
			s.tracker.Cancel()
			return nil, err
		}
		s.tracker.SetCurrent(c.name)

		if recs, ok := loaded[c.path]; ok {
			for _, rec := range recs {
				result.Reused++
				accept(rec)
			}
			s.tracker.Step(c.name)
			continue
		}

		s.scanCandidate(c, result, accept)
		s.tracker.Step(c.name)
	}

	sort.SliceStable(result.Songs, func(i, j int) bool {
		return result.Songs[i].Title < result.Songs[j].Title
	})
	result.Duration = time.Since(start)
	s.tracker.Finish()

	logger.Info().
		Int("songs", len(result.Songs)).
		Int("candidates", result.Candidates).
		Int("parsed", result.Parsed).
		Int("reused", result.Reused).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Song scan complete")

	return result, nil
}

// scanCandidate parses every song under one candidate folder. A panic while
// parsing counts the folder as skipped.
func (s *Scanner) scanCandidate(c candidate, result *ScanResult, accept func(*song.Record)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("path", c.path).Msg("Song folder failed")
			result.Skipped++
		}
	}()

	dirs, err := song.FindManifests(c.path)
	if err != nil {
		log.Warn().Err(err).Str("path", c.path).Msg("No song manifest found")
		result.Skipped++
		result.Issues = append(result.Issues, asIssue(err, c.path))
		return
	}

	for _, dir := range dirs {
		rec, issues, err := s.parser.Parse(dir)
		result.Issues = append(result.Issues, issues...)
		if err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Skipping song")
			result.Skipped++
			result.Issues = append(result.Issues, asIssue(err, dir))
			continue
		}
		result.Parsed++
		rec.SourceFolder = c.path
		rec.ArchiveHash = c.archiveHash
		accept(rec)
	}
}

func asIssue(err error, path string) *song.Issue {
	var issue *song.Issue
	if errors.As(err, &issue) {
		return issue
	}
	return song.NewIssue(err, path, nil)
}

// listCandidates returns the root's immediate subfolders, sorted, followed by
// the extracted archive folders in archive order. The cache folder itself is
// not a candidate.
func listCandidates(root string, cache *archive.Cache, synced *archive.SyncResult) ([]candidate, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, e := range entries {
		if !e.IsDir() || e.Name() == cache.DirName() {
			continue
		}
		out = append(out, candidate{
			path: filepath.Join(root, e.Name()),
			name: e.Name(),
		})
	}

	for _, entry := range synced.Entries {
		out = append(out, candidate{
			path:        entry.Dir,
			name:        filepath.Base(entry.ArchivePath),
			archiveHash: entry.Hash,
			archivePath: entry.ArchivePath,
		})
	}
	return out, nil
}

// IssueKind names an issue for logs and metrics, including archive failures.
func IssueKind(issue *song.Issue) string {
	if errors.Is(issue.Kind, archive.ErrArchiveExtraction) {
		return "ArchiveExtractionError"
	}
	return issue.KindName()
}
