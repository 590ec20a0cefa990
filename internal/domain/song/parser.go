package song

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// CoverResolver maps a song folder and its declared cover file to the cover
// that should be used, or "" when there is none.
type CoverResolver func(dir, declared string) string

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithIDPolicy sets the identity policy applied to parsed records.
func WithIDPolicy(policy IDPolicy) ParserOption {
	return func(p *Parser) {
		p.policy = policy
	}
}

// WithCoverResolver replaces the default cover lookup.
func WithCoverResolver(resolve CoverResolver) ParserOption {
	return func(p *Parser) {
		if resolve != nil {
			p.resolveCover = resolve
		}
	}
}

// Parser reads song folders. It only reads from disk.
type Parser struct {
	policy       IDPolicy
	resolveCover CoverResolver
}

// NewParser creates a Parser with the default identity policy.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		policy:       DefaultIDPolicy,
		resolveCover: declaredCover,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the identity policy in use.
func (p *Parser) Policy() IDPolicy {
	return p.policy
}

func declaredCover(dir, declared string) string {
	if declared == "" {
		return ""
	}
	path := filepath.Join(dir, declared)
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return path
	}
	return ""
}

// FindManifests returns every directory under folder, folder included, that
// holds a manifest. The result is sorted. A folder without any manifest yields
// an ErrMissingManifest issue.
func FindManifests(folder string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == ManifestFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, NewIssue(ErrMissingManifest, folder, err)
	}
	if len(dirs) == 0 {
		return nil, NewIssue(ErrMissingManifest, folder, nil)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Parse reads the song in dir. Per-difficulty problems are returned as issues
// alongside the record; a nil record comes with an *Issue error explaining
// why the whole song was rejected.
func (p *Parser) Parse(dir string) (*Record, []*Issue, error) {
	manifestPath := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, NewIssue(ErrMissingManifest, dir, nil)
		}
		return nil, nil, NewIssue(ErrManifestParse, manifestPath, err)
	}

	m, diffs, err := ParseManifest(data)
	if err != nil {
		return nil, nil, NewIssue(ErrManifestParse, manifestPath, err)
	}

	rec := p.recordFromManifest(dir, m)

	var issues []*Issue
	for _, md := range diffs {
		entry, issue := readDifficulty(dir, md)
		if issue != nil {
			log.Warn().Err(issue.Err).Str("path", issue.Path).Str("kind", issue.KindName()).Msg("Skipping difficulty")
			issues = append(issues, issue)
			continue
		}
		rec.Difficulties = append(rec.Difficulties, *entry)
	}

	if len(rec.Difficulties) == 0 {
		return nil, issues, NewIssue(ErrNoPlayableDifficulties, dir, nil)
	}

	rec.ID = DeriveID(rec, p.policy)
	return rec, issues, nil
}

func (p *Parser) recordFromManifest(dir string, m *Manifest) *Record {
	rec := &Record{
		Title:           DefaultTitle,
		Subtitle:        m.SongSubName,
		Author:          m.AuthorName,
		BPM:             DefaultBPM,
		PreviewStart:    DefaultPreviewStart,
		PreviewDuration: DefaultPreviewDuration,
		SongTimeOffset:  m.SongTimeOffset,
		Shuffle:         m.Shuffle,
		ShufflePeriod:   m.ShufflePeriod,
		OneSaber:        m.OneSaber,
		NoteHitVolume:   DefaultNoteVolume,
		NoteMissVolume:  DefaultNoteVolume,
		Environment:     m.EnvironmentName,
		ManifestAudio:   m.AudioPath,
		Dir:             dir,
	}

	if m.SongName != nil {
		rec.Title = *m.SongName
	}
	if m.SongAuthorName != nil {
		rec.Author = *m.SongAuthorName
	}
	if m.BeatsPerMinute != nil {
		rec.BPM = *m.BeatsPerMinute
	}
	if m.PreviewStartTime != nil {
		rec.PreviewStart = *m.PreviewStartTime
	}
	if m.PreviewDuration != nil {
		rec.PreviewDuration = *m.PreviewDuration
	}
	if m.NoteHitVolume != nil {
		rec.NoteHitVolume = clamp01(*m.NoteHitVolume)
	}
	if m.NoteMissVolume != nil {
		rec.NoteMissVolume = clamp01(*m.NoteMissVolume)
	}
	if rec.Environment == "" {
		rec.Environment = DefaultEnvironment
	}

	cover := DefaultCoverFile
	if m.CoverImagePath != nil {
		cover = *m.CoverImagePath
	}
	rec.CoverPath = p.resolveCover(dir, cover)

	return rec
}

// readDifficulty loads one payload. Manifest speed/offset overrides win over
// payload values when set.
func readDifficulty(dir string, md ManifestDifficulty) (*DifficultyEntry, *Issue) {
	difficulty, ok := ParseDifficulty(md.Difficulty)
	if !ok {
		log.Debug().Str("label", md.Difficulty).Str("path", dir).Msg("Unknown difficulty label, using default")
	}

	entry := &DifficultyEntry{
		Label:       md.Difficulty,
		Difficulty:  difficulty,
		Rank:        md.DifficultyRank,
		PayloadPath: md.JSONPath,
		AudioPath:   md.AudioPath,
	}

	if md.JSONPath == "" {
		return nil, NewIssue(ErrPayloadMissing, dir, fmt.Errorf("difficulty %q has no jsonPath", md.Difficulty))
	}

	path := filepath.Join(dir, md.JSONPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewIssue(ErrPayloadMissing, path, err)
	}

	doc, err := parsePayload(data)
	if err != nil {
		return nil, NewIssue(ErrPayloadParse, path, err)
	}

	entry.payload = string(data)
	entry.NoteCount = len(doc.Notes)
	entry.ColorLeft = doc.ColorLeft
	entry.ColorRight = doc.ColorRight
	if doc.BeatsPerMinute != nil {
		entry.BPM = *doc.BeatsPerMinute
	}
	if doc.NoteJumpSpeed != nil {
		entry.NoteJumpSpeed = *doc.NoteJumpSpeed
	}
	if doc.NoteJumpStartBeatOffset != nil {
		entry.NoteJumpStartBeatOffset = *doc.NoteJumpStartBeatOffset
	}
	if doc.Shuffle != nil {
		entry.Shuffle = *doc.Shuffle
	}
	if doc.ShufflePeriod != nil {
		entry.ShufflePeriod = *doc.ShufflePeriod
	}
	if md.NoteJumpMovementSpeed != 0 {
		entry.NoteJumpSpeed = md.NoteJumpMovementSpeed
	}
	if md.NoteJumpStartBeatOffset != 0 {
		entry.NoteJumpStartBeatOffset = md.NoteJumpStartBeatOffset
	}

	return entry, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
