// Package archive normalizes zipped song bundles into a content-addressed
// extraction cache under the songs root.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/infra/contenthash"
)

const (
	// DefaultCacheDirName is the extraction cache folder inside the songs root.
	DefaultCacheDirName = ".cache"

	tmpPrefix = ".tmp-"
)

// DefaultExtensions is the archive allow-list. Matching is case-insensitive.
var DefaultExtensions = []string{".zip", ".beat"}

// ErrArchiveExtraction marks an archive that could not be hashed or unpacked.
// The archive contributes no songs to the scan.
var ErrArchiveExtraction = errors.New("archive extraction failed")

// Entry maps an archive's content hash to its extraction directory.
type Entry struct {
	Hash        string `json:"hash"`
	ArchivePath string `json:"archivePath"`
	Dir         string `json:"dir"`
	Size        int64  `json:"size"`
	Extracted   bool   `json:"extracted"` // false when an existing extraction was reused
}

// SyncResult summarizes one Sync pass.
type SyncResult struct {
	Entries   []Entry
	Extracted int
	Reused    int
	Failed    int
	Pruned    int
	Issues    []error
}

// Option configures a Cache.
type Option func(*Cache)

// WithCacheDirName overrides the cache folder name.
func WithCacheDirName(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.cacheDirName = name
		}
	}
}

// WithExtensions overrides the archive extension allow-list.
func WithExtensions(exts []string) Option {
	return func(c *Cache) {
		if len(exts) == 0 {
			return
		}
		c.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			c.extensions[ext] = struct{}{}
		}
	}
}

// Cache extracts archives found directly in a songs root into
// <root>/<cacheDirName>/<hash>/.
type Cache struct {
	root         string
	cacheDirName string
	extensions   map[string]struct{}
}

// New creates a Cache for the given songs root.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:         root,
		cacheDirName: DefaultCacheDirName,
	}
	WithExtensions(DefaultExtensions)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the songs root.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the extraction cache directory.
func (c *Cache) Dir() string {
	return filepath.Join(c.root, c.cacheDirName)
}

// DirName returns the extraction cache folder name.
func (c *Cache) DirName() string {
	return c.cacheDirName
}

// IsArchive reports whether name carries an allow-listed extension.
func (c *Cache) IsArchive(name string) bool {
	_, ok := c.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Archives lists allow-listed archive files directly inside the songs root,
// sorted by name.
func (c *Cache) Archives() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !c.IsArchive(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(c.root, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Sync makes sure every archive in the songs root has an extracted copy in the
// cache, then prunes cache folders whose hash was not seen in this pass.
// Individual archive failures are recorded in the result; only an unreadable
// root returns an error.
func (c *Cache) Sync(ctx context.Context) (*SyncResult, error) {
	archives, err := c.Archives()
	if err != nil {
		return nil, fmt.Errorf("listing archives in %s: %w", c.root, err)
	}

	if err := os.MkdirAll(c.Dir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive cache: %w", err)
	}

	result := &SyncResult{}
	keep := make(map[string]struct{}, len(archives))

	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, err := c.ensure(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			log.Warn().Err(err).Str("path", path).Msg("Skipping song archive")
			result.Failed++
			result.Issues = append(result.Issues, err)
			continue
		}

		if _, dup := keep[entry.Hash]; dup {
			log.Debug().Str("path", path).Str("hash", entry.Hash).Msg("Archive content already cached by another archive")
			continue
		}
		keep[entry.Hash] = struct{}{}

		if entry.Extracted {
			result.Extracted++
		} else {
			result.Reused++
		}
		result.Entries = append(result.Entries, *entry)
	}

	pruned, err := c.Prune(keep)
	if err != nil {
		log.Warn().Err(err).Str("path", c.Dir()).Msg("Failed to prune archive cache")
	}
	result.Pruned = pruned

	log.Info().
		Int("archives", len(archives)).
		Int("extracted", result.Extracted).
		Int("reused", result.Reused).
		Int("failed", result.Failed).
		Int("pruned", result.Pruned).
		Msg("Archive cache synced")

	return result, nil
}

// ensure hashes an archive and extracts it unless its hash folder exists.
func (c *Cache) ensure(ctx context.Context, path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveExtraction, path, err)
	}

	digest, err := contenthash.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveExtraction, err)
	}
	hash := digest.String()

	entry := &Entry{
		Hash:        hash,
		ArchivePath: path,
		Dir:         filepath.Join(c.Dir(), hash),
		Size:        info.Size(),
	}

	if st, err := os.Stat(entry.Dir); err == nil && st.IsDir() {
		return entry, nil
	}

	if err := c.extract(ctx, path, hash); err != nil {
		return nil, err
	}
	entry.Extracted = true

	log.Info().Str("path", path).Str("hash", hash).Msg("Extracted song archive")
	return entry, nil
}

// extract unpacks into a temporary sibling and renames it into place, so a
// partial extraction never looks cached.
func (c *Cache) extract(ctx context.Context, path, hash string) error {
	tmp := filepath.Join(c.Dir(), tmpPrefix+hash)
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveExtraction, path, err)
	}

	if err := unzip(ctx, path, tmp); err != nil {
		os.RemoveAll(tmp)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrArchiveExtraction, path, err)
	}

	if err := os.Rename(tmp, filepath.Join(c.Dir(), hash)); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("%w: %s: %v", ErrArchiveExtraction, path, err)
	}
	return nil
}

func unzip(ctx context.Context, src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	root := filepath.Clean(dest)
	prefix := root + string(os.PathSeparator)
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, prefix) {
			return fmt.Errorf("entry %q escapes extraction directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := writeEntry(f, target); err != nil {
			return fmt.Errorf("entry %q: %w", f.Name, err)
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Prune deletes every cache subfolder whose name is not in keep, including
// leftovers of interrupted extractions. It returns the number removed.
func (c *Cache) Prune(keep map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, e := range entries {
		if _, ok := keep[e.Name()]; ok && e.IsDir() {
			continue
		}
		path := filepath.Join(c.Dir(), e.Name())
		if err := os.RemoveAll(path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info().Str("path", path).Msg("Pruned stale archive cache entry")
		removed++
	}
	return removed, firstErr
}
