package artwork

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AudioAsset describes a song's audio file. Decoding is left to the host.
type AudioAsset struct {
	Path    string    `json:"path"`
	Format  string    `json:"format"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// CoverAsset is a cover image held in memory.
type CoverAsset struct {
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// AssetCache shares audio and cover assets across songs, keyed by resolved
// path. Entries are only ever added; Reset drops everything at once.
type AssetCache struct {
	mu     sync.RWMutex
	audio  map[string]*AudioAsset
	covers map[string]*CoverAsset
}

// NewAssetCache returns an empty cache.
func NewAssetCache() *AssetCache {
	return &AssetCache{
		audio:  make(map[string]*AudioAsset),
		covers: make(map[string]*CoverAsset),
	}
}

// Audio returns the asset for path, loading its metadata on first use.
func (c *AssetCache) Audio(path string) (*AudioAsset, error) {
	path = filepath.Clean(path)

	c.mu.RLock()
	a, ok := c.audio[path]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("audio %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("audio %s: is a directory", path)
	}

	a = &AudioAsset{
		Path:    path,
		Format:  strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.audio[path]; ok {
		return existing, nil
	}
	c.audio[path] = a
	return a, nil
}

// Cover returns the cover at path, reading it on first use.
func (c *AssetCache) Cover(path string) (*CoverAsset, error) {
	path = filepath.Clean(path)

	c.mu.RLock()
	cv, ok := c.covers[path]
	c.mu.RUnlock()
	if ok {
		return cv, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cover %s: %w", path, err)
	}

	cv = &CoverAsset{
		Path:     path,
		MimeType: http.DetectContentType(data),
		Data:     data,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.covers[path]; ok {
		return existing, nil
	}
	c.covers[path] = cv
	return cv, nil
}

// Len returns the number of cached audio and cover entries.
func (c *AssetCache) Len() (audio, covers int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.audio), len(c.covers)
}

// Reset drops all entries. Used on full refresh.
func (c *AssetCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = make(map[string]*AudioAsset)
	c.covers = make(map[string]*CoverAsset)
}
