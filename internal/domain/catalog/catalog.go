// Package catalog scans song roots, reconciles the results into the live
// song catalog, and coordinates the background scan with the primary context.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
)

// Catalog is the live set of loaded songs. It replaces any process-wide song
// list: the composition root owns one and passes it to whoever needs it.
type Catalog struct {
	mu     sync.RWMutex
	levels map[string]*Level
	keys   map[string]*Level
	order  []*Level
	pool   *Pool[*Level]
}

// NewCatalog returns an empty catalog backed by a Level pool.
func NewCatalog() *Catalog {
	return &Catalog{
		levels: make(map[string]*Level),
		pool:   NewPool(NewLevel),
	}
}

// Pool exposes the level pool, mainly for stats.
func (c *Catalog) Pool() *Pool[*Level] {
	return c.pool
}

// Apply updates the catalog with delta. A full refresh returns every level to
// the pool first and rebinds all songs; an incremental refresh keeps the level
// and attachments of each unchanged song and points it at the fresh record.
func (c *Catalog) Apply(delta Delta, fullRefresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fullRefresh {
		c.pool.ReleaseAll()
		c.levels = make(map[string]*Level, len(delta.Added)+len(delta.Current))
		for _, rec := range delta.Current {
			c.bind(rec)
		}
	} else {
		for _, rec := range delta.Removed {
			if lvl, ok := c.levels[rec.ID]; ok {
				delete(c.levels, rec.ID)
				c.pool.Release(lvl)
			}
		}
		for _, rec := range delta.Current {
			if lvl, ok := c.levels[rec.ID]; ok {
				lvl.Refresh(rec)
			} else {
				c.bind(rec)
			}
		}
	}

	for _, rec := range delta.Added {
		if _, exists := c.levels[rec.ID]; exists {
			continue
		}
		c.bind(rec)
	}

	c.reorder()
}

func (c *Catalog) bind(rec *song.Record) {
	lvl := c.pool.Acquire()
	lvl.Bind(rec)
	c.levels[rec.ID] = lvl
}

func (c *Catalog) reorder() {
	order := make([]*Level, 0, len(c.levels))
	for _, lvl := range c.levels {
		order = append(order, lvl)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i].Record(), order[j].Record()
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	c.order = order

	c.keys = make(map[string]*Level, len(order))
	for _, lvl := range order {
		c.keys[song.Key(lvl.ID())] = lvl
	}
}

// Clear releases every level.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool.ReleaseAll()
	c.levels = make(map[string]*Level)
	c.keys = nil
	c.order = nil
}

// Songs returns the loaded levels sorted by title.
func (c *Catalog) Songs() []*Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Level(nil), c.order...)
}

// Records returns the loaded records sorted by title.
func (c *Catalog) Records() []*song.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recs := make([]*song.Record, 0, len(c.order))
	for _, lvl := range c.order {
		recs = append(recs, lvl.Record())
	}
	return recs
}

// Lookup returns the level with the given canonical ID.
func (c *Catalog) Lookup(id string) (*Level, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lvl, ok := c.levels[id]
	return lvl, ok
}

// LookupKey returns the level whose song.Key matches key.
func (c *Catalog) LookupKey(key string) (*Level, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lvl, ok := c.keys[key]
	return lvl, ok
}

// Search returns loaded records whose title, subtitle or author contains
// query, ignoring case, in catalog order. An empty query matches everything.
func (c *Catalog) Search(query string) []*song.Record {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.Records()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*song.Record
	for _, lvl := range c.order {
		rec := lvl.Record()
		if strings.Contains(strings.ToLower(rec.Title), query) ||
			strings.Contains(strings.ToLower(rec.Subtitle), query) ||
			strings.Contains(strings.ToLower(rec.Author), query) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of loaded songs.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.levels)
}

// LoadedFolders returns the scan candidate folders currently represented.
func (c *Catalog) LoadedFolders() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	folders := make(map[string]struct{}, len(c.levels))
	for _, lvl := range c.levels {
		if rec := lvl.Record(); rec != nil {
			folders[rec.SourceFolder] = struct{}{}
		}
	}
	return folders
}

// IsCustomLeaderboard reports whether a leaderboard ID ("<levelID>_<suffix>")
// belongs to a loaded song, so a host can keep custom scores off official
// leaderboards.
func (c *Catalog) IsCustomLeaderboard(leaderboardID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.levels[leaderboardID]; ok {
		return true
	}
	for id := range c.levels {
		if strings.HasPrefix(leaderboardID, id) {
			return true
		}
	}
	return false
}
