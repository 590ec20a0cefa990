// Package cache persists the loaded song catalog and the archive cache map in
// a SQLite index, so tools can list songs without scanning.
package cache

import "time"

// CachedSong is a song row in the index.
type CachedSong struct {
	ID              string    `json:"id"`       // canonical level id
	Hash            string    `json:"hash"`     // song.Key of ID
	Title           string    `json:"title"`
	Subtitle        string    `json:"subtitle"`
	Author          string    `json:"author"`
	BPM             float64   `json:"bpm"`
	PreviewStart    float64   `json:"previewStart"`
	PreviewDuration float64   `json:"previewDuration"`
	Environment     string    `json:"environment"`
	OneSaber        bool      `json:"oneSaber"`
	CoverPath       string    `json:"coverPath,omitempty"`
	AudioPath       string    `json:"audioPath,omitempty"`
	Dir             string    `json:"dir"`
	SourceFolder    string    `json:"sourceFolder"`
	ArchiveHash     string    `json:"archiveHash,omitempty"`
	NoteCount       int       `json:"noteCount"`
	IndexedAt       time.Time `json:"indexedAt"`

	Difficulties []*CachedDifficulty `json:"difficulties,omitempty"` // only filled by GetSong
}

// CachedDifficulty is one difficulty row of a song.
type CachedDifficulty struct {
	SongID        string  `json:"songId"`
	Label         string  `json:"label"`
	Difficulty    string  `json:"difficulty"`
	Rank          int     `json:"rank"`
	PayloadPath   string  `json:"payloadPath"`
	BPM           float64 `json:"bpm,omitempty"`
	NoteJumpSpeed float64 `json:"noteJumpSpeed,omitempty"`
	NoteCount     int     `json:"noteCount"`
}

// CachedArchive maps an archive to its extraction folder.
type CachedArchive struct {
	Hash        string    `json:"hash"`
	ArchivePath string    `json:"archivePath"`
	Dir         string    `json:"dir"`
	Size        int64     `json:"size"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// CacheStats provides statistics about the index.
type CacheStats struct {
	SongCount       int       `json:"songCount"`
	DifficultyCount int       `json:"difficultyCount"`
	ArchiveCount    int       `json:"archiveCount"`
	SchemaVersion   string    `json:"schemaVersion"`
	LastFullScan    time.Time `json:"lastFullScan"`
	LastUpdated     time.Time `json:"lastUpdated"`
	IsBuilding      bool      `json:"isBuilding"`
	BuildProgress   int       `json:"buildProgress"` // 0-100
}

// Pagination defines pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int // Calculated from Page and Limit
}

// NewPagination creates a new pagination with defaults.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
