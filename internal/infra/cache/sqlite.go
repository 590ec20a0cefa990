package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "2"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "data/songs.db"
)

// DB represents the SQLite index database.
type DB struct {
	mu            sync.RWMutex
	db            *sql.DB
	path          string
	isBuilding    bool
	buildProgress int
}

// NewDB creates a new cache database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	// Initialize schema
	if err := d.initSchema(); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Cache database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// initSchema initializes the database schema.
func (d *DB) initSchema() error {
	// Get current schema version
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		// Fresh database, create all tables
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	// Check if migration is needed
	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating cache schema")
		if err := d.migrate(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

// migrate rebuilds the song tables. The song index is derived from the songs
// folder, so the next scan refills it.
func (d *DB) migrate() error {
	if _, err := d.db.Exec(`
		DROP TABLE IF EXISTS difficulties;
		DROP TABLE IF EXISTS songs;
	`); err != nil {
		return fmt.Errorf("failed to drop song tables: %w", err)
	}
	return d.createSchema()
}

// createSchema creates all database tables.
func (d *DB) createSchema() error {
	schema := `
	-- Songs table
	CREATE TABLE IF NOT EXISTS songs (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		title TEXT NOT NULL,
		subtitle TEXT,
		author TEXT,
		bpm REAL DEFAULT 0,
		preview_start REAL DEFAULT 0,
		preview_duration REAL DEFAULT 0,
		environment TEXT,
		one_saber INTEGER DEFAULT 0,
		cover_path TEXT,
		audio_path TEXT,
		dir TEXT NOT NULL,
		source_folder TEXT NOT NULL,
		archive_hash TEXT,
		note_count INTEGER DEFAULT 0,
		indexed_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	-- Difficulties table
	CREATE TABLE IF NOT EXISTS difficulties (
		song_id TEXT NOT NULL,
		label TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		rank INTEGER DEFAULT 0,
		payload_path TEXT NOT NULL,
		bpm REAL DEFAULT 0,
		note_jump_speed REAL DEFAULT 0,
		note_count INTEGER DEFAULT 0,
		PRIMARY KEY (song_id, difficulty, rank, payload_path),
		FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
	);

	-- Extracted archives
	CREATE TABLE IF NOT EXISTS archives (
		hash TEXT PRIMARY KEY,
		archive_path TEXT NOT NULL,
		dir TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		indexed_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	-- Cache metadata
	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_songs_author ON songs(author COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_songs_hash ON songs(hash);
	CREATE INDEX IF NOT EXISTS idx_difficulties_song ON difficulties(song_id);
	`

	_, err := d.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Cache schema created")
	return nil
}

// getSchemaVersion returns the current schema version.
func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta sets a metadata value.
func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO cache_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, time.Now().Format(time.RFC3339), value, time.Now().Format(time.RFC3339))
	return err
}

// getMeta gets a metadata value.
func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetStats returns cache statistics.
func (d *DB) GetStats() (*CacheStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	stats := &CacheStats{
		IsBuilding:    d.isBuilding,
		BuildProgress: d.buildProgress,
	}

	// Get counts
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM songs", &stats.SongCount},
		{"SELECT COUNT(*) FROM difficulties", &stats.DifficultyCount},
		{"SELECT COUNT(*) FROM archives", &stats.ArchiveCount},
	}
	for _, c := range counts {
		if err := d.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	// Get metadata
	stats.SchemaVersion, _ = d.getMeta("schema_version")

	lastScan, _ := d.getMeta("last_full_scan")
	if lastScan != "" {
		stats.LastFullScan, _ = time.Parse(time.RFC3339, lastScan)
	}

	lastUpdated, _ := d.getMeta("last_updated")
	if lastUpdated != "" {
		stats.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	}

	return stats, nil
}

// SetBuildingState records whether a scan is being written and how far along
// it is (0-100).
func (d *DB) SetBuildingState(building bool, progress int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isBuilding = building
	d.buildProgress = progress
}

// BeginTx starts a new transaction.
func (d *DB) BeginTx() (*sql.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	return d.db.Begin()
}

// Clear removes all data from the cache (but keeps schema).
func (d *DB) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("database not open")
	}

	tables := []string{"difficulties", "songs", "archives"}
	for _, table := range tables {
		if _, err := d.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Update metadata
	now := time.Now().Format(time.RFC3339)
	d.setMeta("last_updated", now)

	log.Info().Msg("Cache cleared")
	return nil
}

// MarkScanComplete records when the index was last written. A full scan
// also updates last_full_scan.
func (d *DB) MarkScanComplete(full bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("database not open")
	}

	now := time.Now().Format(time.RFC3339)
	if full {
		if err := d.setMeta("last_full_scan", now); err != nil {
			return err
		}
	}
	return d.setMeta("last_updated", now)
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer the DAO methods.
func (d *DB) DB() *sql.DB {
	return d.db
}
