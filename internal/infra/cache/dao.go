package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/archive"
)

// DAO provides data access operations for the index.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

// --- Song Operations ---

// ReplaceSongs makes records the complete indexed song set. Rows for songs
// not in records are deleted.
func (dao *DAO) ReplaceSongs(records []*song.Record) error {
	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM difficulties"); err != nil {
		return fmt.Errorf("failed to clear difficulties: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM songs"); err != nil {
		return fmt.Errorf("failed to clear songs: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	for _, rec := range records {
		if err := dao.insertSongTx(tx, rec, now); err != nil {
			return fmt.Errorf("failed to index %s: %w", rec.Dir, err)
		}
	}

	return tx.Commit()
}

func (dao *DAO) insertSongTx(tx *sql.Tx, rec *song.Record, now string) error {
	_, err := tx.Exec(`
		INSERT INTO songs (id, hash, title, subtitle, author, bpm, preview_start, preview_duration,
			environment, one_saber, cover_path, audio_path, dir, source_folder, archive_hash,
			note_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, subtitle = excluded.subtitle, author = excluded.author,
			dir = excluded.dir, source_folder = excluded.source_folder, indexed_at = excluded.indexed_at
	`,
		rec.ID, song.Key(rec.ID), rec.Title, rec.Subtitle, rec.Author, rec.BPM,
		rec.PreviewStart, rec.PreviewDuration, rec.Environment, rec.OneSaber,
		rec.CoverPath, rec.AudioPath(), rec.Dir, rec.SourceFolder, rec.ArchiveHash,
		rec.NoteCount(), now,
	)
	if err != nil {
		return err
	}

	for _, d := range rec.Difficulties {
		_, err := tx.Exec(`
			INSERT INTO difficulties (song_id, label, difficulty, rank, payload_path, bpm,
				note_jump_speed, note_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(song_id, difficulty, rank, payload_path) DO NOTHING
		`,
			rec.ID, d.Label, d.Difficulty.String(), d.Rank, d.PayloadPath, d.BPM,
			d.NoteJumpSpeed, d.NoteCount,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const songColumns = `id, hash, title, subtitle, author, bpm, preview_start, preview_duration,
	environment, one_saber, cover_path, audio_path, dir, source_folder, archive_hash,
	note_count, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*CachedSong, error) {
	s := &CachedSong{}
	var subtitle, author, environment, cover, audio, archiveHash, indexedAt sql.NullString

	err := row.Scan(
		&s.ID, &s.Hash, &s.Title, &subtitle, &author, &s.BPM, &s.PreviewStart, &s.PreviewDuration,
		&environment, &s.OneSaber, &cover, &audio, &s.Dir, &s.SourceFolder, &archiveHash,
		&s.NoteCount, &indexedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Subtitle = subtitle.String
	s.Author = author.String
	s.Environment = environment.String
	s.CoverPath = cover.String
	s.AudioPath = audio.String
	s.ArchiveHash = archiveHash.String
	if indexedAt.Valid {
		s.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt.String)
	}
	return s, nil
}

// GetSong retrieves a song and its difficulties by id. It returns nil, nil
// when the song is not indexed.
func (dao *DAO) GetSong(id string) (*CachedSong, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	s, err := scanSong(db.QueryRow("SELECT "+songColumns+" FROM songs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT song_id, label, difficulty, rank, payload_path, bpm, note_jump_speed, note_count
		FROM difficulties WHERE song_id = ? ORDER BY rank, payload_path
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		d := &CachedDifficulty{}
		if err := rows.Scan(&d.SongID, &d.Label, &d.Difficulty, &d.Rank, &d.PayloadPath,
			&d.BPM, &d.NoteJumpSpeed, &d.NoteCount); err != nil {
			return nil, err
		}
		s.Difficulties = append(s.Difficulties, d)
	}
	return s, rows.Err()
}

// LoadRecords rebuilds every indexed song as a record, ordered by title.
// Difficulty payload text is not indexed, so Payload returns "" on the
// returned entries.
func (dao *DAO) LoadRecords() ([]*song.Record, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query("SELECT " + songColumns + " FROM songs ORDER BY title, id")
	if err != nil {
		return nil, err
	}
	var records []*song.Record
	byID := make(map[string]*song.Record)
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rec := &song.Record{
			ID:              s.ID,
			Title:           s.Title,
			Subtitle:        s.Subtitle,
			Author:          s.Author,
			BPM:             s.BPM,
			PreviewStart:    s.PreviewStart,
			PreviewDuration: s.PreviewDuration,
			Environment:     s.Environment,
			OneSaber:        s.OneSaber,
			CoverPath:       s.CoverPath,
			ManifestAudio:   s.AudioPath,
			Dir:             s.Dir,
			SourceFolder:    s.SourceFolder,
			ArchiveHash:     s.ArchiveHash,
		}
		records = append(records, rec)
		byID[rec.ID] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := db.Query(`
		SELECT song_id, label, difficulty, rank, payload_path, bpm, note_jump_speed, note_count
		FROM difficulties ORDER BY song_id, rank, difficulty, payload_path
	`)
	if err != nil {
		return nil, err
	}
	defer drows.Close()

	for drows.Next() {
		var d CachedDifficulty
		if err := drows.Scan(&d.SongID, &d.Label, &d.Difficulty, &d.Rank, &d.PayloadPath,
			&d.BPM, &d.NoteJumpSpeed, &d.NoteCount); err != nil {
			return nil, err
		}
		rec, ok := byID[d.SongID]
		if !ok {
			continue
		}
		diff, _ := song.ParseDifficulty(d.Difficulty)
		rec.Difficulties = append(rec.Difficulties, song.DifficultyEntry{
			Label:         d.Label,
			Difficulty:    diff,
			Rank:          d.Rank,
			PayloadPath:   d.PayloadPath,
			BPM:           d.BPM,
			NoteJumpSpeed: d.NoteJumpSpeed,
			NoteCount:     d.NoteCount,
		})
	}
	return records, drows.Err()
}

// ListSongs returns indexed songs matching query (title, subtitle or author,
// case-insensitive) ordered by title, plus the total match count.
func (dao *DAO) ListSongs(query string, pag Pagination) ([]*CachedSong, int, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, 0, fmt.Errorf("database not open")
	}

	var conditions []string
	var args []interface{}

	if query != "" {
		conditions = append(conditions,
			"(title LIKE ? COLLATE NOCASE OR subtitle LIKE ? COLLATE NOCASE OR author LIKE ? COLLATE NOCASE)")
		searchTerm := "%" + query + "%"
		args = append(args, searchTerm, searchTerm, searchTerm)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count
	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM songs "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Same ordering as the live catalog: ordinal title, then id.
	querySQL := fmt.Sprintf(`
		SELECT %s FROM songs %s ORDER BY title, id LIMIT ? OFFSET ?
	`, songColumns, whereClause)

	args = append(args, pag.Limit, pag.Offset)
	rows, err := db.Query(querySQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var songs []*CachedSong
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, 0, err
		}
		songs = append(songs, s)
	}

	return songs, total, rows.Err()
}

// --- Archive Operations ---

// ReplaceArchives makes entries the complete set of cached archives.
func (dao *DAO) ReplaceArchives(entries []archive.Entry) error {
	tx, err := dao.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM archives"); err != nil {
		return fmt.Errorf("failed to clear archives: %w", err)
	}

	now := time.Now().Format(time.RFC3339)
	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO archives (hash, archive_path, dir, size, indexed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(hash) DO UPDATE SET
				archive_path = excluded.archive_path, dir = excluded.dir,
				size = excluded.size, indexed_at = excluded.indexed_at
		`, e.Hash, e.ArchivePath, e.Dir, e.Size, now)
		if err != nil {
			return fmt.Errorf("failed to index archive %s: %w", e.ArchivePath, err)
		}
	}

	return tx.Commit()
}

// ListArchives returns every cached archive ordered by archive path.
func (dao *DAO) ListArchives() ([]*CachedArchive, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := db.Query(`
		SELECT hash, archive_path, dir, size, indexed_at
		FROM archives ORDER BY archive_path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archives []*CachedArchive
	for rows.Next() {
		a := &CachedArchive{}
		var indexedAt sql.NullString
		if err := rows.Scan(&a.Hash, &a.ArchivePath, &a.Dir, &a.Size, &indexedAt); err != nil {
			return nil, err
		}
		if indexedAt.Valid {
			a.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt.String)
		}
		archives = append(archives, a)
	}

	return archives, rows.Err()
}

// LogCacheStats logs index statistics.
func (dao *DAO) LogCacheStats() {
	stats, err := dao.db.GetStats()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get cache stats")
		return
	}

	log.Info().
		Int("songs", stats.SongCount).
		Int("difficulties", stats.DifficultyCount).
		Int("archives", stats.ArchiveCount).
		Msg("Cache statistics")
}
