package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/catalog"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/progress"
	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/archive"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/cache"
)

func openTestDB(t *testing.T) *cache.DB {
	t.Helper()
	db := cache.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(hash, title, author string) *song.Record {
	return &song.Record{
		ID:           hash + song.IDDelimiter + title + song.IDDelimiter + song.IDDelimiter + author + song.IDDelimiter + "120" + song.IDDelimiter,
		Title:        title,
		Author:       author,
		BPM:          120,
		Environment:  song.DefaultEnvironment,
		Dir:          "/songs/" + title,
		SourceFolder: "/songs/" + title,
		Difficulties: []song.DifficultyEntry{
			{Label: "Easy", Difficulty: song.Easy, Rank: 1, PayloadPath: "Easy.json", NoteCount: 10},
			{Label: "Expert", Difficulty: song.Expert, Rank: 4, PayloadPath: "Expert.json", NoteCount: 90},
		},
	}
}

func TestNewDB(t *testing.T) {
	db := cache.NewDB("")
	if db == nil {
		t.Error("NewDB should return a non-nil instance")
	}
}

func TestDBOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	db := cache.NewDB(dbPath)

	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist after Open()")
	}

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
	if _, err := db.GetStats(); err == nil {
		t.Error("GetStats on a closed database should fail")
	}
}

func TestDBGetStats(t *testing.T) {
	db := openTestDB(t)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats.SongCount != 0 || stats.DifficultyCount != 0 || stats.ArchiveCount != 0 {
		t.Errorf("Expected empty index, got %+v", stats)
	}
	if stats.SchemaVersion != cache.CurrentSchemaVersion {
		t.Errorf("Expected schema version '%s', got '%s'", cache.CurrentSchemaVersion, stats.SchemaVersion)
	}
	if !stats.LastFullScan.IsZero() {
		t.Error("Fresh index should have no full scan time")
	}
}

func TestDAOReplaceAndListSongs(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	records := []*song.Record{
		testRecord("aaa", "Foo", "Someone"),
		testRecord("bbb", "Bar", "Mapper"),
		testRecord("ccc", "baz", "Someone"),
	}
	if err := dao.ReplaceSongs(records); err != nil {
		t.Fatalf("ReplaceSongs: %v", err)
	}

	songs, total, err := dao.ListSongs("", cache.NewPagination(1, 50))
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	if total != 3 || len(songs) != 3 {
		t.Fatalf("Expected 3 songs, got total=%d len=%d", total, len(songs))
	}

	// Ordinal ordering: upper case sorts before lower case.
	want := []string{"Bar", "Foo", "baz"}
	for i, s := range songs {
		if s.Title != want[i] {
			t.Errorf("songs[%d] = %q, want %q", i, s.Title, want[i])
		}
	}
	if songs[0].Hash != song.Key(records[1].ID) {
		t.Errorf("Expected key of Bar, got %q", songs[0].Hash)
	}
	if songs[0].NoteCount != 100 {
		t.Errorf("Expected note count 100, got %d", songs[0].NoteCount)
	}

	matches, matchTotal, err := dao.ListSongs("someone", cache.NewPagination(1, 50))
	if err != nil {
		t.Fatalf("ListSongs query: %v", err)
	}
	if matchTotal != 2 || len(matches) != 2 {
		t.Errorf("Expected 2 songs by 'someone', got %d", matchTotal)
	}

	page, pageTotal, err := dao.ListSongs("", cache.NewPagination(2, 2))
	if err != nil {
		t.Fatalf("ListSongs page: %v", err)
	}
	if pageTotal != 3 || len(page) != 1 || page[0].Title != "baz" {
		t.Errorf("Unexpected second page: total=%d len=%d", pageTotal, len(page))
	}

	// Replacing drops songs that are gone.
	if err := dao.ReplaceSongs(records[:1]); err != nil {
		t.Fatalf("ReplaceSongs: %v", err)
	}
	stats, _ := db.GetStats()
	if stats.SongCount != 1 || stats.DifficultyCount != 2 {
		t.Errorf("Expected 1 song and 2 difficulties after replace, got %d/%d", stats.SongCount, stats.DifficultyCount)
	}
}

func TestDAOGetSong(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	rec := testRecord("abc", "Foo", "Someone")
	rec.CoverPath = "/songs/Foo/cover.jpg"
	rec.ManifestAudio = "song.ogg"
	if err := dao.ReplaceSongs([]*song.Record{rec}); err != nil {
		t.Fatal(err)
	}

	got, err := dao.GetSong(rec.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if got == nil {
		t.Fatal("Expected song, got nil")
	}
	if got.Title != "Foo" || got.Author != "Someone" || got.AudioPath != "song.ogg" || got.CoverPath != rec.CoverPath {
		t.Errorf("Unexpected song %+v", got)
	}
	if len(got.Difficulties) != 2 {
		t.Fatalf("Expected 2 difficulties, got %d", len(got.Difficulties))
	}
	if got.Difficulties[0].Difficulty != "Easy" || got.Difficulties[1].Difficulty != "Expert" {
		t.Errorf("Difficulties not in rank order: %s, %s", got.Difficulties[0].Difficulty, got.Difficulties[1].Difficulty)
	}

	missing, err := dao.GetSong("nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown id, got %v, %v", missing, err)
	}
}

func TestDAOLoadRecords(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	foo := testRecord("aaa", "Foo", "Someone")
	foo.ManifestAudio = "song.ogg"
	foo.ArchiveHash = "deadbeef"
	if err := dao.ReplaceSongs([]*song.Record{foo, testRecord("bbb", "Bar", "Mapper")}); err != nil {
		t.Fatal(err)
	}

	records, err := dao.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(records) != 2 || records[0].Title != "Bar" || records[1].Title != "Foo" {
		t.Fatalf("Unexpected records %+v", records)
	}

	got := records[1]
	if got.ID != foo.ID || got.SourceFolder != foo.SourceFolder || got.ArchiveHash != "deadbeef" {
		t.Errorf("Identity fields not restored: %+v", got)
	}
	if got.AudioPath() != "song.ogg" {
		t.Errorf("AudioPath = %q, want song.ogg", got.AudioPath())
	}
	if len(got.Difficulties) != 2 || got.Difficulties[1].Difficulty != song.Expert || got.NoteCount() != 100 {
		t.Errorf("Difficulties not restored: %+v", got.Difficulties)
	}
}

func TestDAOKeepsDifficultiesSharingAPayload(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	rec := testRecord("aaa", "Foo", "Someone")
	rec.Difficulties = []song.DifficultyEntry{
		{Label: "Hard", Difficulty: song.Hard, Rank: 3, PayloadPath: "Shared.json", NoteCount: 10},
		{Label: "Expert", Difficulty: song.Expert, Rank: 4, PayloadPath: "Shared.json", NoteCount: 10},
	}
	if err := dao.ReplaceSongs([]*song.Record{rec}); err != nil {
		t.Fatalf("ReplaceSongs: %v", err)
	}

	records, err := dao.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(records) != 1 || len(records[0].Difficulties) != 2 {
		t.Fatalf("Expected both difficulties, got %+v", records)
	}
	if records[0].Difficulties[0].Difficulty != song.Hard || records[0].Difficulties[1].Difficulty != song.Expert {
		t.Errorf("Unexpected difficulties %+v", records[0].Difficulties)
	}
}

func TestDBMigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := cache.NewDB(dbPath)
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := cache.NewDAO(db).ReplaceSongs([]*song.Record{testRecord("aaa", "Foo", "Someone")}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.DB().Exec("UPDATE cache_meta SET value = '1' WHERE key = 'schema_version'"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db = cache.NewDB(dbPath)
	if err := db.Open(); err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.SchemaVersion != cache.CurrentSchemaVersion {
		t.Errorf("Expected schema version '%s', got '%s'", cache.CurrentSchemaVersion, stats.SchemaVersion)
	}
	if stats.SongCount != 0 {
		t.Errorf("Expected migrated index to be empty, got %d songs", stats.SongCount)
	}
}

func TestDAOArchives(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	entries := []archive.Entry{
		{Hash: "h2", ArchivePath: "/songs/b.zip", Dir: "/songs/.cache/h2", Size: 20},
		{Hash: "h1", ArchivePath: "/songs/a.zip", Dir: "/songs/.cache/h1", Size: 10},
	}
	if err := dao.ReplaceArchives(entries); err != nil {
		t.Fatalf("ReplaceArchives: %v", err)
	}

	archives, err := dao.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("Expected 2 archives, got %d", len(archives))
	}
	if archives[0].Hash != "h1" || archives[0].Size != 10 {
		t.Errorf("Expected a.zip first, got %+v", archives[0])
	}

	if err := dao.ReplaceArchives(entries[:1]); err != nil {
		t.Fatal(err)
	}
	archives, _ = dao.ListArchives()
	if len(archives) != 1 || archives[0].Hash != "h2" {
		t.Errorf("Stale archive should be removed, got %d entries", len(archives))
	}
}

func TestDBClear(t *testing.T) {
	db := openTestDB(t)
	dao := cache.NewDAO(db)

	if err := dao.ReplaceSongs([]*song.Record{testRecord("a", "Foo", "x")}); err != nil {
		t.Fatal(err)
	}

	stats, _ := db.GetStats()
	if stats.SongCount != 1 {
		t.Errorf("Expected 1 song before clear, got %d", stats.SongCount)
	}

	if err := db.Clear(); err != nil {
		t.Fatalf("Failed to clear cache: %v", err)
	}

	stats, _ = db.GetStats()
	if stats.SongCount != 0 || stats.DifficultyCount != 0 {
		t.Errorf("Expected empty index after clear, got %d songs", stats.SongCount)
	}
}

func TestDBMarkScanComplete(t *testing.T) {
	db := openTestDB(t)

	if err := db.MarkScanComplete(false); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.GetStats()
	if !stats.LastFullScan.IsZero() {
		t.Error("Incremental scan should not set last full scan")
	}
	if stats.LastUpdated.IsZero() {
		t.Error("Expected last updated to be set")
	}

	if err := db.MarkScanComplete(true); err != nil {
		t.Fatal(err)
	}
	stats, _ = db.GetStats()
	if stats.LastFullScan.IsZero() {
		t.Error("Expected last full scan to be set")
	}
}

func TestIndexerWrite(t *testing.T) {
	db := openTestDB(t)
	ix := cache.NewIndexer(db)

	result := &catalog.ScanResult{
		RunID: "run-1",
		Songs: []*song.Record{testRecord("a", "Foo", "x"), testRecord("b", "Bar", "y")},
		Archives: &archive.SyncResult{
			Entries: []archive.Entry{{Hash: "a", ArchivePath: "/songs/foo.zip", Dir: "/songs/.cache/a"}},
		},
	}

	ix.Progress(progress.Snapshot{Stage: progress.StageScanning, Processed: 1, Total: 2, Fraction: 0.5})
	if stats, _ := db.GetStats(); !stats.IsBuilding || stats.BuildProgress != 50 {
		t.Errorf("Expected building at 50%%, got %v/%d", stats.IsBuilding, stats.BuildProgress)
	}

	ix.Write(result, catalog.LoadSummary{RunID: "run-1", Full: true, Count: 2})

	stats, _ := db.GetStats()
	if stats.SongCount != 2 || stats.ArchiveCount != 1 {
		t.Errorf("Expected 2 songs and 1 archive, got %d/%d", stats.SongCount, stats.ArchiveCount)
	}
	if stats.IsBuilding {
		t.Error("Building state should be cleared after write")
	}
	if stats.LastFullScan.IsZero() {
		t.Error("Full scan time should be recorded")
	}

	// A cancelled run leaves the index untouched.
	ix.Write(&catalog.ScanResult{}, catalog.LoadSummary{Cancelled: true})
	stats, _ = db.GetStats()
	if stats.SongCount != 2 {
		t.Errorf("Cancelled run should not change the index, got %d songs", stats.SongCount)
	}
}

func TestPagination(t *testing.T) {
	pag := cache.NewPagination(1, 50)
	if pag.Page != 1 {
		t.Errorf("Expected page 1, got %d", pag.Page)
	}
	if pag.Limit != 50 {
		t.Errorf("Expected limit 50, got %d", pag.Limit)
	}
	if pag.Offset != 0 {
		t.Errorf("Expected offset 0, got %d", pag.Offset)
	}

	pag = cache.NewPagination(2, 50)
	if pag.Offset != 50 {
		t.Errorf("Expected offset 50 for page 2, got %d", pag.Offset)
	}

	pag = cache.NewPagination(0, 0)
	if pag.Page != 1 {
		t.Errorf("Expected page 1 for invalid input, got %d", pag.Page)
	}
	if pag.Limit != 50 {
		t.Errorf("Expected limit 50 for invalid input, got %d", pag.Limit)
	}

	pag = cache.NewPagination(1, 500)
	if pag.Limit != 200 {
		t.Errorf("Expected max limit 200, got %d", pag.Limit)
	}
}
