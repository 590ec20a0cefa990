package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
)

// songFiles returns the files of a one-difficulty song.
func songFiles(title, notes string) map[string]string {
	manifest, _ := json.Marshal(map[string]any{
		"songName":       title,
		"songAuthorName": "tester",
		"beatsPerMinute": 120,
		"difficultyLevels": []map[string]any{
			{"difficulty": "Expert", "difficultyRank": 4, "jsonPath": "Expert.json"},
		},
	})
	return map[string]string{
		"info.json":   string(manifest),
		"Expert.json": fmt.Sprintf(`{"_notes": [%s]}`, notes),
	}
}

func writeSong(t *testing.T, dir, title, notes string) {
	t.Helper()
	for name, content := range songFiles(title, notes) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func writeSongZip(t *testing.T, path, folder, title, notes string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range songFiles(title, notes) {
		w, err := zw.Create(folder + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func rec(id, title string) *song.Record {
	return &song.Record{ID: id, Title: title, SourceFolder: "/songs/" + id}
}

func titles(recs []*song.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func ids(recs []*song.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
