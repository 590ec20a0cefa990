package song

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const threeDiffManifest = `{
	// authored by hand
	"songName": "Foo",
	"songSubName": "Remix",
	"songAuthorName": "Artist",
	"beatsPerMinute": 128.5,
	"difficultyLevels": [
		{"difficulty": "Easy", "difficultyRank": 1, "jsonPath": "Easy.json"},
		{"difficulty": "Expert", "difficultyRank": "4", "jsonPath": "Expert.json", "noteJumpMovementSpeed": 12},
		{"difficulty": "Hard", "difficultyRank": 3, "jsonPath": "Hard.json"},
	],
}`

func TestParseFullManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), threeDiffManifest)
	writeFile(t, filepath.Join(dir, "Easy.json"), `{"_beatsPerMinute": 128.5, "_notes": [{}, {}]}`)
	writeFile(t, filepath.Join(dir, "Expert.json"), `{"_noteJumpSpeed": 10, "_noteJumpStartBeatOffset": 0.5, "_notes": [{}], "_colorLeft": {"r": 1, "g": 0, "b": 0}}`)
	writeFile(t, filepath.Join(dir, "Hard.json"), `{"_notes": []}`)

	rec, issues, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}

	if rec.Title != "Foo" || rec.Subtitle != "Remix" || rec.Author != "Artist" || rec.BPM != 128.5 {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if len(rec.Difficulties) != 3 {
		t.Fatalf("expected 3 difficulties, got %d", len(rec.Difficulties))
	}

	expert := rec.Difficulty(Expert)
	if expert.Rank != 4 {
		t.Errorf("Expert rank = %d, want 4", expert.Rank)
	}
	if expert.NoteJumpSpeed != 12 {
		t.Errorf("manifest speed should override payload: got %v", expert.NoteJumpSpeed)
	}
	if expert.NoteJumpStartBeatOffset != 0.5 {
		t.Errorf("payload offset = %v, want 0.5", expert.NoteJumpStartBeatOffset)
	}
	if expert.ColorLeft == nil || expert.ColorLeft.R != 1 {
		t.Errorf("left color override not extracted: %+v", expert.ColorLeft)
	}
	if rec.NoteCount() != 3 {
		t.Errorf("NoteCount = %d, want 3", rec.NoteCount())
	}
	if rec.ID == "" {
		t.Error("ID should be derived")
	}
}

func TestParseDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), `{
		"authorName": "Legacy",
		"noteHitVolume": 3,
		"noteMissVolume": -1,
		"difficultyLevels": [{"difficulty": "Impossible", "difficultyRank": 9, "jsonPath": "x.json"}]
	}`)
	writeFile(t, filepath.Join(dir, "x.json"), `{}`)

	rec, _, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"title", rec.Title, DefaultTitle},
		{"subtitle", rec.Subtitle, ""},
		{"author falls back to authorName", rec.Author, "Legacy"},
		{"bpm", rec.BPM, float64(DefaultBPM)},
		{"preview start", rec.PreviewStart, float64(DefaultPreviewStart)},
		{"preview duration", rec.PreviewDuration, float64(DefaultPreviewDuration)},
		{"environment", rec.Environment, DefaultEnvironment},
		{"hit volume clamped", rec.NoteHitVolume, 1.0},
		{"miss volume clamped", rec.NoteMissVolume, 0.0},
		{"unknown label", rec.Difficulties[0].Difficulty, Normal},
		{"label kept", rec.Difficulties[0].Label, "Impossible"},
		{"no cover", rec.CoverPath, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestParseExplicitAuthorWinsOverLegacy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), `{"songAuthorName": "", "authorName": "Legacy",
		"difficultyLevels": [{"difficulty": "Easy", "jsonPath": "e.json"}]}`)
	writeFile(t, filepath.Join(dir, "e.json"), `{}`)

	rec, _, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Author != "" {
		t.Errorf("explicit empty songAuthorName should be kept, got %q", rec.Author)
	}
}

func TestParseCoverResolution(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), `{"difficultyLevels": [{"difficulty": "Easy", "jsonPath": "e.json"}]}`)
	writeFile(t, filepath.Join(dir, "e.json"), `{}`)
	writeFile(t, filepath.Join(dir, "cover.jpg"), "img")

	rec, _, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CoverPath != filepath.Join(dir, "cover.jpg") {
		t.Errorf("CoverPath = %q", rec.CoverPath)
	}

	custom := NewParser(WithCoverResolver(func(d, declared string) string { return "custom:" + declared }))
	rec, _, err = custom.Parse(dir)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CoverPath != "custom:cover.jpg" {
		t.Errorf("custom resolver not used: %q", rec.CoverPath)
	}
}

func TestParseMissingDifficultyTolerated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), threeDiffManifest)
	writeFile(t, filepath.Join(dir, "Easy.json"), `{}`)
	writeFile(t, filepath.Join(dir, "Expert.json"), `{}`)

	rec, issues, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rec.Difficulties) != 2 {
		t.Errorf("expected 2 difficulties, got %d", len(rec.Difficulties))
	}
	if len(issues) != 1 || !errors.Is(issues[0], ErrPayloadMissing) {
		t.Fatalf("expected one PayloadMissing issue, got %v", issues)
	}
	if issues[0].KindName() != "PayloadMissing" {
		t.Errorf("KindName = %q", issues[0].KindName())
	}
}

func TestParseMalformedPayloadDropsEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), threeDiffManifest)
	writeFile(t, filepath.Join(dir, "Easy.json"), `{}`)
	writeFile(t, filepath.Join(dir, "Expert.json"), `{"_notes": [`)
	writeFile(t, filepath.Join(dir, "Hard.json"), `{}`)

	rec, issues, err := NewParser().Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rec.Difficulties) != 2 {
		t.Errorf("expected 2 difficulties, got %d", len(rec.Difficulties))
	}
	if rec.HasDifficulty(Expert) {
		t.Error("malformed Expert payload should be dropped")
	}
	if len(issues) != 1 || !errors.Is(issues[0], ErrPayloadParse) {
		t.Errorf("expected one PayloadParseError issue, got %v", issues)
	}
}

func TestParseNoPlayableDifficulties(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "info.json"), threeDiffManifest)

	rec, issues, err := NewParser().Parse(dir)
	if rec != nil {
		t.Error("expected no record")
	}
	if !errors.Is(err, ErrNoPlayableDifficulties) {
		t.Errorf("expected ErrNoPlayableDifficulties, got %v", err)
	}
	if len(issues) != 3 {
		t.Errorf("expected 3 payload issues, got %d", len(issues))
	}
}

func TestParseManifestErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, _, err := NewParser().Parse(t.TempDir())
		if !errors.Is(err, ErrMissingManifest) {
			t.Errorf("expected ErrMissingManifest, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "info.json"), `{"songName": `)
		_, _, err := NewParser().Parse(dir)
		if !errors.Is(err, ErrManifestParse) {
			t.Errorf("expected ErrManifestParse, got %v", err)
		}
		var issue *Issue
		if !errors.As(err, &issue) || issue.Path != filepath.Join(dir, "info.json") {
			t.Errorf("issue should carry the manifest path, got %v", err)
		}
	})

	t.Run("difficulty array of wrong shape", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "info.json"), `{"difficultyLevels": {"difficulty": "Easy"}}`)
		_, _, err := NewParser().Parse(dir)
		if !errors.Is(err, ErrManifestParse) {
			t.Errorf("expected ErrManifestParse, got %v", err)
		}
	})
}

func TestFindManifests(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pack", "b", "info.json"), "{}")
	writeFile(t, filepath.Join(root, "pack", "a", "deep", "info.json"), "{}")
	writeFile(t, filepath.Join(root, "pack", "readme.txt"), "")

	dirs, err := FindManifests(filepath.Join(root, "pack"))
	if err != nil {
		t.Fatalf("FindManifests: %v", err)
	}
	want := []string{
		filepath.Join(root, "pack", "a", "deep"),
		filepath.Join(root, "pack", "b"),
	}
	if len(dirs) != len(want) {
		t.Fatalf("got %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("dirs[%d] = %s, want %s", i, dirs[i], want[i])
		}
	}

	empty := filepath.Join(root, "empty")
	if err := os.MkdirAll(empty, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := FindManifests(empty); !errors.Is(err, ErrMissingManifest) {
		t.Errorf("expected ErrMissingManifest, got %v", err)
	}
}

func TestAudioPathFallback(t *testing.T) {
	rec := &Record{Difficulties: []DifficultyEntry{{}, {AudioPath: "song.ogg"}}}
	if got := rec.AudioPath(); got != "song.ogg" {
		t.Errorf("AudioPath = %q, want difficulty fallback", got)
	}
	rec.ManifestAudio = "main.ogg"
	if got := rec.AudioPath(); got != "main.ogg" {
		t.Errorf("AudioPath = %q, want manifest value", got)
	}
	if got := (&Record{}).AudioPath(); got != "" {
		t.Errorf("AudioPath = %q, want empty", got)
	}
}

func TestDifficultyLookupFallsBackToFirst(t *testing.T) {
	rec := &Record{Difficulties: []DifficultyEntry{
		{Difficulty: Hard, PayloadPath: "h"},
		{Difficulty: Expert, PayloadPath: "e"},
	}}
	if got := rec.Difficulty(Expert); got.PayloadPath != "e" {
		t.Errorf("Difficulty(Expert) = %s", got.PayloadPath)
	}
	if got := rec.Difficulty(Easy); got.PayloadPath != "h" {
		t.Errorf("missing difficulty should fall back to first, got %s", got.PayloadPath)
	}
	if (&Record{}).Difficulty(Easy) != nil {
		t.Error("empty record should return nil")
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		label string
		want  Difficulty
		ok    bool
	}{
		{"Easy", Easy, true},
		{"expertplus", ExpertPlus, true},
		{" Hard ", Hard, true},
		{"Impossible", Normal, false},
		{"", Normal, false},
	}
	for _, tt := range tests {
		got, ok := ParseDifficulty(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDifficulty(%q) = %v,%v want %v,%v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
	if !(Easy < Normal && Normal < Hard && Hard < Expert && Expert < ExpertPlus) {
		t.Error("difficulties must be ordered")
	}
}
