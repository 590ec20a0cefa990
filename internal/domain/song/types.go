// Package song defines parsed song records and turns song folders on disk into
// them.
package song

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Difficulty is an ordered difficulty label.
type Difficulty int

const (
	Easy Difficulty = iota
	Normal
	Hard
	Expert
	ExpertPlus
)

// DefaultDifficulty is used when a manifest label is not recognized.
const DefaultDifficulty = Normal

var difficultyNames = map[Difficulty]string{
	Easy:       "Easy",
	Normal:     "Normal",
	Hard:       "Hard",
	Expert:     "Expert",
	ExpertPlus: "ExpertPlus",
}

func (d Difficulty) String() string {
	if name, ok := difficultyNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Difficulty(%d)", int(d))
}

// MarshalJSON encodes the label name.
func (d Difficulty) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ParseDifficulty resolves a manifest label, ignoring case. Unknown labels
// return DefaultDifficulty and false.
func ParseDifficulty(label string) (Difficulty, bool) {
	label = strings.TrimSpace(label)
	for d, name := range difficultyNames {
		if strings.EqualFold(name, label) {
			return d, true
		}
	}
	return DefaultDifficulty, false
}

// Color is an RGB override in the 0..1 range.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// DifficultyEntry is one playable difficulty of a song.
type DifficultyEntry struct {
	Label       string     `json:"label"` // label as written in the manifest
	Difficulty  Difficulty `json:"difficulty"`
	Rank        int        `json:"rank"`
	PayloadPath string     `json:"payloadPath"`
	AudioPath   string     `json:"audioPath,omitempty"` // deprecated per-difficulty override

	BPM                     float64 `json:"bpm,omitempty"`
	NoteJumpSpeed           float64 `json:"noteJumpSpeed,omitempty"`
	NoteJumpStartBeatOffset float64 `json:"noteJumpStartBeatOffset,omitempty"`
	Shuffle                 float64 `json:"shuffle,omitempty"`
	ShufflePeriod           float64 `json:"shufflePeriod,omitempty"`
	ColorLeft               *Color  `json:"colorLeft,omitempty"`
	ColorRight              *Color  `json:"colorRight,omitempty"`
	NoteCount               int     `json:"noteCount"`

	payload string
}

// Payload returns the raw beatmap text as read from disk.
func (e *DifficultyEntry) Payload() string {
	return e.payload
}

// Record is a parsed song. It is not modified after Parse returns.
type Record struct {
	ID string `json:"id"`

	Title           string  `json:"title"`
	Subtitle        string  `json:"subtitle"`
	Author          string  `json:"author"`
	BPM             float64 `json:"bpm"`
	PreviewStart    float64 `json:"previewStart"`
	PreviewDuration float64 `json:"previewDuration"`
	SongTimeOffset  float64 `json:"songTimeOffset"`
	Shuffle         float64 `json:"shuffle"`
	ShufflePeriod   float64 `json:"shufflePeriod"`
	OneSaber        bool    `json:"oneSaber"`
	NoteHitVolume   float64 `json:"noteHitVolume"`
	NoteMissVolume  float64 `json:"noteMissVolume"`
	Environment     string  `json:"environment"`

	CoverPath     string `json:"coverPath,omitempty"` // resolved, empty when no cover exists
	ManifestAudio string `json:"manifestAudio,omitempty"`

	Difficulties []DifficultyEntry `json:"difficulties"`

	Dir          string `json:"dir"`          // folder holding info.json
	SourceFolder string `json:"sourceFolder"` // scan candidate the song was found under
	ArchiveHash  string `json:"archiveHash,omitempty"`
}

// AudioPath returns the song's audio file, relative to Dir. The manifest value
// wins; otherwise the first difficulty carrying a deprecated override is used.
func (r *Record) AudioPath() string {
	if r.ManifestAudio != "" {
		return r.ManifestAudio
	}
	for _, d := range r.Difficulties {
		if d.AudioPath != "" {
			return d.AudioPath
		}
	}
	return ""
}

// Difficulty returns the entry for d, or the first entry when the song does
// not have that difficulty. It returns nil only for a record with no entries.
func (r *Record) Difficulty(d Difficulty) *DifficultyEntry {
	if len(r.Difficulties) == 0 {
		return nil
	}
	for i := range r.Difficulties {
		if r.Difficulties[i].Difficulty == d {
			return &r.Difficulties[i]
		}
	}
	return &r.Difficulties[0]
}

// HasDifficulty reports whether the song declares d.
func (r *Record) HasDifficulty(d Difficulty) bool {
	for _, e := range r.Difficulties {
		if e.Difficulty == d {
			return true
		}
	}
	return false
}

// NoteCount sums notes across all difficulties.
func (r *Record) NoteCount() int {
	n := 0
	for _, e := range r.Difficulties {
		n += e.NoteCount
	}
	return n
}
