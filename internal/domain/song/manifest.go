package song

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// ManifestFile is the manifest name searched for in song folders.
const ManifestFile = "info.json"

// Manifest defaults applied when a field is absent.
const (
	DefaultTitle           = "Missing name"
	DefaultBPM             = 100
	DefaultPreviewStart    = 12
	DefaultPreviewDuration = 10
	DefaultEnvironment     = "DefaultEnvironment"
	DefaultCoverFile       = "cover.jpg"
	DefaultNoteVolume      = 1.0
)

// Manifest is info.json as written by song authors. Pointer fields are nil
// when absent so defaults can be told apart from explicit zero values.
type Manifest struct {
	SongName         *string  `json:"songName"`
	SongSubName      string   `json:"songSubName"`
	SongAuthorName   *string  `json:"songAuthorName"`
	AuthorName       string   `json:"authorName"` // deprecated spelling of songAuthorName
	BeatsPerMinute   *float64 `json:"beatsPerMinute"`
	PreviewStartTime *float64 `json:"previewStartTime"`
	PreviewDuration  *float64 `json:"previewDuration"`
	SongTimeOffset   float64  `json:"songTimeOffset"`
	Shuffle          float64  `json:"shuffle"`
	ShufflePeriod    float64  `json:"shufflePeriod"`
	EnvironmentName  string   `json:"environmentName"`
	AudioPath        string   `json:"audioPath"`
	CoverImagePath   *string  `json:"coverImagePath"`
	OneSaber         bool     `json:"oneSaber"`
	NoteHitVolume    *float64 `json:"noteHitVolume"`
	NoteMissVolume   *float64 `json:"noteMissVolume"`

	// Decoded separately by decodeDifficultyLevels.
	DifficultyLevels json.RawMessage `json:"difficultyLevels"`
}

// ManifestDifficulty is one element of difficultyLevels.
type ManifestDifficulty struct {
	Difficulty              string
	DifficultyRank          int
	AudioPath               string
	JSONPath                string
	NoteJumpMovementSpeed   float64
	NoteJumpStartBeatOffset float64
}

// ParseManifest decodes manifest text. Comments and trailing commas are
// tolerated.
func ParseManifest(data []byte) (*Manifest, []ManifestDifficulty, error) {
	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, nil, err
	}

	diffs, err := decodeDifficultyLevels(m.DifficultyLevels)
	if err != nil {
		return nil, nil, fmt.Errorf("difficultyLevels: %w", err)
	}
	return &m, diffs, nil
}

// decodeDifficultyLevels walks the array generically so loosely typed values
// ("4" for a rank, numbers for labels) still decode.
func decodeDifficultyLevels(raw json.RawMessage) ([]ManifestDifficulty, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	out := make([]ManifestDifficulty, 0, len(items))
	for _, item := range items {
		out = append(out, ManifestDifficulty{
			Difficulty:              asString(item["difficulty"]),
			DifficultyRank:          int(asFloat(item["difficultyRank"])),
			AudioPath:               asString(item["audioPath"]),
			JSONPath:                asString(item["jsonPath"]),
			NoteJumpMovementSpeed:   asFloat(item["noteJumpMovementSpeed"]),
			NoteJumpStartBeatOffset: asFloat(item["noteJumpStartBeatOffset"]),
		})
	}
	return out, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// payloadDoc holds the few scalar fields read from a beatmap payload.
type payloadDoc struct {
	BeatsPerMinute          *float64          `json:"_beatsPerMinute"`
	NoteJumpSpeed           *float64          `json:"_noteJumpSpeed"`
	NoteJumpStartBeatOffset *float64          `json:"_noteJumpStartBeatOffset"`
	Shuffle                 *float64          `json:"_shuffle"`
	ShufflePeriod           *float64          `json:"_shufflePeriod"`
	ColorLeft               *Color            `json:"_colorLeft"`
	ColorRight              *Color            `json:"_colorRight"`
	Notes                   []json.RawMessage `json:"_notes"`
}

func parsePayload(data []byte) (*payloadDoc, error) {
	var doc payloadDoc
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
