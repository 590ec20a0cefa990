package song

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xyonico/BeatSaberSongLoader/internal/infra/contenthash"
)

// IDDelimiter separates the content hash and metadata fields of a canonical
// ID. It cannot occur in a hex digest and is rare in song metadata.
const IDDelimiter = "∎"

// IDPolicy selects the metadata fields folded into a canonical ID.
type IDPolicy struct {
	IncludeAuthor bool `yaml:"include_author" json:"includeAuthor"`
}

// DefaultIDPolicy includes the author.
var DefaultIDPolicy = IDPolicy{IncludeAuthor: true}

// DeriveID builds the canonical ID of r: the hash of every difficulty payload,
// concatenated in rank order, followed by the delimited metadata tuple.
func DeriveID(r *Record, policy IDPolicy) string {
	entries := make([]*DifficultyEntry, len(r.Difficulties))
	for i := range r.Difficulties {
		entries[i] = &r.Difficulties[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.Difficulty != b.Difficulty {
			return a.Difficulty < b.Difficulty
		}
		return a.PayloadPath < b.PayloadPath
	})

	h := contenthash.New()
	for _, e := range entries {
		h.WriteString(e.payload)
	}

	fields := []string{r.Title, r.Subtitle}
	if policy.IncludeAuthor {
		fields = append(fields, r.Author)
	}
	fields = append(fields, FormatBPM(r.BPM))

	var b strings.Builder
	b.WriteString(h.Sum().String())
	b.WriteString(IDDelimiter)
	b.WriteString(strings.Join(fields, IDDelimiter))
	b.WriteString(IDDelimiter)
	return b.String()
}

// FormatBPM renders a tempo with the shortest exact representation, so 100
// becomes "100" and 128.5 stays "128.5".
func FormatBPM(bpm float64) string {
	return strconv.FormatFloat(bpm, 'f', -1, 64)
}

// IDPrefix returns the content-hash part of a canonical ID.
func IDPrefix(id string) string {
	if i := strings.Index(id, IDDelimiter); i >= 0 {
		return id[:i]
	}
	return id
}

// Key returns a short URL-safe key unique to a canonical ID. Songs that share
// a content hash but differ in metadata get different keys.
func Key(id string) string {
	return contenthash.HashString(id).String()
}
