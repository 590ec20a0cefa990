package song

import (
	"errors"
	"fmt"
)

// Per-item failures. Only catalog-level errors abort a scan; these are logged
// and the item is skipped.
var (
	ErrMissingManifest        = errors.New("missing manifest")
	ErrManifestParse          = errors.New("manifest parse error")
	ErrPayloadMissing         = errors.New("difficulty payload missing")
	ErrPayloadParse           = errors.New("difficulty payload parse error")
	ErrNoPlayableDifficulties = errors.New("no playable difficulties")
	ErrDuplicateCanonicalID   = errors.New("duplicate canonical id")
)

var kindNames = map[error]string{
	ErrMissingManifest:        "MissingManifest",
	ErrManifestParse:          "ManifestParseError",
	ErrPayloadMissing:         "PayloadMissing",
	ErrPayloadParse:           "PayloadParseError",
	ErrNoPlayableDifficulties: "NoPlayableDifficulties",
	ErrDuplicateCanonicalID:   "DuplicateCanonicalID",
}

// Issue is a skipped item: which kind of failure, where, and the cause.
type Issue struct {
	Kind error  `json:"-"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// NewIssue builds an Issue.
func NewIssue(kind error, path string, err error) *Issue {
	return &Issue{Kind: kind, Path: path, Err: err}
}

func (i *Issue) Error() string {
	if i.Err != nil {
		return fmt.Sprintf("%v: %s: %v", i.Kind, i.Path, i.Err)
	}
	return fmt.Sprintf("%v: %s", i.Kind, i.Path)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (i *Issue) Unwrap() []error {
	errs := make([]error, 0, 2)
	if i.Kind != nil {
		errs = append(errs, i.Kind)
	}
	if i.Err != nil {
		errs = append(errs, i.Err)
	}
	return errs
}

// KindName returns a stable name for the issue kind, suitable as a metric label.
func (i *Issue) KindName() string {
	return KindName(i.Kind)
}

// KindName returns the stable name of a taxonomy sentinel, or "Other".
func KindName(kind error) string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	if kind != nil {
		for sentinel, name := range kindNames {
			if errors.Is(kind, sentinel) {
				return name
			}
		}
	}
	return "Other"
}
