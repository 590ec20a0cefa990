// Package artwork resolves song cover images, renders cover thumbnails, and
// caches audio and cover assets by path.
package artwork

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// CoverFilenames are conventional cover names, in priority order.
var CoverFilenames = []string{
	"cover",
	"folder",
	"front",
	"album",
	"artwork",
}

// CoverExtensions are the image types a cover may use.
var CoverExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".webp",
}

// ResolveCover returns the cover to use for the song in dir. The declared
// file wins when it exists; otherwise dir is searched for a conventional
// cover name, then for any image. It never looks outside dir.
func ResolveCover(dir, declared string) string {
	if declared != "" {
		path := filepath.Join(dir, declared)
		if inside(dir, path) && fileExists(path) {
			return path
		}
	}

	if path := searchDirectory(dir); path != "" {
		if declared != "" {
			log.Debug().Str("path", dir).Str("declared", declared).Str("found", path).Msg("Declared cover missing, using fallback")
		}
		return path
	}
	return ""
}

func searchDirectory(dir string) string {
	for _, name := range CoverFilenames {
		for _, ext := range CoverExtensions {
			candidates := []string{
				name + ext,
				strings.ToUpper(name[:1]) + name[1:] + ext,
				strings.ToUpper(name) + strings.ToUpper(ext),
			}
			for _, c := range candidates {
				path := filepath.Join(dir, c)
				if fileExists(path) {
					return path
				}
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		if IsImage(entry.Name()) {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

// IsImage reports whether name has a cover image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, valid := range CoverExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

func inside(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
