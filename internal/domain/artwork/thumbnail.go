package artwork

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ThumbnailSize is the longest edge of a thumbnail in pixels.
type ThumbnailSize int

const (
	// ThumbSmall is for song lists
	ThumbSmall ThumbnailSize = 128
	// ThumbMedium is for grids
	ThumbMedium ThumbnailSize = 256
	// ThumbLarge is for the detail view
	ThumbLarge ThumbnailSize = 512
)

// ParseThumbnailSize maps "small", "medium" and "large" to sizes. Anything
// else is medium.
func ParseThumbnailSize(s string) ThumbnailSize {
	switch strings.ToLower(s) {
	case "small":
		return ThumbSmall
	case "large":
		return ThumbLarge
	default:
		return ThumbMedium
	}
}

// ThumbnailGenerator renders JPEG thumbnails of cover images into a cache
// directory.
type ThumbnailGenerator struct {
	cacheDir string
}

// NewThumbnailGenerator creates a generator writing into cacheDir.
func NewThumbnailGenerator(cacheDir string) *ThumbnailGenerator {
	return &ThumbnailGenerator{cacheDir: cacheDir}
}

// Path returns where the thumbnail for key and size is stored.
func (g *ThumbnailGenerator) Path(key string, size ThumbnailSize) string {
	return filepath.Join(g.cacheDir, fmt.Sprintf("%s_%d.jpg", sanitizeKey(key), size))
}

// Generate renders sourcePath at size and returns the thumbnail path. An
// existing thumbnail is reused; keys are content hashes, so a changed cover
// gets a new key.
func (g *ThumbnailGenerator) Generate(sourcePath, key string, size ThumbnailSize) (string, error) {
	if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbPath := g.Path(key, size)
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open cover: %w", err)
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("failed to decode cover %s: %w", sourcePath, err)
	}

	log.Debug().
		Str("source", sourcePath).
		Str("format", format).
		Int("size", int(size)).
		Msg("Generating cover thumbnail")

	thumb := resize(img, int(size))

	tmp := thumbPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, thumbPath); err != nil {
		os.Remove(tmp)
		return "", err
	}

	return thumbPath, nil
}

// Prune deletes thumbnails whose key is not in keep.
func (g *ThumbnailGenerator) Prune(keep map[string]struct{}) int {
	entries, err := os.ReadDir(g.cacheDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		i := strings.LastIndex(name, "_")
		if e.IsDir() || i < 0 {
			continue
		}
		if _, ok := keep[name[:i]]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(g.cacheDir, name)); err != nil {
			log.Warn().Err(err).Str("path", name).Msg("Failed to remove thumbnail")
			continue
		}
		removed++
	}
	return removed
}

// resize scales src so its longest edge is maxSize, keeping the aspect ratio.
// Smaller images are not enlarged.
func resize(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= maxSize && srcH <= maxSize {
		return src
	}

	var newW, newH int
	if srcW > srcH {
		newW = maxSize
		newH = max(1, int(float64(srcH)*float64(maxSize)/float64(srcW)))
	} else {
		newH = maxSize
		newW = max(1, int(float64(srcW)*float64(maxSize)/float64(srcH)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, key)
}
