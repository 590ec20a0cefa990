// Package contenthash computes stable content digests for song archives and
// beatmap payloads.
package contenthash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a 32-byte BLAKE3 digest.
type Digest [Size]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex digest as produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(Size) {
		return d, fmt.Errorf("digest %q: want %d hex characters, got %d", s, hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest %q: %w", s, err)
	}
	return d, nil
}

// HashReader streams r through the hasher without buffering it in memory.
func HashReader(r io.Reader) (Digest, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// HashFile hashes the file at path. Missing and unreadable files return an
// error; the caller decides whether that is fatal.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	d, err := HashReader(f)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return d, nil
}

// HashBytes hashes an in-memory buffer.
func HashBytes(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// HashString hashes an in-memory string.
func HashString(s string) Digest {
	return HashBytes([]byte(s))
}

// Hasher accumulates several inputs into one digest.
type Hasher struct {
	h *blake3.Hasher
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{h: blake3.New()}
}

// WriteString appends s to the hashed stream.
func (h *Hasher) WriteString(s string) {
	_, _ = h.h.Write([]byte(s))
}

// Write appends p to the hashed stream. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}
