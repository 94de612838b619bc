// Package store persists exported thumbnails. A Persister takes the PNG
// bytes, the target size and a suggested name and answers with the stored
// filename.
package store

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path"
	"strings"

	"circle-thumb/src/apperr"
)

// Persister stores one exported thumbnail.
type Persister interface {
	Save(ctx context.Context, data []byte, targetSize int, name string) (string, error)
}

// ConflictPolicy decides what happens when the target file already exists.
type ConflictPolicy string

const (
	// Overwrite replaces the existing file.
	Overwrite ConflictPolicy = "overwrite"
	// Version picks the first free name-N.png.
	Version ConflictPolicy = "version"
)

// ParseConflictPolicy maps a config value; anything but "version" is
// Overwrite.
func ParseConflictPolicy(s string) ConflictPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(Version)) {
		return Version
	}
	return Overwrite
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// ValidSize reports whether size is one of the export sizes.
func ValidSize(size int) bool { return size == 200 || size == 400 }

// ValidatePNG checks that data is a PNG of exactly size x size pixels.
func ValidatePNG(data []byte, size int) error {
	if !ValidSize(size) {
		return fmt.Errorf("%w: size must be 200 or 400, got %d", apperr.ErrMissingInput, size)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: No image provided", apperr.ErrMissingInput)
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("%w: input is not a valid PNG file (invalid magic number)", apperr.ErrMissingInput)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: invalid PNG: %v", apperr.ErrMissingInput, err)
	}
	if cfg.Width != size || cfg.Height != size {
		return fmt.Errorf("%w: image is %dx%d, expected %dx%d", apperr.ErrMissingInput, cfg.Width, cfg.Height, size, size)
	}
	return nil
}

// NormalizeName reduces a suggested name to a bare base name without a
// trailing .png (any case).
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name != "" {
		name = path.Base(name)
	}
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".png") {
		name = strings.TrimSpace(name[:len(name)-4])
	}
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: Please enter a filename.", apperr.ErrMissingInput)
	}
	return name, nil
}
