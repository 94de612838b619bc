// Package compositor turns a finalized circle selection into a fixed-size
// square thumbnail. Everything here is a pure function of its inputs.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"circle-thumb/src/apperr"
	"circle-thumb/src/selection"
)

// Output sizes and the diameter thresholds that select them.
const (
	SmallSize = 200
	LargeSize = 400
)

// Background is the opaque fill under the scaled crop.
type Background string

const (
	White Background = "white"
	Black Background = "black"
)

// ParseBackground maps a user selection to a Background; anything other
// than "black" is white.
func ParseBackground(s string) Background {
	if strings.EqualFold(strings.TrimSpace(s), string(Black)) {
		return Black
	}
	return White
}

// Color returns the fill color.
func (b Background) Color() color.NRGBA {
	if b == Black {
		return color.NRGBA{A: 0xff}
	}
	return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
}

// Hex returns the fill color as #RRGGBB.
func (b Background) Hex() string {
	c := b.Color()
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ExportSpec is recomputed for every export and never stored.
type ExportSpec struct {
	Diameter   float64    `json:"diameter"`
	TargetSize int        `json:"targetSize"`
	Background Background `json:"background"`
}

// TargetSize maps a circle diameter to the output size.
func TargetSize(diameter float64) (int, error) {
	switch {
	case diameter >= LargeSize:
		return LargeSize, nil
	case diameter >= SmallSize:
		return SmallSize, nil
	default:
		return 0, fmt.Errorf("%w: Selected circle is too small. Minimum diameter is %d pixels.", apperr.ErrImageTooSmall, SmallSize)
	}
}

// Spec validates c and derives the export parameters.
func Spec(c selection.Circle, bg Background) (ExportSpec, error) {
	if c.Radius <= 0 {
		return ExportSpec{}, apperr.ErrNoSelection
	}
	size, err := TargetSize(c.Diameter())
	if err != nil {
		return ExportSpec{}, err
	}
	return ExportSpec{Diameter: c.Diameter(), TargetSize: size, Background: ParseBackground(string(bg))}, nil
}

// CropRect is the integer bounding square of c, intersected with bounds.
// For a circle that fits the image the intersection is a no-op.
func CropRect(c selection.Circle, bounds image.Rectangle) image.Rectangle {
	side := int(math.Floor(c.Diameter()))
	x0 := bounds.Min.X + int(math.Round(c.CenterX-c.Radius))
	y0 := bounds.Min.Y + int(math.Round(c.CenterY-c.Radius))
	return image.Rect(x0, y0, x0+side, y0+side).Intersect(bounds)
}

// Compositor holds the resampling filter used when scaling the crop.
type Compositor struct {
	Filter imaging.ResampleFilter
}

// New returns a Compositor using the named filter (see ParseFilter).
func New(filter string) *Compositor {
	return &Compositor{Filter: ParseFilter(filter)}
}

// ParseFilter maps a config name to a resampling filter. Unknown names
// select Catmull-Rom.
func ParseFilter(name string) imaging.ResampleFilter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lanczos":
		return imaging.Lanczos
	case "linear", "bilinear":
		return imaging.Linear
	case "box":
		return imaging.Box
	case "nearest", "nearestneighbor":
		return imaging.NearestNeighbor
	default:
		return imaging.CatmullRom
	}
}

// Compose crops the circle's bounding square out of src, scales it to the
// target size and flattens it onto the background.
func (c *Compositor) Compose(src image.Image, circle selection.Circle, bg Background) (*image.NRGBA, ExportSpec, error) {
	spec, err := Spec(circle, bg)
	if err != nil {
		return nil, ExportSpec{}, err
	}
	rect := CropRect(circle, src.Bounds())
	if rect.Empty() {
		return nil, ExportSpec{}, apperr.ErrNoSelection
	}

	crop := imaging.Crop(src, rect)
	scaled := imaging.Resize(crop, spec.TargetSize, spec.TargetSize, c.Filter)
	canvas := imaging.New(spec.TargetSize, spec.TargetSize, spec.Background.Color())
	return imaging.Overlay(canvas, scaled, image.Point{}, 1.0), spec, nil
}

// ComposePNG is Compose followed by PNG encoding.
func (c *Compositor) ComposePNG(src image.Image, circle selection.Circle, bg Background) ([]byte, ExportSpec, error) {
	out, spec, err := c.Compose(src, circle, bg)
	if err != nil {
		return nil, ExportSpec{}, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, ExportSpec{}, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), spec, nil
}
