package screenshot

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Displays returns the bounds of every active display in virtual-screen
// coordinates.
func Displays() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out
}

// VirtualBounds is the union of all display bounds.
func VirtualBounds() (image.Rectangle, error) {
	displays := Displays()
	if len(displays) == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := displays[0]
	for _, b := range displays[1:] {
		union = union.Union(b)
	}
	return union, nil
}

// Capture captures the entire virtual screen across all active displays.
// The returned image is rebased to a zero origin.
func Capture() (*image.RGBA, error) {
	union, err := VirtualBounds()
	if err != nil {
		return nil, err
	}
	return CaptureRect(union)
}

// CaptureDisplay captures a single display by index.
func CaptureDisplay(i int) (*image.RGBA, error) {
	displays := Displays()
	if i < 0 || i >= len(displays) {
		return nil, fmt.Errorf("display %d not found (%d active)", i, len(displays))
	}
	return CaptureRect(displays[i])
}

// CaptureRect captures r in virtual-screen coordinates.
func CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, fmt.Errorf("invalid capture dimensions: width=%d, height=%d", r.Dx(), r.Dy())
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %v", err)
	}
	return rebase(img), nil
}

// rebase shifts img so its bounds start at (0,0).
func rebase(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	out := *img
	out.Rect = image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy())
	return &out
}
