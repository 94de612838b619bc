package selection

// Viewport describes where and how large an image is displayed on a
// pointer surface.
type Viewport struct {
	// OriginX and OriginY are the element's top-left in device pixels.
	OriginX float64
	OriginY float64
	// DisplayWidth and DisplayHeight are the element's on-screen size.
	DisplayWidth  float64
	DisplayHeight float64

	ImageWidth  int
	ImageHeight int
}

// ToImage converts a device-pixel position to image space, per axis:
// (device - origin) * (imageDim / displayedDim).
func (v Viewport) ToImage(x, y float64) Point {
	return Point{
		X: (x - v.OriginX) * scale(v.ImageWidth, v.DisplayWidth),
		Y: (y - v.OriginY) * scale(v.ImageHeight, v.DisplayHeight),
	}
}

// FromImage is the inverse of ToImage.
func (v Viewport) FromImage(p Point) (float64, float64) {
	return p.X/scale(v.ImageWidth, v.DisplayWidth) + v.OriginX,
		p.Y/scale(v.ImageHeight, v.DisplayHeight) + v.OriginY
}

// Contain fits an image into a width x height surface preserving aspect
// ratio and centering it, the way an aspect-fit widget displays it.
func Contain(imageWidth, imageHeight int, surfaceWidth, surfaceHeight float64) Viewport {
	v := Viewport{ImageWidth: imageWidth, ImageHeight: imageHeight}
	if imageWidth <= 0 || imageHeight <= 0 || surfaceWidth <= 0 || surfaceHeight <= 0 {
		v.DisplayWidth, v.DisplayHeight = float64(imageWidth), float64(imageHeight)
		return v
	}
	s := surfaceWidth / float64(imageWidth)
	if sh := surfaceHeight / float64(imageHeight); sh < s {
		s = sh
	}
	v.DisplayWidth = float64(imageWidth) * s
	v.DisplayHeight = float64(imageHeight) * s
	v.OriginX = (surfaceWidth - v.DisplayWidth) / 2
	v.OriginY = (surfaceHeight - v.DisplayHeight) / 2
	return v
}

func scale(imageDim int, displayDim float64) float64 {
	if displayDim <= 0 {
		return 1
	}
	return float64(imageDim) / displayDim
}
