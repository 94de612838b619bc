// Package overlay paints the selection spotlight over a source image: the
// image itself, the circle outline, and a translucent scrim everywhere
// except the circle interior.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"circle-thumb/src/selection"
)

const (
	// StrokeWidth is the outline width in image pixels, centered on the
	// circle boundary.
	StrokeWidth = 3

	// kappa places cubic control points so four segments approximate a
	// circle.
	kappa = 0.5522847498
)

var (
	StrokeColor = color.NRGBA{R: 0x00, G: 0x7b, B: 0xff, A: 0xff}
	ScrimColor  = color.NRGBA{A: 0x80}
)

// Render returns a full repaint of src with the spotlight for c. When ok
// is false or the radius is zero the result is a plain copy of src.
func Render(src image.Image, c selection.Circle, ok bool) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	if !ok || c.Radius <= 0 {
		return dst
	}

	w, h := b.Dx(), b.Dy()
	cx, cy, r := c.CenterX, c.CenterY, c.Radius

	stroke := vector.NewRasterizer(w, h)
	addCircle(stroke, cx, cy, r+StrokeWidth/2.0, false)
	if inner := r - StrokeWidth/2.0; inner > 0 {
		addCircle(stroke, cx, cy, inner, true)
	}
	stroke.Draw(dst, dst.Bounds(), image.NewUniform(StrokeColor), image.Point{})

	scrim := vector.NewRasterizer(w, h)
	scrim.MoveTo(0, 0)
	scrim.LineTo(float32(w), 0)
	scrim.LineTo(float32(w), float32(h))
	scrim.LineTo(0, float32(h))
	scrim.ClosePath()
	addCircle(scrim, cx, cy, r, true)
	scrim.Draw(dst, dst.Bounds(), image.NewUniform(ScrimColor), image.Point{})

	return dst
}

// addCircle appends a closed circle as four cubic arcs. reverse flips the
// winding so the circle cuts a hole out of an enclosing path.
func addCircle(z *vector.Rasterizer, cx, cy, r float64, reverse bool) {
	dir := 1.0
	if reverse {
		dir = -1
	}
	pt := func(a float64) (float64, float64) {
		return cx + r*math.Cos(a), cy + r*math.Sin(a)
	}
	k := kappa * r

	x0, y0 := pt(0)
	z.MoveTo(float32(x0), float32(y0))
	for q := 0; q < 4; q++ {
		a0 := dir * float64(q) * math.Pi / 2
		a1 := dir * float64(q+1) * math.Pi / 2
		sx, sy := pt(a0)
		ex, ey := pt(a1)
		// Tangents point along the direction of travel.
		c1x, c1y := sx-dir*k*math.Sin(a0), sy+dir*k*math.Cos(a0)
		c2x, c2y := ex+dir*k*math.Sin(a1), ey-dir*k*math.Cos(a1)
		z.CubeTo(float32(c1x), float32(c1y), float32(c2x), float32(c2y), float32(ex), float32(ey))
	}
	z.ClosePath()
}
