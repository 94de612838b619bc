package selection

import "math"

// Point is a position in image-space pixels.
type Point struct {
	X float64
	Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Circle is the selected region in image space.
type Circle struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

func (c Circle) Center() Point { return Point{X: c.CenterX, Y: c.CenterY} }

func (c Circle) Diameter() float64 { return 2 * c.Radius }

// Contains reports whether p lies on or inside the circle boundary.
func (c Circle) Contains(p Point) bool {
	return c.Center().Dist(p) <= c.Radius
}

// fitEpsilon absorbs float rounding from edge arithmetic.
const fitEpsilon = 1e-9

// Fits reports whether the circle lies entirely inside a width x height
// image and respects the maximum radius.
func (c Circle) Fits(width, height int) bool {
	w, h := float64(width), float64(height)
	if c.Radius < 0 || c.Radius > MaxRadius(width, height)+fitEpsilon {
		return false
	}
	return c.CenterX+fitEpsilon >= c.Radius && c.CenterX+c.Radius <= w+fitEpsilon &&
		c.CenterY+fitEpsilon >= c.Radius && c.CenterY+c.Radius <= h+fitEpsilon
}

// MaxRadius is half of the shorter image side.
func MaxRadius(width, height int) float64 {
	return math.Min(float64(width), float64(height)) / 2
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		// Degenerate axis (radius larger than the axis allows): pin to the middle.
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
