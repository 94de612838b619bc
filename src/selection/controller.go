// Package selection holds the circle-selection state machine. It knows
// nothing about widgets or browsers: callers translate their pointer events
// into image space with a Viewport and feed them to Controller.Dispatch.
package selection

import "math"

// State is the controller's interaction mode.
type State int

const (
	Idle State = iota
	Drawing
	Moving
)

func (s State) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Moving:
		return "moving"
	default:
		return "idle"
	}
}

// EventKind identifies a pointer event.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	PointerLeave
)

// ParseEventKind maps the wire names used by the web client.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "down":
		return PointerDown, true
	case "move":
		return PointerMove, true
	case "up":
		return PointerUp, true
	case "leave":
		return PointerLeave, true
	}
	return 0, false
}

// Event is a pointer event already converted to image space.
type Event struct {
	Kind  EventKind
	Point Point
}

// Controller tracks the circle and the drag mode for one image.
// It is not safe for concurrent use; owners serialize Dispatch calls.
type Controller struct {
	width  int
	height int

	circle    Circle
	hasCircle bool

	state  State
	offset Point
}

// NewController returns an idle controller for a width x height image.
func NewController(width, height int) *Controller {
	return &Controller{width: width, height: height}
}

// Size returns the image dimensions the controller constrains against.
func (c *Controller) Size() (int, int) { return c.width, c.height }

// State returns the current interaction mode.
func (c *Controller) State() State { return c.state }

// DragOffset is the grab point relative to the center while Moving.
func (c *Controller) DragOffset() Point { return c.offset }

// Circle returns the current circle and whether one exists.
func (c *Controller) Circle() (Circle, bool) { return c.circle, c.hasCircle }

// Selection returns the circle only when it has a non-zero radius.
func (c *Controller) Selection() (Circle, bool) {
	if !c.hasCircle || c.circle.Radius <= 0 {
		return Circle{}, false
	}
	return c.circle, true
}

// Reset drops the circle and returns to Idle.
func (c *Controller) Reset() {
	c.circle = Circle{}
	c.hasCircle = false
	c.state = Idle
	c.offset = Point{}
}

// Dispatch applies ev and reports whether the overlay needs a redraw.
func (c *Controller) Dispatch(ev Event) bool {
	switch ev.Kind {
	case PointerDown:
		c.pointerDown(ev.Point)
		return true
	case PointerMove:
		return c.pointerMove(ev.Point)
	case PointerUp, PointerLeave:
		if c.state == Idle {
			return false
		}
		c.state = Idle
		c.offset = Point{}
		return true
	}
	return false
}

func (c *Controller) pointerDown(p Point) {
	if c.hasCircle && c.circle.Radius > 0 && c.circle.Contains(p) {
		c.state = Moving
		c.offset = p.Sub(c.circle.Center())
		return
	}

	p = c.clampToImage(p)
	c.circle = Circle{CenterX: p.X, CenterY: p.Y}
	c.hasCircle = true
	c.state = Drawing
	c.offset = Point{}
}

func (c *Controller) pointerMove(p Point) bool {
	switch c.state {
	case Drawing:
		c.circle.Radius = c.drawRadius(p)
		return true
	case Moving:
		r := c.circle.Radius
		c.circle.CenterX = clamp(p.X-c.offset.X, r, float64(c.width)-r)
		c.circle.CenterY = clamp(p.Y-c.offset.Y, r, float64(c.height)-r)
		return true
	}
	return false
}

// drawRadius grows the radius toward the pointer with the center fixed.
// Besides the global cap it is limited by the distance from the center to
// the nearest image edge, so the circle never leaves the image.
func (c *Controller) drawRadius(p Point) float64 {
	center := c.circle.Center()
	r := math.Min(center.Dist(p), MaxRadius(c.width, c.height))
	edge := math.Min(
		math.Min(center.X, float64(c.width)-center.X),
		math.Min(center.Y, float64(c.height)-center.Y),
	)
	r = math.Min(r, edge)
	if r < 0 {
		return 0
	}
	return r
}

func (c *Controller) clampToImage(p Point) Point {
	return Point{
		X: clamp(p.X, 0, float64(c.width)),
		Y: clamp(p.Y, 0, float64(c.height)),
	}
}
