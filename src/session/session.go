// Package session is one editing session: a source image, the selection
// controller over it and the chosen background. Sessions are shared by the
// desktop event loop and the HTTP handlers, so every method locks.
package session

import (
	"fmt"
	"image"
	"sync"
	"time"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/overlay"
	"circle-thumb/src/selection"
	"circle-thumb/src/source"
)

// View is the selection state reported to clients.
type View struct {
	State  string            `json:"state"`
	Circle *selection.Circle `json:"circle"`
}

// Snapshot is an immutable copy of what an export needs.
type Snapshot struct {
	Image      image.Image
	Name       string
	Circle     selection.Circle
	Background compositor.Background
}

type Session struct {
	id string

	mu       sync.Mutex
	img      *source.Image
	ctrl     *selection.Controller
	bg       compositor.Background
	lastUsed time.Time
}

// New returns an empty session with the given default background.
func New(id string, bg compositor.Background) *Session {
	return &Session{id: id, bg: compositor.ParseBackground(string(bg)), lastUsed: time.Now()}
}

func (s *Session) ID() string { return s.id }

// Load replaces the source image and drops all selection state.
func (s *Session) Load(img *source.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
	s.ctrl = selection.NewController(img.Width, img.Height)
	s.touch()
}

// Image returns the current source, or nil.
func (s *Session) Image() *source.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Dispatch feeds an image-space event to the controller and reports
// whether the overlay needs a redraw.
func (s *Session) Dispatch(ev selection.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return false, fmt.Errorf("%w: no image loaded", apperr.ErrMissingInput)
	}
	s.touch()
	return s.ctrl.Dispatch(ev), nil
}

// Pointer converts a surface position through vp and dispatches it. The
// viewport's image size is taken from the loaded image; mapping and
// dispatch happen under one lock so a concurrent Load cannot split them.
func (s *Session) Pointer(kind selection.EventKind, vp selection.Viewport, x, y float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil || s.ctrl == nil {
		return false, fmt.Errorf("%w: no image loaded", apperr.ErrMissingInput)
	}
	vp.ImageWidth, vp.ImageHeight = s.img.Width, s.img.Height
	s.touch()
	return s.ctrl.Dispatch(selection.Event{Kind: kind, Point: vp.ToImage(x, y)}), nil
}

// View returns the interaction state and the current circle, if any.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{State: selection.Idle.String()}
	if s.ctrl == nil {
		return v
	}
	v.State = s.ctrl.State().String()
	if c, ok := s.ctrl.Circle(); ok {
		v.Circle = &c
	}
	return v
}

// Selection returns the circle when it has a non-zero radius.
func (s *Session) Selection() (selection.Circle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return selection.Circle{}, false
	}
	return s.ctrl.Selection()
}

// Overlay renders the spotlight for the current selection.
func (s *Session) Overlay() (*image.RGBA, error) {
	s.mu.Lock()
	img, ctrl := s.img, s.ctrl
	var c selection.Circle
	var ok bool
	if ctrl != nil {
		c, ok = ctrl.Selection()
	}
	s.mu.Unlock()
	if img == nil {
		return nil, fmt.Errorf("%w: no image loaded", apperr.ErrMissingInput)
	}
	return overlay.Render(img.Raster, c, ok), nil
}

// Reset clears the selection, keeping the image.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil {
		s.ctrl.Reset()
	}
	s.touch()
}

// Clear drops the image and selection, as after a completed save.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = nil
	s.ctrl = nil
	s.touch()
}

// SetBackground changes the fill used by later exports.
func (s *Session) SetBackground(bg compositor.Background) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bg = compositor.ParseBackground(string(bg))
}

func (s *Session) Background() compositor.Background {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bg
}

// Snapshot captures the image, circle and background for an export.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return Snapshot{}, fmt.Errorf("%w: no image loaded", apperr.ErrMissingInput)
	}
	c, ok := s.ctrl.Selection()
	if !ok {
		return Snapshot{}, apperr.ErrNoSelection
	}
	s.touch()
	return Snapshot{Image: s.img.Raster, Name: s.img.Name, Circle: c, Background: s.bg}, nil
}

// LastUsed is the time of the last mutating call.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() { s.lastUsed = time.Now() }
