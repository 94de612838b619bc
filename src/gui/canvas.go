package gui

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"circle-thumb/src/selection"
)

// editorCanvas shows the spotlight frame aspect-fit and forwards primary
// button input as selection events.
type editorCanvas struct {
	widget.BaseWidget

	img *canvas.Image

	mu      sync.Mutex
	actions Actions
	imgW    int
	imgH    int
	moving  bool
	pressed bool
}

var (
	_ desktop.Mouseable  = (*editorCanvas)(nil)
	_ desktop.Hoverable  = (*editorCanvas)(nil)
	_ desktop.Cursorable = (*editorCanvas)(nil)
	_ fyne.Draggable     = (*editorCanvas)(nil)
)

func newEditorCanvas() *editorCanvas {
	c := &editorCanvas{img: &canvas.Image{FillMode: canvas.ImageFillContain, ScaleMode: canvas.ImageScaleSmooth}}
	c.img.SetMinSize(fyne.NewSize(480, 360))
	c.ExtendBaseWidget(c)
	return c
}

func (c *editorCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(c.img)
}

func (c *editorCanvas) bind(a Actions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = a
}

// setFrame replaces the displayed raster; w and h are the source size. A
// nil frame clears the canvas.
func (c *editorCanvas) setFrame(frame image.Image, w, h int) {
	c.mu.Lock()
	c.imgW, c.imgH = w, h
	if frame == nil {
		c.imgW, c.imgH = 0, 0
		c.moving, c.pressed = false, false
	}
	c.mu.Unlock()
	c.img.Image = frame
	c.img.Refresh()
}

func (c *editorCanvas) setMoving(m bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moving = m
}

func (c *editorCanvas) Cursor() desktop.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.imgW == 0:
		return desktop.DefaultCursor
	case c.moving:
		return desktop.PointerCursor
	default:
		return desktop.CrosshairCursor
	}
}

func (c *editorCanvas) send(kind selection.EventKind, pos fyne.Position) {
	c.mu.Lock()
	a, w, h := c.actions, c.imgW, c.imgH
	c.mu.Unlock()
	if a == nil || w == 0 || h == 0 {
		return
	}
	size := c.Size()
	vp := selection.Contain(w, h, float64(size.Width), float64(size.Height))
	a.Pointer(kind, vp, float64(pos.X), float64(pos.Y))
}

func (c *editorCanvas) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	c.mu.Lock()
	c.pressed = true
	c.mu.Unlock()
	c.send(selection.PointerDown, ev.Position)
}

func (c *editorCanvas) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	c.release(ev.Position)
}

func (c *editorCanvas) MouseIn(*desktop.MouseEvent) {}

func (c *editorCanvas) MouseMoved(ev *desktop.MouseEvent) {
	c.send(selection.PointerMove, ev.Position)
}

func (c *editorCanvas) MouseOut() {
	c.mu.Lock()
	pressed := c.pressed
	c.pressed = false
	c.mu.Unlock()
	if pressed {
		c.send(selection.PointerLeave, fyne.Position{})
	}
}

func (c *editorCanvas) Dragged(ev *fyne.DragEvent) {
	c.send(selection.PointerMove, ev.Position)
}

// DragEnd may follow MouseUp for the same gesture; release is idempotent.
func (c *editorCanvas) DragEnd() {
	c.release(fyne.Position{})
}

func (c *editorCanvas) release(pos fyne.Position) {
	c.mu.Lock()
	pressed := c.pressed
	c.pressed = false
	c.mu.Unlock()
	if pressed {
		c.send(selection.PointerUp, pos)
	}
}
