// Package gui is the fyne desktop editor: load an image, draw and move
// the circle, then preview, save or copy the thumbnail.
package gui

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"circle-thumb/src/compositor"
	"circle-thumb/src/notice"
	"circle-thumb/src/overlay"
	"circle-thumb/src/selection"
	"circle-thumb/src/session"
	"circle-thumb/src/source"
)

const Title = "Circle Thumbnail Creator"

// Actions receives user input. *eventloop.Loop implements it.
type Actions interface {
	Pointer(kind selection.EventKind, vp selection.Viewport, x, y float64)
	LoadURL(rawURL string)
	LoadFile(path string)
	CaptureScreen()
	Reset()
	SetBackground(bg compositor.Background)
	Preview()
	Save(name string)
	Copy()
}

// Editor is the main window. Its View methods may be called from any
// goroutine.
type Editor struct {
	win fyne.Window

	urlEntry   *widget.Entry
	nameEntry  *widget.Entry
	bgRadio    *widget.RadioGroup
	canvas     *editorCanvas
	previewImg *canvas.Image
	previewBox *fyne.Container
	successMsg *widget.Label
	errorMsg   *widget.Label
	exportBtns []*widget.Button
	previewBtn *widget.Button
	saveBtn    *widget.Button
	copyBtn    *widget.Button
	resetBtn   *widget.Button

	banner *notice.Banner

	mu      sync.Mutex
	actions Actions
	src     *source.Image
}

// NewEditor builds the window; nothing is shown until Show.
func NewEditor(a fyne.App, bg compositor.Background) *Editor {
	e := &Editor{win: a.NewWindow(Title)}

	e.urlEntry = widget.NewEntry()
	e.urlEntry.SetPlaceHolder("Enter image URL")
	e.urlEntry.OnSubmitted = func(s string) { e.do(func(a Actions) { a.LoadURL(s) }) }
	loadBtn := widget.NewButtonWithIcon("Load from URL", theme.DownloadIcon(), func() {
		text := e.urlEntry.Text
		e.do(func(a Actions) { a.LoadURL(text) })
	})
	openBtn := widget.NewButtonWithIcon("Open file", theme.FolderOpenIcon(), e.openFile)
	captureBtn := widget.NewButtonWithIcon("Capture screen", theme.ViewFullScreenIcon(), func() {
		e.do(func(a Actions) { a.CaptureScreen() })
	})

	e.canvas = newEditorCanvas()

	e.bgRadio = widget.NewRadioGroup([]string{"White", "Black"}, func(s string) {
		e.do(func(a Actions) { a.SetBackground(compositor.ParseBackground(s)) })
	})
	e.bgRadio.Horizontal = true
	e.bgRadio.Required = true
	if bg == compositor.Black {
		e.bgRadio.SetSelected("Black")
	} else {
		e.bgRadio.SetSelected("White")
	}

	e.nameEntry = widget.NewEntry()
	e.nameEntry.SetPlaceHolder("Filename (without .png)")

	e.previewBtn = widget.NewButton("Preview", func() { e.do(func(a Actions) { a.Preview() }) })
	e.saveBtn = widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), func() {
		name := strings.TrimSpace(e.nameEntry.Text)
		e.do(func(a Actions) { a.Save(name) })
	})
	e.copyBtn = widget.NewButtonWithIcon("Copy", theme.ContentCopyIcon(), func() { e.do(func(a Actions) { a.Copy() }) })
	e.resetBtn = widget.NewButton("Reset Selection", func() { e.do(func(a Actions) { a.Reset() }) })
	e.exportBtns = []*widget.Button{e.previewBtn, e.saveBtn, e.copyBtn}

	e.previewImg = &canvas.Image{FillMode: canvas.ImageFillContain}
	e.previewImg.SetMinSize(fyne.NewSize(200, 200))
	e.previewBox = container.NewVBox(widget.NewLabel("Preview"), e.previewImg)
	e.previewBox.Hide()

	e.successMsg = widget.NewLabel("")
	e.successMsg.Importance = widget.SuccessImportance
	e.successMsg.Wrapping = fyne.TextWrapWord
	e.successMsg.Hide()
	e.errorMsg = widget.NewLabel("")
	e.errorMsg.Importance = widget.DangerImportance
	e.errorMsg.Wrapping = fyne.TextWrapWord
	e.errorMsg.Hide()
	e.banner = notice.NewBanner(bannerSink{e})

	top := container.NewVBox(
		e.errorMsg,
		e.successMsg,
		container.NewBorder(nil, nil, nil, loadBtn, e.urlEntry),
		container.NewHBox(openBtn, captureBtn),
	)
	controls := container.NewVBox(
		widget.NewLabel("Click and drag to draw a circle. Drag inside the circle to move it."),
		widget.NewCard("", "Background", e.bgRadio),
		e.nameEntry,
		container.NewHBox(e.previewBtn, e.saveBtn, e.copyBtn, e.resetBtn),
		e.previewBox,
	)
	e.win.SetContent(container.NewBorder(top, nil, nil, container.NewVScroll(controls), e.canvas))
	e.win.Resize(fyne.NewSize(1100, 720))
	e.win.SetMaster()
	return e
}

// Bind routes user input to a.
func (e *Editor) Bind(a Actions) {
	e.mu.Lock()
	e.actions = a
	e.mu.Unlock()
	e.canvas.bind(a)
}

func (e *Editor) Window() fyne.Window { return e.win }

func (e *Editor) do(fn func(Actions)) {
	e.mu.Lock()
	a := e.actions
	e.mu.Unlock()
	if a != nil {
		fn(a)
	}
}

func (e *Editor) openFile() {
	d := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			e.Notify(notice.Failed(err))
			return
		}
		if r == nil {
			return
		}
		path := r.URI().Path()
		_ = r.Close()
		e.do(func(a Actions) { a.LoadFile(path) })
	}, e.win)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tif", ".tiff"}))
	d.Show()
}

func (e *Editor) source() *source.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// ShowImage displays a freshly loaded source, or clears the editor like a
// page reload when img is nil.
func (e *Editor) ShowImage(img *source.Image) {
	e.mu.Lock()
	e.src = img
	e.mu.Unlock()
	fyne.Do(func() {
		if img == nil {
			e.canvas.setFrame(nil, 0, 0)
			e.urlEntry.SetText("")
			e.nameEntry.SetText("")
			return
		}
		e.canvas.setFrame(img.Raster, img.Width, img.Height)
	})
}

func (e *Editor) ShowSelection(v session.View) {
	src := e.source()
	if src == nil {
		return
	}
	var c selection.Circle
	ok := v.Circle != nil && v.Circle.Radius > 0
	if ok {
		c = *v.Circle
	}
	frame := overlay.Render(src.Raster, c, ok)
	moving := v.State == selection.Moving.String()
	fyne.Do(func() {
		e.canvas.setFrame(frame, src.Width, src.Height)
		e.canvas.setMoving(moving)
	})
}

func (e *Editor) ShowPreview(data []byte, size int) {
	fyne.Do(func() {
		if data == nil {
			e.previewBox.Hide()
			e.previewImg.Resource = nil
			e.previewImg.Image = nil
			return
		}
		e.previewImg.Image = nil
		e.previewImg.Resource = fyne.NewStaticResource("preview.png", data)
		e.previewImg.SetMinSize(fyne.NewSize(float32(size), float32(size)))
		e.previewImg.Refresh()
		e.previewBox.Show()
	})
}

func (e *Editor) Notify(n notice.Notice) { e.banner.Post(n) }

func (e *Editor) SetBusy(busy bool) {
	fyne.Do(func() {
		for _, b := range e.exportBtns {
			if busy {
				b.Disable()
			} else {
				b.Enable()
			}
		}
	})
}

func (e *Editor) Raise() {
	fyne.Do(func() {
		e.win.Show()
		e.win.RequestFocus()
	})
}

// ShowAndRun shows the window and runs the fyne main loop.
func (e *Editor) ShowAndRun() { e.win.ShowAndRun() }

type bannerSink struct{ e *Editor }

func (s bannerSink) label(k notice.Kind) *widget.Label {
	if k == notice.Error {
		return s.e.errorMsg
	}
	return s.e.successMsg
}

func (s bannerSink) Show(n notice.Notice) {
	fyne.Do(func() {
		l := s.label(n.Kind)
		l.SetText(n.Text)
		l.Show()
	})
}

func (s bannerSink) Hide(k notice.Kind) {
	fyne.Do(func() { s.label(k).Hide() })
}
