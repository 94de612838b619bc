package eventloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/notice"
	"circle-thumb/src/selection"
	"circle-thumb/src/session"
	"circle-thumb/src/singleinstance"
	"circle-thumb/src/source"
	"circle-thumb/src/store"
	"circle-thumb/src/worker"
)

type fakeView struct {
	mu       sync.Mutex
	images   []*source.Image
	previews []int
	views    []session.View
	raised   int

	notices chan notice.Notice
	cleared chan struct{}
}

func newFakeView() *fakeView {
	return &fakeView{notices: make(chan notice.Notice, 32), cleared: make(chan struct{}, 4)}
}

func (v *fakeView) ShowImage(img *source.Image) {
	v.mu.Lock()
	v.images = append(v.images, img)
	v.mu.Unlock()
	if img == nil {
		v.cleared <- struct{}{}
	}
}

func (v *fakeView) ShowSelection(s session.View) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.views = append(v.views, s)
}

func (v *fakeView) ShowPreview(data []byte, size int) {
	if data == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.previews = append(v.previews, size)
}

func (v *fakeView) Notify(n notice.Notice) { v.notices <- n }
func (v *fakeView) SetBusy(bool)           {}

func (v *fakeView) Raise() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.raised++
}

func (v *fakeView) lastView() session.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.views) == 0 {
		return session.View{}
	}
	return v.views[len(v.views)-1]
}

func (v *fakeView) expect(t *testing.T, kind notice.Kind, substr string) notice.Notice {
	t.Helper()
	select {
	case n := <-v.notices:
		if n.Kind != kind || !strings.Contains(n.Text, substr) {
			t.Fatalf("notice = %v %q, want %v containing %q", n.Kind, n.Text, kind, substr)
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %v notice %q", kind, substr)
	}
	return notice.Notice{}
}

func testImage(t *testing.T, w, h int) *source.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xff})
		}
	}
	src, err := source.New(img, "test")
	if err != nil {
		t.Fatal(err)
	}
	return src
}

type harness struct {
	loop *Loop
	view *fakeView
	dir  string
}

func start(t *testing.T, persister store.Persister, mutate func(*Options)) *harness {
	t.Helper()
	dir := t.TempDir()
	if persister == nil {
		fs, err := store.NewFileStore(dir, store.Overwrite)
		if err != nil {
			t.Fatal(err)
		}
		persister = fs
	}
	pool := worker.New(1)
	t.Cleanup(pool.Close)

	opts := Options{
		Exporter: &session.Exporter{
			Compositor: compositor.New(""),
			Pool:       pool,
			Persister:  persister,
			Deadline:   5 * time.Second,
		},
		OpenFile: func(p string) (*source.Image, error) {
			if p == "missing.png" {
				return nil, fmt.Errorf("%w: failed to open image file", apperr.ErrLoadFailure)
			}
			return testImage(t, 400, 300), nil
		},
		Capture:    func() (*source.Image, error) { return testImage(t, 640, 480), nil },
		Clipboard:  func([]byte) error { return nil },
		ResetDelay: 20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	view := newFakeView()
	loop := New(view, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{loop: loop, view: view, dir: dir}
}

// drag draws a circle in image space; the viewport maps 1:1.
func (h *harness) drag(w, ht int, x0, y0, x1, y1 float64) {
	vp := selection.Viewport{DisplayWidth: float64(w), DisplayHeight: float64(ht)}
	h.loop.Pointer(selection.PointerDown, vp, x0, y0)
	h.loop.Pointer(selection.PointerMove, vp, x1, y1)
	h.loop.Pointer(selection.PointerUp, vp, x1, y1)
}

func TestLoadSelectPreviewSave(t *testing.T) {
	h := start(t, nil, nil)

	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded successfully!")

	h.loop.Preview()
	h.view.expect(t, notice.Error, "Please select a circular area first")

	// Centre (200,150), radius 120: diameter 240 exports at 200.
	h.drag(400, 300, 200, 150, 320, 150)
	h.loop.SetBackground(compositor.Black)
	h.loop.Preview()
	h.view.expect(t, notice.Success, "Preview generated at 200x200px")

	v := h.view.lastView()
	if v.Circle == nil || v.Circle.Radius != 120 || v.State != "idle" {
		t.Fatalf("unexpected view after drag: %+v", v)
	}

	h.loop.Save("")
	h.view.expect(t, notice.Error, "Please enter a filename.")

	h.loop.Save("cat")
	h.view.expect(t, notice.Success, "Image saved successfully as")
	if _, err := os.Stat(filepath.Join(h.dir, "cat.png")); err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}

	select {
	case <-h.view.cleared:
	case <-time.After(5 * time.Second):
		t.Fatal("editor was not cleared after save")
	}
	if h.loop.Session().Image() != nil {
		t.Fatal("session should be empty after the post-save reset")
	}
}

func TestFailedLoadKeepsPreviousImage(t *testing.T) {
	h := start(t, nil, nil)
	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded")
	h.drag(400, 300, 200, 150, 300, 150)

	h.loop.LoadFile("missing.png")
	h.view.expect(t, notice.Error, "failed to open image file")

	if img := h.loop.Session().Image(); img == nil || img.Width != 400 {
		t.Fatalf("previous image should remain, got %+v", img)
	}
	if _, ok := h.loop.Session().Selection(); !ok {
		t.Fatal("previous selection should remain")
	}
}

func TestHotkeyCapturesScreen(t *testing.T) {
	h := start(t, nil, nil)
	h.loop.Hotkey()
	h.view.expect(t, notice.Success, "Image loaded")
	if img := h.loop.Session().Image(); img == nil || img.Width != 640 {
		t.Fatalf("expected screen capture to be loaded, got %+v", img)
	}
}

func TestResetClearsSelection(t *testing.T) {
	h := start(t, nil, nil)
	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded")
	h.drag(400, 300, 200, 150, 300, 150)
	h.loop.Reset()
	h.loop.Preview()
	h.view.expect(t, notice.Error, "Please select a circular area first")
	if h.loop.Session().Image() == nil {
		t.Fatal("reset must keep the image")
	}
}

type blockingStore struct {
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, data []byte, size int, name string) (string, error) {
	select {
	case <-b.release:
		return "", fmt.Errorf("%w: disk full", apperr.ErrPersistenceFailure)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestExportWhileBusy(t *testing.T) {
	bs := &blockingStore{release: make(chan struct{})}
	h := start(t, bs, nil)
	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded")
	h.drag(400, 300, 200, 150, 320, 150)

	h.loop.Save("cat")
	h.loop.Preview()
	h.view.expect(t, notice.Error, "Busy, please retry")

	close(bs.release)
	h.view.expect(t, notice.Error, "Failed to save image: disk full")

	if _, ok := h.loop.Session().Selection(); !ok {
		t.Fatal("a failed save must keep the selection")
	}
}

func TestCopyToClipboard(t *testing.T) {
	var mu sync.Mutex
	var copied []byte
	h := start(t, nil, func(o *Options) {
		o.Clipboard = func(b []byte) error {
			mu.Lock()
			defer mu.Unlock()
			copied = b
			return nil
		}
	})
	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded")
	h.drag(400, 300, 200, 150, 320, 150)
	h.loop.Copy()
	h.view.expect(t, notice.Success, "copied to clipboard (200x200px)")

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(string(copied), "\x89PNG") {
		t.Fatal("clipboard should receive PNG bytes")
	}
}

func TestClipboardFailure(t *testing.T) {
	h := start(t, nil, func(o *Options) {
		o.Clipboard = func([]byte) error { return errors.New("no display") }
	})
	h.loop.LoadFile("cat.png")
	h.view.expect(t, notice.Success, "Image loaded")
	h.drag(400, 300, 200, 150, 320, 150)
	h.loop.Copy()
	h.view.expect(t, notice.Error, "Failed to copy to clipboard: no display")
}

type fakeConn struct {
	req    singleinstance.Request
	answer chan string
}

func (c *fakeConn) Request() singleinstance.Request { return c.req }
func (c *fakeConn) RespondSuccess() error           { c.answer <- "SUCCESS"; return nil }
func (c *fakeConn) RespondError(msg string) error   { c.answer <- "ERROR " + msg; return nil }
func (c *fakeConn) Close() error                    { return nil }

type fakeInstance struct {
	conns chan singleinstance.Conn
}

func (f *fakeInstance) Start(context.Context) error { return nil }
func (f *fakeInstance) Port() int                   { return 0 }
func (f *fakeInstance) Close() error                { return nil }

func (f *fakeInstance) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case c := <-f.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type closeTrackingConn struct {
	fakeConn
	closed chan struct{}
}

func (c *closeTrackingConn) Close() error {
	close(c.closed)
	return nil
}

// stubbornInstance hands out whatever is pushed, even after cancellation.
type stubbornInstance struct {
	conns chan singleinstance.Conn
}

func (s *stubbornInstance) Start(context.Context) error { return nil }
func (s *stubbornInstance) Port() int                   { return 0 }
func (s *stubbornInstance) Close() error                { return nil }

func (s *stubbornInstance) Next(context.Context) (singleinstance.Conn, error) {
	return <-s.conns, nil
}

func TestConnAfterShutdownIsClosed(t *testing.T) {
	inst := &stubbornInstance{conns: make(chan singleinstance.Conn)}
	view := newFakeView()
	loop := New(view, Options{
		Exporter: &session.Exporter{Compositor: compositor.New("")},
		Instance: inst,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	cancel()
	<-done

	late := &closeTrackingConn{closed: make(chan struct{})}
	select {
	case inst.conns <- late:
	case <-time.After(5 * time.Second):
		t.Fatal("forwarder stopped accepting connections")
	}
	select {
	case <-late.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("a connection accepted after shutdown must be closed, not queued")
	}
}

func TestDelegatedOpen(t *testing.T) {
	inst := &fakeInstance{conns: make(chan singleinstance.Conn)}
	h := start(t, nil, func(o *Options) { o.Instance = inst })

	ok := &fakeConn{req: singleinstance.Request{Path: "cat.png"}, answer: make(chan string, 1)}
	inst.conns <- ok
	if got := <-ok.answer; got != "SUCCESS" {
		t.Fatalf("answer = %q", got)
	}
	h.view.expect(t, notice.Success, "Image loaded")

	bad := &fakeConn{req: singleinstance.Request{Path: "missing.png"}, answer: make(chan string, 1)}
	inst.conns <- bad
	if got := <-bad.answer; !strings.HasPrefix(got, "ERROR failed to open image file") {
		t.Fatalf("answer = %q", got)
	}

	focus := &fakeConn{answer: make(chan string, 1)}
	inst.conns <- focus
	if got := <-focus.answer; got != "SUCCESS" {
		t.Fatalf("focus answer = %q", got)
	}
	h.view.mu.Lock()
	defer h.view.mu.Unlock()
	if h.view.raised < 3 {
		t.Fatalf("window should be raised for each request, raised=%d", h.view.raised)
	}
}
