// Package eventloop is the desktop editor's single-threaded coordinator.
// Pointer input, loads, exports, hotkey presses and delegated OPEN
// requests are all serialized through Run, so the session and the view
// only ever change on one goroutine.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"circle-thumb/src/apperr"
	"circle-thumb/src/clipboard"
	"circle-thumb/src/compositor"
	"circle-thumb/src/logutil"
	"circle-thumb/src/notice"
	"circle-thumb/src/selection"
	"circle-thumb/src/session"
	"circle-thumb/src/singleinstance"
	"circle-thumb/src/source"
	"circle-thumb/src/worker"
)

const loadedMessage = "Image loaded successfully! Click and drag to select a circular area."

// View is the editor surface driven by the loop. Methods are called from
// the loop goroutine; implementations marshal onto their UI thread.
type View interface {
	// ShowImage displays a new source; nil clears the canvas.
	ShowImage(img *source.Image)
	ShowSelection(v session.View)
	// ShowPreview displays a composed thumbnail; nil data hides it.
	ShowPreview(data []byte, size int)
	Notify(n notice.Notice)
	SetBusy(busy bool)
	// Raise brings the window to the front.
	Raise()
}

// Options wires the loop's collaborators. Zero-valued hooks fall back to
// the real screen, file system and clipboard.
type Options struct {
	Exporter   *session.Exporter
	Fetcher    *source.Fetcher
	Background compositor.Background
	// Instance, when set, receives OPEN requests from later launches.
	Instance singleinstance.Server

	Capture    func() (*source.Image, error)
	OpenFile   func(path string) (*source.Image, error)
	Clipboard  func(png []byte) error
	ResetDelay time.Duration
}

type exportKind int

const (
	exportPreview exportKind = iota
	exportSave
	exportCopy
)

type cmdKind int

const (
	cmdPointer cmdKind = iota
	cmdReset
	cmdClear
	cmdBackground
	cmdExport
)

// command is one user input. Pointer events share the queue with button
// actions so a click on Preview is handled after the drag before it.
type command struct {
	kind   cmdKind
	ptr    pointerEvent
	export exportKind
	name   string
	bg     compositor.Background
	gen    int
}

type pointerEvent struct {
	kind selection.EventKind
	vp   selection.Viewport
	x, y float64
}

type loadRequest struct {
	desc string
	load func(ctx context.Context) (*source.Image, error)
	conn singleinstance.Conn
}

type loadResult struct {
	req loadRequest
	img *source.Image
	err error
}

type result struct {
	kind   exportKind
	res    worker.Result
	err    error
	cancel context.CancelFunc
}

type Loop struct {
	opts Options
	view View
	sess *session.Session

	busy    bool
	loading bool
	gen     int
	state   string

	cmds     chan command
	loadReqs chan loadRequest
	loads    chan loadResult
	results  chan result
	hotkeyCh chan struct{}
}

// New creates a loop bound to view. Exporter must be set.
func New(view View, opts Options) *Loop {
	if opts.Exporter == nil {
		panic("eventloop: Exporter is required")
	}
	if opts.Fetcher == nil {
		opts.Fetcher = source.NewFetcher(15*time.Second, 20*1024*1024)
	}
	if opts.Capture == nil {
		opts.Capture = source.Capture
	}
	if opts.OpenFile == nil {
		opts.OpenFile = source.LoadFile
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteImage
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = 1500 * time.Millisecond
	}
	return &Loop{
		opts:     opts,
		view:     view,
		sess:     session.New("desktop", opts.Background),
		state:    selection.Idle.String(),
		cmds:     make(chan command, 256),
		loadReqs: make(chan loadRequest, 4),
		loads:    make(chan loadResult, 1),
		results:  make(chan result, 1),
		hotkeyCh: make(chan struct{}, 4),
	}
}

// Session exposes the editing session for read-only inspection.
func (l *Loop) Session() *session.Session { return l.sess }

// Pointer posts a surface-space pointer event. Moves are dropped when the
// queue is saturated; the next move supersedes them anyway.
func (l *Loop) Pointer(kind selection.EventKind, vp selection.Viewport, x, y float64) {
	select {
	case l.cmds <- command{kind: cmdPointer, ptr: pointerEvent{kind: kind, vp: vp, x: x, y: y}}:
	default:
		if kind != selection.PointerMove {
			log.Printf("Eventloop: input queue full, dropped pointer event %v", kind)
		}
	}
}

// LoadURL fetches an image from a remote URL.
func (l *Loop) LoadURL(rawURL string) {
	l.postLoad(loadRequest{desc: "url " + logutil.Sanitize(rawURL), load: func(ctx context.Context) (*source.Image, error) {
		return l.opts.Fetcher.Fetch(ctx, rawURL)
	}})
}

// LoadFile decodes an image from disk.
func (l *Loop) LoadFile(path string) {
	l.postLoad(loadRequest{desc: "file " + logutil.Sanitize(path), load: func(context.Context) (*source.Image, error) {
		return l.opts.OpenFile(path)
	}})
}

// CaptureScreen loads a capture of the virtual screen.
func (l *Loop) CaptureScreen() {
	l.postLoad(loadRequest{desc: "screen capture", load: func(context.Context) (*source.Image, error) {
		return l.opts.Capture()
	}})
}

// Hotkey is the global hotkey callback; presses beyond the queue are dropped.
func (l *Loop) Hotkey() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

func (l *Loop) Reset() { l.post(command{kind: cmdReset}) }

func (l *Loop) SetBackground(bg compositor.Background) {
	l.post(command{kind: cmdBackground, bg: bg})
}

func (l *Loop) Preview() { l.post(command{kind: cmdExport, export: exportPreview}) }

func (l *Loop) Save(name string) { l.post(command{kind: cmdExport, export: exportSave, name: name}) }

// Copy composes the selection and places the PNG on the clipboard.
func (l *Loop) Copy() { l.post(command{kind: cmdExport, export: exportCopy}) }

func (l *Loop) post(c command) {
	select {
	case l.cmds <- c:
	default:
		log.Printf("Eventloop: input queue full, dropped command %d", c.kind)
	}
}

func (l *Loop) postLoad(r loadRequest) {
	select {
	case l.loadReqs <- r:
	default:
		if r.conn != nil {
			_ = r.conn.RespondError(apperr.Message(apperr.ErrBusy))
			_ = r.conn.Close()
		}
		log.Printf("Eventloop: load queue full, dropped %s", r.desc)
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	var reqCh chan singleinstance.Conn
	if l.opts.Instance != nil {
		reqCh = make(chan singleinstance.Conn, 4)
		go func() {
			for {
				conn, err := l.opts.Instance.Next(ctx)
				if err != nil {
					close(reqCh)
					return
				}
				if ctx.Err() != nil {
					_ = conn.Close()
					return
				}
				select {
				case reqCh <- conn:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-l.cmds:
			l.handleCommand(ctx, c)
		case r := <-l.loadReqs:
			l.startLoad(ctx, r)
		case res := <-l.loads:
			l.handleLoad(res)
		case res := <-l.results:
			l.handleResult(res)
		case <-l.hotkeyCh:
			log.Printf("Eventloop: hotkey, capturing screen")
			l.view.Raise()
			l.startLoad(ctx, loadRequest{desc: "screen capture", load: func(context.Context) (*source.Image, error) {
				return l.opts.Capture()
			}})
		case conn, ok := <-reqCh:
			if !ok {
				reqCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	path := conn.Request().Path
	l.view.Raise()
	if path == "" {
		_ = conn.RespondSuccess()
		_ = conn.Close()
		return
	}
	log.Printf("Eventloop: delegated open of %s", logutil.Sanitize(path))
	l.startLoad(ctx, loadRequest{desc: "file " + logutil.Sanitize(path), conn: conn, load: func(context.Context) (*source.Image, error) {
		return l.opts.OpenFile(path)
	}})
}

func (l *Loop) handlePointer(ev pointerEvent) {
	redraw, err := l.sess.Pointer(ev.kind, ev.vp, ev.x, ev.y)
	if err != nil {
		// No image loaded yet.
		return
	}
	v := l.sess.View()
	if redraw || v.State != l.state {
		l.state = v.State
		l.view.ShowSelection(v)
	}
}

func (l *Loop) handleCommand(ctx context.Context, c command) {
	switch c.kind {
	case cmdPointer:
		l.handlePointer(c.ptr)
	case cmdReset:
		l.sess.Reset()
		l.showSelection()
		l.view.ShowPreview(nil, 0)
	case cmdClear:
		if c.gen != l.gen {
			// A newer image replaced the one that was saved.
			return
		}
		l.sess.Clear()
		l.view.ShowImage(nil)
		l.showSelection()
		l.view.ShowPreview(nil, 0)
	case cmdBackground:
		l.sess.SetBackground(c.bg)
	case cmdExport:
		l.startExport(ctx, c.export, c.name)
	}
}

func (l *Loop) showSelection() {
	v := l.sess.View()
	l.state = v.State
	l.view.ShowSelection(v)
}

func (l *Loop) startLoad(ctx context.Context, r loadRequest) {
	if l.loading {
		l.view.Notify(notice.Failed(apperr.ErrBusy))
		if r.conn != nil {
			_ = r.conn.RespondError(apperr.Message(apperr.ErrBusy))
			_ = r.conn.Close()
		}
		return
	}
	l.loading = true
	log.Printf("Eventloop: loading %s", r.desc)
	go func() {
		img, err := r.load(ctx)
		select {
		case l.loads <- loadResult{req: r, img: img, err: err}:
		case <-ctx.Done():
			if r.conn != nil {
				_ = r.conn.Close()
			}
		}
	}()
}

// handleLoad swaps in a loaded image. A failed load leaves the previous
// image and selection untouched.
func (l *Loop) handleLoad(res loadResult) {
	l.loading = false
	conn := res.req.conn
	if conn != nil {
		defer conn.Close()
	}
	if res.err != nil {
		log.Printf("Eventloop: load of %s failed: %v", res.req.desc, res.err)
		l.view.Notify(notice.Failed(res.err))
		if conn != nil {
			_ = conn.RespondError(apperr.Message(res.err))
		}
		return
	}

	l.gen++
	l.sess.Load(res.img)
	l.view.ShowImage(res.img)
	l.showSelection()
	l.view.ShowPreview(nil, 0)
	l.view.Notify(notice.Succeeded(loadedMessage))
	log.Printf("Eventloop: loaded %dx%d image %s", res.img.Width, res.img.Height, logutil.Sanitize(res.img.Name))
	if conn != nil {
		_ = conn.RespondSuccess()
	}
}

func (l *Loop) setBusy(b bool) {
	l.busy = b
	l.view.SetBusy(b)
}

func (l *Loop) startExport(ctx context.Context, kind exportKind, name string) {
	if l.busy {
		l.view.Notify(notice.Failed(apperr.ErrBusy))
		return
	}

	exp := l.opts.Exporter
	var task worker.Task
	var err error
	if kind == exportSave {
		task, err = exp.PrepareSave(l.sess, name)
	} else {
		task, err = exp.PreparePreview(l.sess)
	}
	if err != nil {
		l.view.Notify(notice.Failed(err))
		return
	}

	jobCtx, cancel := exp.JobContext(ctx)
	if exp.Pool == nil {
		l.setBusy(true)
		go func() {
			res, err := task(jobCtx)
			l.deliver(ctx, result{kind: kind, res: res, err: err, cancel: cancel})
		}()
		return
	}

	l.setBusy(true)
	submitted := exp.Pool.Submit(jobCtx, task, func(res worker.Result, err error) {
		l.deliver(ctx, result{kind: kind, res: res, err: err, cancel: cancel})
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		l.view.Notify(notice.Failed(apperr.ErrBusy))
	}
}

func (l *Loop) deliver(ctx context.Context, r result) {
	select {
	case l.results <- r:
	case <-ctx.Done():
		r.cancel()
	}
}

func (l *Loop) handleResult(r result) {
	defer func() {
		l.setBusy(false)
		r.cancel()
	}()

	if r.err != nil {
		log.Printf("Eventloop: export failed: %v", r.err)
		l.view.Notify(notice.Notice{Kind: notice.Error, Text: exportFailureText(r.kind, r.err)})
		return
	}

	size := r.res.Spec.TargetSize
	switch r.kind {
	case exportPreview:
		l.view.ShowPreview(r.res.PNG, size)
		l.view.Notify(notice.Succeeded(fmt.Sprintf("Preview generated at %dx%dpx", size, size)))
	case exportCopy:
		if err := l.opts.Clipboard(r.res.PNG); err != nil {
			log.Printf("Eventloop: clipboard write failed: %v", err)
			l.view.Notify(notice.Notice{Kind: notice.Error, Text: "Failed to copy to clipboard: " + err.Error()})
			return
		}
		l.view.Notify(notice.Succeeded(fmt.Sprintf("Thumbnail copied to clipboard (%dx%dpx)", size, size)))
	case exportSave:
		l.view.Notify(notice.Succeeded("Image saved successfully as " + r.res.Filename))
		gen := l.gen
		time.AfterFunc(l.opts.ResetDelay, func() {
			l.post(command{kind: cmdClear, gen: gen})
		})
	}
}

func exportFailureText(kind exportKind, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Export timed out, please retry"
	}
	msg := apperr.Message(err)
	if kind == exportSave && errors.Is(err, apperr.ErrPersistenceFailure) {
		return "Failed to save image: " + msg
	}
	return msg
}
