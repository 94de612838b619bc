// Package server exposes the editor over HTTP: the embedded browser UI, a
// per-tab session API driving the selection controller, and the
// /save-image endpoint that persists finished thumbnails.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/logutil"
	"circle-thumb/src/session"
	"circle-thumb/src/source"
	"circle-thumb/src/store"
	"circle-thumb/src/worker"
)

// Options wires the server's collaborators.
type Options struct {
	Store          store.Persister
	Compositor     *compositor.Compositor
	Pool           *worker.Pool
	Fetcher        *source.Fetcher
	Background     compositor.Background
	SessionTTL     time.Duration
	ExportDeadline time.Duration
	MaxUploadBytes int64
}

type Server struct {
	opts     Options
	registry *Registry
	exporter *session.Exporter
	engine   *gin.Engine
}

// New builds the gin engine and routes.
func New(opts Options) *Server {
	if opts.Compositor == nil {
		opts.Compositor = compositor.New("")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 * 1024 * 1024
	}
	if opts.Fetcher == nil {
		opts.Fetcher = source.NewFetcher(15*time.Second, opts.MaxUploadBytes)
	}

	s := &Server{
		opts:     opts,
		registry: NewRegistry(opts.SessionTTL, opts.Background),
		exporter: &session.Exporter{
			Compositor: opts.Compositor,
			Pool:       opts.Pool,
			Persister:  opts.Store,
			Deadline:   opts.ExportDeadline,
		},
	}

	r := gin.New()
	r.Use(gin.LoggerWithWriter(logutil.Writer()), gin.Recovery())
	r.MaxMultipartMemory = opts.MaxUploadBytes

	r.GET("/", s.handleIndex)
	r.StaticFS("/assets", assetsFS())
	r.GET("/healthz", s.handleHealth)
	r.POST("/save-image", s.limitBody, s.handleSaveImage)

	api := r.Group("/api/sessions")
	api.POST("", s.limitBody, s.handleCreateSession)
	api.GET("/:id/image", s.handleImage)
	api.POST("/:id/pointer", s.handlePointer)
	api.GET("/:id/overlay.png", s.handleOverlay)
	api.POST("/:id/reset", s.handleReset)
	api.POST("/:id/preview", s.handlePreview)
	api.POST("/:id/save", s.handleSave)
	api.DELETE("/:id", s.handleDeleteSession)

	s.engine = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Registry exposes the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) Run(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.registry.RunJanitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Printf("Server running at http://%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// limitBody caps request bodies at the configured upload size.
func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.Len()})
}

// respondError writes the {success:false, error} body with the status for err.
func respondError(c *gin.Context, err error) {
	respondErrorStatus(c, apperr.HTTPStatus(err), err)
}

func respondErrorStatus(c *gin.Context, status int, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		err = fmt.Errorf("%w: upload exceeds %d MB", apperr.ErrMissingInput, tooLarge.Limit/(1024*1024))
	}
	if status >= http.StatusInternalServerError {
		log.Printf("Server: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, store.SaveResponse{Success: false, Error: apperr.Message(err)})
}
