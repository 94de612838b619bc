package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/logutil"
	"circle-thumb/src/selection"
	"circle-thumb/src/session"
	"circle-thumb/src/source"
	"circle-thumb/src/store"
)

type createSessionRequest struct {
	URL string `json:"url"`
}

type pointerRequest struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type pointerResponse struct {
	session.View
	Redraw bool `json:"redraw"`
}

type exportRequest struct {
	Filename   string `json:"filename"`
	Background string `json:"background"`
}

// handleCreateSession loads an image from an uploaded "file" or a JSON
// {url} and opens a session on it.
func (s *Server) handleCreateSession(c *gin.Context) {
	img, err := s.loadImage(c)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if errors.Is(err, apperr.ErrImageTooSmall) {
			status = http.StatusBadRequest
		}
		respondErrorStatus(c, status, err)
		return
	}

	sess, err := s.registry.Create()
	if err != nil {
		respondError(c, err)
		return
	}
	sess.Load(img)
	log.Printf("Server: session %s loaded %dx%d image %s", sess.ID(), img.Width, img.Height, logutil.Sanitize(img.Name))

	c.JSON(http.StatusCreated, gin.H{
		"id":      sess.ID(),
		"width":   img.Width,
		"height":  img.Height,
		"name":    img.Name,
		"message": "Image loaded successfully! Click and drag to select a circular area.",
	})
}

func (s *Server) loadImage(c *gin.Context) (*source.Image, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: Please choose an image file", apperr.ErrMissingInput)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrLoadFailure, err)
		}
		defer f.Close()
		return source.Decode(f, fh.Filename)
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("%w: Please enter an image URL", apperr.ErrMissingInput)
	}
	return s.opts.Fetcher.Fetch(c.Request.Context(), req.URL)
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

// handleImage returns the source raster so the browser can paint it
// without cross-origin restrictions.
func (s *Server) handleImage(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	img := sess.Image()
	if img == nil {
		respondError(c, fmt.Errorf("%w: no image loaded", apperr.ErrMissingInput))
		return
	}
	writePNG(c, img.Raster)
}

func (s *Server) handlePointer(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: invalid pointer event", apperr.ErrMissingInput))
		return
	}
	kind, ok := selection.ParseEventKind(req.Type)
	if !ok {
		respondError(c, fmt.Errorf("%w: unknown pointer event %q", apperr.ErrMissingInput, req.Type))
		return
	}

	vp := selection.Viewport{OriginX: req.Left, OriginY: req.Top, DisplayWidth: req.Width, DisplayHeight: req.Height}
	redraw, err := sess.Pointer(kind, vp, req.X, req.Y)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pointerResponse{View: sess.View(), Redraw: redraw})
}

func (s *Server) handleOverlay(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	img, err := sess.Overlay()
	if err != nil {
		respondError(c, err)
		return
	}
	writePNG(c, img)
}

func (s *Server) handleReset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, pointerResponse{View: sess.View(), Redraw: true})
}

func (s *Server) handlePreview(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req exportRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	sess.SetBackground(compositor.Background(req.Background))

	res, err := s.exporter.Preview(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}
	size := strconv.Itoa(res.Spec.TargetSize)
	c.Header("X-Target-Size", size)
	c.Header("X-Message", fmt.Sprintf("Preview generated at %sx%spx", size, size))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", res.PNG)
}

func (s *Server) handleSave(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req exportRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	sess.SetBackground(compositor.Background(req.Background))

	res, err := s.exporter.Save(c.Request.Context(), sess, req.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"filename":   res.Filename,
		"targetSize": res.Spec.TargetSize,
		"message":    "Image saved successfully as " + res.Filename,
	})
}

// bindOptionalJSON decodes a JSON body into req. An empty body leaves req
// zero; malformed JSON is a MissingInput error.
func bindOptionalJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", apperr.ErrMissingInput, err)
	}
	return nil
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	s.registry.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// handleSaveImage accepts a finished thumbnail as multipart "image" (its
// filename is the suggested name) plus "size".
func (s *Server) handleSaveImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, err)
			return
		}
		respondError(c, fmt.Errorf("%w: No image provided", apperr.ErrMissingInput))
		return
	}
	size, err := strconv.Atoi(strings.TrimSpace(c.PostForm("size")))
	if err != nil {
		respondError(c, fmt.Errorf("%w: size must be 200 or 400", apperr.ErrMissingInput))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err))
		return
	}

	filename, err := s.opts.Store.Save(c.Request.Context(), data, size, fh.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, store.SaveResponse{Success: true, Filename: filename})
}

func writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		respondError(c, fmt.Errorf("failed to encode image as PNG: %w", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
