// Package source acquires the raster the user selects from: a remote URL,
// a local file, uploaded bytes or a screen capture. Every path ends in the
// same size check, so nothing smaller than MinDimension reaches a session.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"circle-thumb/src/apperr"
	"circle-thumb/src/logutil"
	"circle-thumb/src/screenshot"
)

// MinDimension is the smallest accepted width and height.
const MinDimension = 200

// DefaultMaxPixels bounds the decoded raster, about 8000x6000.
const DefaultMaxPixels = 50_000_000

var maxPixels atomic.Int64

// SetMaxPixels changes the decode cap; n <= 0 restores DefaultMaxPixels.
func SetMaxPixels(n int64) { maxPixels.Store(n) }

// MaxPixels is the current decode cap.
func MaxPixels() int64 {
	if n := maxPixels.Load(); n > 0 {
		return n
	}
	return DefaultMaxPixels
}

// Image is an immutable source raster.
type Image struct {
	Raster image.Image
	Width  int
	Height int
	// Name is a filename hint derived from where the image came from.
	Name string
}

// New validates img and wraps it.
func New(img image.Image, name string) (*Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image data", apperr.ErrLoadFailure)
	}
	b := img.Bounds()
	if b.Dx() < MinDimension || b.Dy() < MinDimension {
		return nil, fmt.Errorf("%w: Image is too small. Minimum dimensions are %dx%d pixels. Your image is %dx%d.",
			apperr.ErrImageTooSmall, MinDimension, MinDimension, b.Dx(), b.Dy())
	}
	return &Image{Raster: img, Width: b.Dx(), Height: b.Dy(), Name: name}, nil
}

// Decode reads an encoded image (PNG, JPEG, GIF, BMP, WebP, TIFF). EXIF
// orientation is applied so the raster matches what a browser would show.
// The header is checked against MaxPixels before any pixel is allocated.
func Decode(r io.Reader, name string) (*Image, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", apperr.ErrLoadFailure, err)
	}
	if limit := MaxPixels(); int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: Image is too large. Maximum is %d megapixels. Your image is %dx%d.",
			apperr.ErrImageTooLarge, limit/1_000_000, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(io.MultiReader(&head, r), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", apperr.ErrLoadFailure, err)
	}
	return New(img, name)
}

// LoadFile decodes the image at path.
func LoadFile(p string) (*Image, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil, fmt.Errorf("%w: Please choose an image file", apperr.ErrMissingInput)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open image file: %v", apperr.ErrLoadFailure, err)
	}
	defer f.Close()
	log.Printf("Source: loading file %s", logutil.Sanitize(p))
	return Decode(f, filepath.Base(p))
}

// Capture grabs the whole virtual screen.
func Capture() (*Image, error) {
	img, err := screenshot.Capture()
	if err != nil {
		return nil, fmt.Errorf("%w: screen capture failed: %v", apperr.ErrLoadFailure, err)
	}
	return New(img, "screen")
}

// Fetcher downloads images over HTTP(S). The fetch happens server-side, so
// no cross-origin restrictions apply.
type Fetcher struct {
	HTTP     *http.Client
	MaxBytes int64
}

// NewFetcher returns a Fetcher with the given timeout and size cap.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: timeout}, MaxBytes: maxBytes}
}

var errTooLarge = errors.New("image exceeds size limit")

// Fetch downloads and decodes the image at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: Please enter an image URL", apperr.ErrMissingInput)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: Please enter a valid http(s) image URL", apperr.ErrMissingInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrLoadFailure, err)
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	log.Printf("Source: fetching %s", logutil.Sanitize(u.Redacted()))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: Failed to load image from URL: %v", apperr.ErrLoadFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: Failed to load image from URL: %s", apperr.ErrLoadFailure, resp.Status)
	}

	body, err := readCapped(resp.Body, f.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: Failed to load image from URL: %v", apperr.ErrLoadFailure, err)
	}
	return Decode(bytes.NewReader(body), nameFromURL(u))
}

// readCapped reads r fully, failing once more than max bytes arrive.
// max <= 0 means unlimited.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, errTooLarge
	}
	return body, nil
}

func nameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Hostname()
	}
	return base
}
