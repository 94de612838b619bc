// Package clipboard copies composed thumbnails to the system clipboard.
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var (
	writeMu  sync.Mutex
	initOnce sync.Once
	initErr  error
)

// Init prepares the platform clipboard. Safe to call more than once.
func Init() error {
	initOnce.Do(func() { initErr = clipboard.Init() })
	return initErr
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// WriteImage places PNG bytes on the clipboard as an image.
func WriteImage(data []byte) error {
	if !bytes.HasPrefix(data, pngSignature) {
		return errors.New("clipboard image must be PNG")
	}
	return write(clipboard.FmtImage, data)
}

// WriteText places text on the clipboard.
func WriteText(text string) error {
	return write(clipboard.FmtText, []byte(text))
}

// write is mutex-guarded to prevent corruption under parallel writes.
func write(f clipboard.Format, data []byte) error {
	if err := Init(); err != nil {
		return fmt.Errorf("clipboard unavailable: %w", err)
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(f, data)
	return nil
}
