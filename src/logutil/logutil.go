package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

const (
	logFileName  = "circle_thumb.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3

	// maxLoggedLen caps user-provided strings (URLs, filenames) in log lines.
	maxLoggedLen = 200
)

var (
	mu      sync.Mutex
	current io.Writer = os.Stderr
)

// Setup enables file logging with basic size-based rotation (10MB, max 3 files).
// When disabled, logs go to fallback; a nil fallback discards them, which
// keeps the desktop editor's stdout clean.
func Setup(enableFileLogging bool, fallback io.Writer) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		if fallback == nil {
			fallback = io.Discard
		}
		setOutput(fallback)
		return
	}
	rotateIfNeeded()
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return
	}
	setOutput(&rotatingWriter{f: f})
}

// Writer returns the destination configured by Setup so other loggers
// (gin's request log) share it.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return current
}

func setOutput(w io.Writer) {
	mu.Lock()
	current = w
	mu.Unlock()
	log.SetOutput(w)
}

type rotatingWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		rotate()
		nf, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func rotateIfNeeded() {
	if st, err := os.Stat(logFileName); err == nil && st.Size() > maxSizeBytes {
		rotate()
	}
}

// rotate shifts archives .1 -> .2 -> .3 (oldest discarded) and moves the
// current file to .1.
func rotate() {
	_ = os.Remove(archiveName(maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(i), archiveName(i+1))
	}
	_ = os.Rename(logFileName, archiveName(1))
}

func archiveName(n int) string { return filepath.Join(".", fmt.Sprintf("%s.%d", logFileName, n)) }

// Sanitize makes a user-provided string safe for a single log line:
// control characters are dropped and long values are truncated.
func Sanitize(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if n == maxLoggedLen {
			b.WriteString("...")
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
