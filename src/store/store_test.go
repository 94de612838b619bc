package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"circle-thumb/src/apperr"
)

func thumb(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, size, size))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"cat", "cat", false},
		{"cat.png", "cat", false},
		{"cat.PNG", "cat", false},
		{"cat.png.png", "cat.png", false},
		{"cat.jpg", "cat.jpg", false},
		{"../../etc/passwd", "passwd", false},
		{`..\..\evil.png`, "evil", false},
		{"  spaced  ", "spaced", false},
		{"", "", true},
		{".png", "", true},
		{"..", "", true},
		{"dir/", "dir", false},
	}
	for _, tt := range tests {
		got, err := NormalizeName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, apperr.ErrMissingInput) {
			t.Errorf("NormalizeName(%q) error should be ErrMissingInput, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePNG(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		size int
		ok   bool
	}{
		{"200", thumb(t, 200), 200, true},
		{"400", thumb(t, 400), 400, true},
		{"bad size", thumb(t, 300), 300, false},
		{"size mismatch", thumb(t, 200), 400, false},
		{"empty", nil, 200, false},
		{"not png", []byte("GIF89a........"), 200, false},
		{"truncated", thumb(t, 200)[:12], 200, false},
	}
	for _, tt := range tests {
		err := ValidatePNG(tt.data, tt.size)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, apperr.ErrMissingInput) {
			t.Errorf("%s: expected ErrMissingInput, got %v", tt.name, err)
		}
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "thumbnails")
	s, err := NewFileStore(dir, Overwrite)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("directory not created: %v", err)
	}

	first := thumb(t, 200)
	name, err := s.Save(context.Background(), first, 200, "cat.png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != filepath.ToSlash(dir)+"/cat.png" {
		t.Fatalf("unexpected filename %q", name)
	}

	second := thumb(t, 400)
	if _, err := s.Save(context.Background(), second, 400, "cat"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "cat.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, second) {
		t.Fatal("second save should overwrite the first")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, found %d", len(entries))
	}
}

func TestFileStoreVersion(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, Version)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	want := []string{"dog.png", "dog-1.png", "dog-2.png"}
	for _, w := range want {
		name, err := s.Save(context.Background(), thumb(t, 200), 200, "dog")
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if filepath.Base(name) != w {
			t.Errorf("got %s, want %s", filepath.Base(name), w)
		}
	}
}

func TestFileStoreRejects(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), Overwrite)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(context.Background(), thumb(t, 200), 200, ""); !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("expected ErrMissingInput for empty name, got %v", err)
	}
	if _, err := s.Save(context.Background(), thumb(t, 200), 400, "x"); !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("expected ErrMissingInput for size mismatch, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, thumb(t, 200), 200, "x"); !errors.Is(err, apperr.ErrPersistenceFailure) {
		t.Errorf("expected ErrPersistenceFailure for cancelled context, got %v", err)
	}
}

func TestParseConflictPolicy(t *testing.T) {
	if ParseConflictPolicy("VERSION") != Version {
		t.Error("expected Version")
	}
	for _, s := range []string{"", "overwrite", "bogus"} {
		if ParseConflictPolicy(s) != Overwrite {
			t.Errorf("ParseConflictPolicy(%q) should be Overwrite", s)
		}
	}
}

func TestRemoteStore(t *testing.T) {
	var gotName, gotSize string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/save-image" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(SaveResponse{Error: "No image provided"})
			return
		}
		defer f.Close()
		gotBytes, _ = io.ReadAll(f)
		gotName = hdr.Filename
		gotSize = r.FormValue("size")
		_ = json.NewEncoder(w).Encode(SaveResponse{Success: true, Filename: "thumbnails/" + hdr.Filename})
	}))
	defer srv.Close()

	data := thumb(t, 200)
	name, err := NewRemoteStore(srv.URL+"/").Save(context.Background(), data, 200, "owl.PNG")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "thumbnails/owl.png" || gotName != "owl.png" || gotSize != "200" {
		t.Fatalf("unexpected result name=%q sent=%q size=%q", name, gotName, gotSize)
	}
	if !bytes.Equal(gotBytes, data) {
		t.Fatal("uploaded bytes differ")
	}
}

func TestRemoteStoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(SaveResponse{Error: "disk full"})
	}))
	defer srv.Close()

	_, err := NewRemoteStore(srv.URL).Save(context.Background(), thumb(t, 200), 200, "a")
	if !errors.Is(err, apperr.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if apperr.Message(err) != "disk full" {
		t.Fatalf("unexpected message %q", apperr.Message(err))
	}
}
