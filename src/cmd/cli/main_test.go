package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"circle-thumb/src/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvPathEnvVar, filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"DEFAULT_BACKGROUND", "RESAMPLE_FILTER", "ON_CONFLICT", "SERVER_URL", "ENABLE_FILE_LOGGING"} {
		t.Setenv(k, "")
	}
	dir := filepath.Join(t.TempDir(), "thumbs")
	t.Setenv("THUMBNAILS_DIR", dir)
	return dir
}

func writeSource(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 0xc0, G: 0x20, B: 0x20, A: 0xff})
		}
	}
	p := filepath.Join(t.TempDir(), "src.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"no flags", []string{"cli", "serve"}, []string{"cli", "serve"}},
		{"single dash", []string{"cli", "crop", "-file", "a.png", "-radius=120"}, []string{"cli", "crop", "--file", "a.png", "--radius=120"}},
		{"already double", []string{"cli", "serve", "--addr", ":0"}, []string{"cli", "serve", "--addr", ":0"}},
		{"short verbose untouched", []string{"cli", "crop", "-v"}, []string{"cli", "crop", "-v"}},
		{"stdin marker untouched", []string{"cli", "crop", "--file", "-"}, []string{"cli", "crop", "--file", "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeLegacyArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("normalizeLegacyArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestServeFlags(t *testing.T) {
	opts := &serveOptions{}
	cmd := newServeCmd(opts)
	if err := cmd.ParseFlags([]string{"--addr", "127.0.0.1:0", "--dir", "out", "--tray", "--env", "x.env"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	want := serveOptions{addr: "127.0.0.1:0", dir: "out", tray: true, envPath: "x.env"}
	if *opts != want {
		t.Fatalf("opts = %+v, want %+v", *opts, want)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "circle-thumb dev\n" {
		t.Fatalf("version output = %q", out)
	}
}

func TestCropToFile(t *testing.T) {
	isolateEnv(t)
	src := writeSource(t, 600, 400)
	dst := filepath.Join(t.TempDir(), "thumb.png")

	out, err := execute(t, nil, "crop", "--file", src, "--cx", "300", "--cy", "200", "--radius", "150", "--bg", "black", "--out", dst)
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}
	if !strings.Contains(out, "Image saved successfully as "+dst) {
		t.Fatalf("output = %q", out)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	img := decodePNG(t, data)
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 400 {
		t.Fatalf("diameter 300 should export at 400, got %v", img.Bounds())
	}
	// Corners lie outside the circle and take the background.
	r, g, b, _ := img.At(0, 0).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("corner should be black, got %v", img.At(0, 0))
	}
}

func TestCropStdinToStdout(t *testing.T) {
	isolateEnv(t)
	data, err := os.ReadFile(writeSource(t, 300, 300))
	if err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, data, "crop", "--file", "-", "--cx", "150", "--cy", "150", "--radius", "50", "--out", "-")
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}
	img := decodePNG(t, []byte(out))
	if img.Bounds().Dx() != 200 {
		t.Fatalf("small circle should export at 200, got %v", img.Bounds())
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 0xff || g>>8 != 0xff || b>>8 != 0xff {
		t.Fatalf("default background should be white, got %v", img.At(0, 0))
	}
}

func TestCropSaveJSON(t *testing.T) {
	dir := isolateEnv(t)
	src := writeSource(t, 500, 500)

	out, err := execute(t, nil, "crop", "--file", src, "--cx", "250", "--cy", "250", "--radius", "100", "--save", "avatar", "--json")
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}
	var res cropResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if res.TargetSize != 200 || res.Background != "white" || res.Radius != 100 || res.Bytes == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "avatar.png")); err != nil {
		t.Fatalf("thumbnail not saved: %v", err)
	}
}

func TestCropErrors(t *testing.T) {
	isolateEnv(t)
	src := writeSource(t, 400, 400)
	small := writeSource(t, 150, 400)
	dst := filepath.Join(t.TempDir(), "x.png")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"outside image", []string{"crop", "--file", src, "--cx", "50", "--cy", "200", "--radius", "100", "--out", dst}, "must lie inside"},
		{"zero radius", []string{"crop", "--file", src, "--cx", "200", "--cy", "200", "--radius", "0", "--out", dst}, "must lie inside"},
		{"too small to export", []string{"crop", "--file", src, "--cx", "200", "--cy", "200", "--radius", "10", "--out", dst}, "too small"},
		{"source too small", []string{"crop", "--file", small, "--cx", "75", "--cy", "75", "--radius", "50", "--out", dst}, "Image is too small"},
		{"missing file", []string{"crop", "--file", filepath.Join(t.TempDir(), "nope.png"), "--radius", "10", "--out", dst}, "failed to open image file"},
		{"no destination", []string{"crop", "--file", src, "--radius", "10"}, "out"},
		{"both destinations", []string{"crop", "--file", src, "--radius", "10", "--out", dst, "--save", "a"}, "out"},
		{"json to stdout", []string{"crop", "--file", src, "--cx", "200", "--cy", "200", "--radius", "150", "--out", "-", "--json"}, "--json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.want)) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
