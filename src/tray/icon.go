package tray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// SVGContent is the tray glyph: a dimmed square with a highlighted circle.
const SVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1" y="1" width="14" height="14" rx="2" fill="#333333"/>
  <circle cx="8" cy="8" r="5" fill="#ffffff"/>
  <circle cx="8" cy="8" r="5" fill="none" stroke="#007bff" stroke-width="1.5"/>
</svg>`

// RenderPNG rasterizes the glyph to a size x size PNG.
func RenderPNG(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid icon size %d", size)
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(SVGContent))
	if err != nil {
		return nil, fmt.Errorf("parse tray svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// iconBytes returns the glyph in the format systray expects: ICO on
// Windows, PNG elsewhere.
func iconBytes() ([]byte, error) {
	const size = 32
	data, err := RenderPNG(size)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		return wrapICO(data, size), nil
	}
	return data, nil
}

// wrapICO embeds a PNG in a single-image ICO container.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	// ICONDIRENTRY
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bpp
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(pngData)
	return buf.Bytes()
}
