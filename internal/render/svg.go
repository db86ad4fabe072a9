package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// boardSVG draws the frame and the 64 squares. Highlighted squares are
// indexed in display order (row*8+col).
func boardSVG(squareSize, margin int, highlight map[int]bool) []byte {
	total := squareSize*8 + margin*2
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, total, total, total, total)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, total, total, frameColor)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			fill := lightSquare
			if (row+col)%2 == 1 {
				fill = darkSquare
			}
			if highlight[row*8+col] {
				fill = highlightSquare
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`,
				margin+col*squareSize, margin+row*squareSize, squareSize, squareSize, fill)
		}
	}
	fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="%s" stroke-width="2"/>`,
		margin, margin, squareSize*8, squareSize*8, borderColor)
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

// rasterize draws svg into a new RGBA image of the given size.
func rasterize(svg []byte, width, height int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}
