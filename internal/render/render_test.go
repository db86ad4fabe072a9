package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
)

func TestRenderPNGBounds(t *testing.T) {
	r := NewBoardRenderer(32)
	data, err := r.RenderPNG(context.Background(), rules.Initial(), Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := 32*8 + 32
	if b := img.Bounds(); b.Dx() != want || b.Dy() != want {
		t.Fatalf("bounds = %v, want %dx%d", b, want, want)
	}
}

func TestRenderPNGCaptionAndFlip(t *testing.T) {
	r := NewBoardRenderer(0)
	opts := Options{Flip: true, Highlight: []string{"e2", "E4"}, Caption: "1. e4"}
	data, err := r.RenderPNG(context.Background(), rules.Initial(), opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	side := DefaultSquareSize*8 + DefaultSquareSize
	if b := img.Bounds(); b.Dx() != side || b.Dy() != side+DefaultSquareSize/2 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestRenderPNGHighlightColor(t *testing.T) {
	r := NewBoardRenderer(32)
	data, err := r.RenderPNG(context.Background(), rules.Initial(), Options{Highlight: []string{"e3"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// e3 is empty at the start, so its corner shows the square fill.
	row, col := displayCell(4, 2, false)
	x := 16 + col*32 + 3
	y := 16 + row*32 + 3
	cr, cg, cb, _ := img.At(x, y).RGBA()
	want := hexColor(highlightSquare)
	if uint8(cr>>8) != want.R || uint8(cg>>8) != want.G || uint8(cb>>8) != want.B {
		t.Fatalf("pixel = %d,%d,%d want %v", cr>>8, cg>>8, cb>>8, want)
	}
}

func TestRenderPNGRejects(t *testing.T) {
	r := NewBoardRenderer(32)
	if _, err := r.RenderPNG(context.Background(), rules.Position{}, Options{}); err == nil {
		t.Fatalf("empty position rendered")
	}
	if _, err := r.RenderPNG(context.Background(), rules.Initial(), Options{Highlight: []string{"z9"}}); err == nil {
		t.Fatalf("bad square accepted")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, rules.Initial(), Options{}); err == nil {
		t.Fatalf("cancelled render succeeded")
	}
}

func TestDisplayCell(t *testing.T) {
	if r, c := displayCell(0, 0, false); r != 7 || c != 0 {
		t.Fatalf("a1 = %d,%d", r, c)
	}
	if r, c := displayCell(0, 0, true); r != 0 || c != 7 {
		t.Fatalf("a1 flipped = %d,%d", r, c)
	}
}
