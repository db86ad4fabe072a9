package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
)

const (
	DefaultSquareSize = 64
	minSquareSize     = 24
	maxSquareSize     = 128
)

const (
	frameColor      = "#2b2f3a"
	borderColor     = "#14161c"
	lightSquare     = "#e9cfa3"
	darkSquare      = "#bb8860"
	highlightSquare = "#f2d76b"
)

var (
	whitePieceFill = color.NRGBA{R: 250, G: 248, B: 240, A: 255}
	whitePieceText = color.NRGBA{R: 30, G: 30, B: 36, A: 255}
	blackPieceFill = color.NRGBA{R: 36, G: 38, B: 48, A: 255}
	blackPieceText = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	pieceShadow    = color.NRGBA{A: 70}
	labelColor     = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
)

type Options struct {
	// Flip draws the board from Black's side.
	Flip bool
	// Highlight lists squares to mark, in algebraic form ("e4").
	Highlight []string
	// Caption is printed under the board.
	Caption string
}

// BoardRenderer draws positions as PNG images.
type BoardRenderer struct {
	squareSize int
}

func NewBoardRenderer(squareSize int) *BoardRenderer {
	if squareSize <= 0 {
		squareSize = DefaultSquareSize
	}
	if squareSize < minSquareSize {
		squareSize = minSquareSize
	}
	if squareSize > maxSquareSize {
		squareSize = maxSquareSize
	}
	return &BoardRenderer{squareSize: squareSize}
}

func (r *BoardRenderer) RenderPNG(ctx context.Context, pos rules.Position, opts Options) ([]byte, error) {
	if pos.IsZero() {
		return nil, fmt.Errorf("position is empty")
	}
	sq := r.squareSize
	margin := sq / 2
	side := sq*8 + margin*2
	captionHeight := 0
	if strings.TrimSpace(opts.Caption) != "" {
		captionHeight = margin
	}

	highlight := make(map[int]bool, len(opts.Highlight))
	for _, name := range opts.Highlight {
		file, rank, ok := parseSquare(name)
		if !ok {
			return nil, fmt.Errorf("bad highlight square %q", name)
		}
		row, col := displayCell(file, rank, opts.Flip)
		highlight[row*8+col] = true
	}

	boardImg, err := rasterize(boardSVG(sq, margin, highlight), side, side)
	if err != nil {
		return nil, err
	}
	img := boardImg
	if captionHeight > 0 {
		img = image.NewRGBA(image.Rect(0, 0, side, side+captionHeight))
		xdraw.Draw(img, img.Bounds(), image.NewUniform(hexColor(frameColor)), image.Point{}, xdraw.Src)
		xdraw.Draw(img, boardImg.Bounds(), boardImg, image.Point{}, xdraw.Over)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	board := pos.Board()
	for file := 0; file < 8; file++ {
		for rank := 0; rank < 8; rank++ {
			piece := board.Piece(nchess.NewSquare(nchess.File(file), nchess.Rank(rank)))
			if piece == nchess.NoPiece {
				continue
			}
			row, col := displayCell(file, rank, opts.Flip)
			origin := image.Pt(margin+col*sq, margin+row*sq)
			drawPiece(img, piece, origin, sq)
		}
	}
	drawCoordinates(img, sq, margin, opts.Flip)
	if captionHeight > 0 {
		drawCaption(img, opts.Caption, side, side+captionHeight/2)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// displayCell maps board coordinates (file 0=a, rank 0=1) to screen row/col.
func displayCell(file, rank int, flip bool) (row, col int) {
	if flip {
		return rank, 7 - file
	}
	return 7 - rank, file
}

func parseSquare(s string) (file, rank int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, 0, false
	}
	return int(s[0] - 'a'), int(s[1] - '1'), true
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "K"
	case nchess.Queen:
		return "Q"
	case nchess.Rook:
		return "R"
	case nchess.Bishop:
		return "B"
	case nchess.Knight:
		return "N"
	default:
		return "P"
	}
}

func drawPiece(img *image.RGBA, piece nchess.Piece, origin image.Point, sq int) {
	fill, text := whitePieceFill, whitePieceText
	if piece.Color() == nchess.Black {
		fill, text = blackPieceFill, blackPieceText
	}
	center := image.Pt(origin.X+sq/2, origin.Y+sq/2)
	radius := sq * 2 / 5
	drawDisc(img, center.Add(image.Pt(1, 2)), radius, pieceShadow)
	drawDisc(img, center, radius, fill)

	glyph := glyphImage(pieceLetter(piece.Type()), text)
	h := sq / 2
	w := h * glyph.Bounds().Dx() / glyph.Bounds().Dy()
	dst := image.Rect(center.X-w/2, center.Y-h/2, center.X-w/2+w, center.Y-h/2+h)
	xdraw.ApproxBiLinear.Scale(img, dst, glyph, glyph.Bounds(), xdraw.Over, nil)
}

// glyphImage renders text at basicfont size on a transparent background so
// it can be scaled up.
func glyphImage(text string, clr color.Color) *image.RGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	height := (m.Ascent + m.Descent).Ceil()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{Dst: img, Src: image.NewUniform(clr), Face: face, Dot: fixed.Point26_6{Y: m.Ascent}}
	d.DrawString(text)
	return img
}

func drawCoordinates(img *image.RGBA, sq, margin int, flip bool) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		file, rank := i, 7-i
		if flip {
			file, rank = 7-i, i
		}
		fileLabel := string(rune('a' + file))
		rankLabel := string(rune('1' + rank))

		drawCenteredText(d, fileLabel, margin+i*sq+sq/2, margin+8*sq+margin/2+ascent/2)
		drawCenteredText(d, rankLabel, margin/2, margin+i*sq+sq/2+ascent/2)
	}
}

func drawCaption(img *image.RGBA, caption string, width, centerY int) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	drawCenteredText(d, caption, width/2, centerY+ascent/2)
}

func drawCenteredText(d *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-w/2, baseline)
	d.DrawString(text)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > r2 {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

// blendPixel composites clr over the pixel at (x, y).
func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}

func hexColor(s string) color.RGBA {
	var c color.RGBA
	c.A = 255
	_, _ = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	return c
}
