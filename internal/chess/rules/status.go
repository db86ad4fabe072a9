package rules

import (
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// Label is the terminal-status classification of a position.
type Label string

const (
	LabelNormal               Label = "normal"
	LabelCheck                Label = "check"
	LabelCheckmate            Label = "checkmate"
	LabelStalemate            Label = "stalemate"
	LabelInsufficientMaterial Label = "draw_insufficient_material"
	LabelSeventyFiveMoves     Label = "draw_75_moves"
	LabelFivefoldRepetition   Label = "draw_fivefold_repetition"
)

// Terminal reports whether the label ends the game.
func (l Label) Terminal() bool {
	switch l {
	case LabelCheckmate, LabelStalemate, LabelInsufficientMaterial, LabelSeventyFiveMoves, LabelFivefoldRepetition:
		return true
	}
	return false
}

const (
	seventyFiveMovePlies = 150
	fivefoldOccurrences  = 5
)

type Status struct {
	SideToMove     Side  `json:"side_to_move"`
	InCheck        bool  `json:"in_check"`
	Checkmate      bool  `json:"checkmate"`
	Stalemate      bool  `json:"stalemate"`
	Insufficient   bool  `json:"draw_insufficient_material"`
	SeventyFive    bool  `json:"draw_75_moves"`
	Fivefold       bool  `json:"draw_fivefold_repetition"`
	LegalMoveCount int   `json:"legal_move_count"`
	Label          Label `json:"label"`
	Winner         Side  `json:"winner,omitempty"`
}

// Status evaluates p. repetitions is how many times p's repetition key has
// occurred in the game so far, counting the current occurrence; a bare
// position passes 1.
func (p Position) Status(repetitions int) Status {
	st := Status{
		SideToMove:     p.Turn(),
		InCheck:        p.InCheck(),
		LegalMoveCount: p.LegalMoveCount(),
	}
	switch p.pos.Status() {
	case nchess.Checkmate:
		st.Checkmate = true
	case nchess.Stalemate:
		st.Stalemate = true
	}
	st.Insufficient = insufficientMaterial(p.pos)
	st.SeventyFive = p.HalfMoveClock() >= seventyFiveMovePlies
	st.Fivefold = repetitions >= fivefoldOccurrences

	switch {
	case st.Checkmate:
		st.Label = LabelCheckmate
		st.Winner = st.SideToMove.Opponent()
	case st.Stalemate:
		st.Label = LabelStalemate
	case st.Insufficient:
		st.Label = LabelInsufficientMaterial
	case st.SeventyFive:
		st.Label = LabelSeventyFiveMoves
	case st.Fivefold:
		st.Label = LabelFivefoldRepetition
	case st.InCheck:
		st.Label = LabelCheck
	default:
		st.Label = LabelNormal
	}
	return st
}

func insufficientMaterial(pos *nchess.Position) bool {
	var (
		minors       = map[nchess.Color]int{}
		bishopColors = map[int]int{}
		bishops      int
	)
	board := pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			switch piece.Type() {
			case nchess.King:
			case nchess.Knight:
				minors[piece.Color()]++
			case nchess.Bishop:
				minors[piece.Color()]++
				bishops++
				bishopColors[(int(file)+int(rank))%2]++
			default:
				return false
			}
		}
	}
	total := minors[nchess.White] + minors[nchess.Black]
	if total <= 1 {
		return true
	}
	// Bishops only, all on one square colour.
	return bishops == total && len(bishopColors) == 1
}

// Material is the per-side piece value with pawn=1 knight=3 bishop=3 rook=5 queen=9.
type Material struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// Balance is white minus black.
func (m Material) Balance() int { return m.White - m.Black }

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
	nchess.King:   0,
}

func (p Position) Material() Material {
	var m Material
	board := p.pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			if piece.Color() == nchess.White {
				m.White += pieceValues[piece.Type()]
			} else {
				m.Black += pieceValues[piece.Type()]
			}
		}
	}
	return m
}

// PieceCount counts every piece on the board, kings included.
func (p Position) PieceCount() int {
	n := 0
	board := p.pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			if board.Piece(nchess.NewSquare(file, rank)) != nchess.NoPiece {
				n++
			}
		}
	}
	return n
}

type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseMiddlegame Phase = "middlegame"
	PhaseEndgame    Phase = "endgame"
)

func (p Position) Phase() Phase {
	switch n := p.PieceCount(); {
	case n > 28:
		return PhaseOpening
	case n > 12:
		return PhaseMiddlegame
	default:
		return PhaseEndgame
	}
}

// Board exposes the underlying board for renderers.
func (p Position) Board() *nchess.Board { return p.pos.Board() }

var (
	ecoOnce sync.Once
	eco     *opening.BookECO
)

func ecoBook() *opening.BookECO {
	ecoOnce.Do(func() { eco = opening.NewBookECO() })
	return eco
}

type Opening struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// OpeningFor replays sanMoves from the initial position and looks the line up
// in the ECO book. A zero Opening means no match or an unreplayable history.
func OpeningFor(sanMoves []string) Opening {
	if len(sanMoves) == 0 {
		return Opening{}
	}
	game := nchess.NewGame()
	notation := nchess.AlgebraicNotation{}
	for _, mv := range sanMoves {
		move, err := notation.Decode(game.Position(), strings.TrimSpace(mv))
		if err != nil {
			return Opening{}
		}
		if err := game.Move(move, nil); err != nil {
			return Opening{}
		}
	}
	book := ecoBook()
	if book == nil {
		return Opening{}
	}
	if found := book.Find(game.Moves()); found != nil {
		return Opening{Code: found.Code(), Title: found.Title()}
	}
	return Opening{}
}
