// Package rules adapts github.com/corentings/chess/v2 to the small, pure
// surface the session and analysis layers need: FEN validation, move
// application, terminal-status detection and material counting.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the canonical initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("illegal move")
)

// PositionError carries the rejected FEN.
type PositionError struct {
	FEN    string
	Reason string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.FEN, e.Reason)
}

func (e *PositionError) Unwrap() error { return ErrInvalidPosition }

// MoveError carries the offending token and the position it was tried against.
type MoveError struct {
	Token  string
	FEN    string
	Reason string
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("illegal move %q in %s: %s", e.Token, e.FEN, e.Reason)
}

func (e *MoveError) Unwrap() error { return ErrIllegalMove }

type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Code returns the FEN side token.
func (s Side) Code() string {
	if s == Black {
		return "b"
	}
	return "w"
}

func (s Side) Opponent() Side {
	if s == Black {
		return White
	}
	return Black
}

func sideOf(c nchess.Color) Side {
	if c == nchess.Black {
		return Black
	}
	return White
}

// Position is an immutable, validated board state.
type Position struct {
	fen string
	pos *nchess.Position
}

// Initial returns the standard starting position.
func Initial() Position {
	p, err := ParsePosition(StartFEN)
	if err != nil {
		panic(fmt.Sprintf("rules: start position rejected: %v", err))
	}
	return p
}

// ParsePosition validates a six-field FEN and returns the position it describes.
func ParsePosition(fen string) (Position, error) {
	fen = strings.Join(strings.Fields(fen), " ")
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return Position{}, &PositionError{FEN: fen, Reason: fmt.Sprintf("expected 6 fields, got %d", len(fields))}
	}
	if n, err := strconv.Atoi(fields[4]); err != nil || n < 0 {
		return Position{}, &PositionError{FEN: fen, Reason: "half-move clock must be a non-negative integer"}
	}
	if n, err := strconv.Atoi(fields[5]); err != nil || n < 1 {
		return Position{}, &PositionError{FEN: fen, Reason: "full-move number must be a positive integer"}
	}

	game, err := gameFromFEN(fen)
	if err != nil {
		return Position{}, &PositionError{FEN: fen, Reason: err.Error()}
	}
	pos := game.Position()
	if reason := checkKings(pos); reason != "" {
		return Position{}, &PositionError{FEN: fen, Reason: reason}
	}
	p := Position{fen: game.FEN(), pos: pos}
	if p.opponentInCheck() {
		return Position{}, &PositionError{FEN: fen, Reason: "side not to move is in check"}
	}
	return p, nil
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return nchess.NewGame(opt), nil
}

func checkKings(pos *nchess.Position) string {
	counts := map[nchess.Color]int{}
	board := pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece != nchess.NoPiece && piece.Type() == nchess.King {
				counts[piece.Color()]++
			}
		}
	}
	if counts[nchess.White] != 1 || counts[nchess.Black] != 1 {
		return fmt.Sprintf("expected one king per side, got white=%d black=%d", counts[nchess.White], counts[nchess.Black])
	}
	return ""
}

// FEN returns the canonical serialization.
func (p Position) FEN() string { return p.fen }

func (p Position) IsZero() bool { return p.pos == nil }

func (p Position) Turn() Side { return sideOf(p.pos.Turn()) }

// FullMoveNumber reads the sixth FEN field.
func (p Position) FullMoveNumber() int {
	return fenInt(p.fen, 5, 1)
}

// HalfMoveClock reads the fifth FEN field.
func (p Position) HalfMoveClock() int {
	return fenInt(p.fen, 4, 0)
}

// RepetitionKey identifies the position for repetition counting: placement,
// side to move, castling rights and en-passant target. The target only counts
// when an en-passant capture onto it is legal.
func (p Position) RepetitionKey() string {
	fields := strings.Fields(p.fen)
	if len(fields) < 4 {
		return p.fen
	}
	key := append([]string(nil), fields[:4]...)
	if key[3] != "-" && !p.enPassantAvailable() {
		key[3] = "-"
	}
	return strings.Join(key, " ")
}

func (p Position) enPassantAvailable() bool {
	if p.pos == nil || p.pos.EnPassantSquare() == nchess.NoSquare {
		return false
	}
	// A fresh game keeps the shared position free of move-cache writes.
	game, err := gameFromFEN(p.fen)
	if err != nil {
		return false
	}
	for _, mv := range game.ValidMoves() {
		if mv.HasTag(nchess.EnPassant) {
			return true
		}
	}
	return false
}

func fenInt(fen string, idx, fallback int) int {
	fields := strings.Fields(fen)
	if idx >= len(fields) {
		return fallback
	}
	n, err := strconv.Atoi(fields[idx])
	if err != nil {
		return fallback
	}
	return n
}

// Applied is the outcome of a successful move.
type Applied struct {
	Position Position
	SAN      string
	UCI      string
	Capture  bool
}

// Apply validates token against p (SAN first, UCI as a fallback) and returns
// the resulting position. p itself is never modified.
func (p Position) Apply(token string) (Applied, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return Applied{}, &MoveError{Token: token, FEN: p.fen, Reason: "empty move"}
	}
	game, err := gameFromFEN(p.fen)
	if err != nil {
		return Applied{}, &MoveError{Token: token, FEN: p.fen, Reason: err.Error()}
	}
	pos := game.Position()

	move, decodeErr := nchess.AlgebraicNotation{}.Decode(pos, normalizeCastling(raw))
	if decodeErr != nil {
		if alt, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); err == nil {
			move = alt
			decodeErr = nil
		}
	}
	if decodeErr != nil {
		return Applied{}, &MoveError{Token: token, FEN: p.fen, Reason: "not a legal move in this position"}
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, move)
	uci := nchess.UCINotation{}.Encode(pos, move)
	capture := move.HasTag(nchess.Capture) || move.HasTag(nchess.EnPassant)

	if err := game.Move(move, nil); err != nil {
		return Applied{}, &MoveError{Token: token, FEN: p.fen, Reason: err.Error()}
	}
	next := game.Position()
	return Applied{
		Position: Position{fen: game.FEN(), pos: next},
		SAN:      san,
		UCI:      uci,
		Capture:  capture,
	}, nil
}

// SANFromUCI converts an engine move into SAN against p.
func (p Position) SANFromUCI(uci string) (string, error) {
	applied, err := p.applyUCI(uci)
	if err != nil {
		return "", err
	}
	return applied.SAN, nil
}

// LineToSAN converts a UCI line played from p into SAN, stopping at the first
// move that does not convert or after limit plies.
func (p Position) LineToSAN(line []string, limit int) []string {
	out := make([]string, 0, len(line))
	cur := p
	for _, mv := range line {
		if limit > 0 && len(out) >= limit {
			break
		}
		applied, err := cur.applyUCI(mv)
		if err != nil {
			break
		}
		out = append(out, applied.SAN)
		cur = applied.Position
	}
	return out
}

func (p Position) applyUCI(uci string) (Applied, error) {
	game, err := gameFromFEN(p.fen)
	if err != nil {
		return Applied{}, &MoveError{Token: uci, FEN: p.fen, Reason: err.Error()}
	}
	pos := game.Position()
	move, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(uci)))
	if err != nil {
		return Applied{}, &MoveError{Token: uci, FEN: p.fen, Reason: "not a legal move in this position"}
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, move)
	if err := game.Move(move, nil); err != nil {
		return Applied{}, &MoveError{Token: uci, FEN: p.fen, Reason: err.Error()}
	}
	return Applied{
		Position: Position{fen: game.FEN(), pos: game.Position()},
		SAN:      san,
		UCI:      strings.ToLower(strings.TrimSpace(uci)),
		Capture:  move.HasTag(nchess.Capture) || move.HasTag(nchess.EnPassant),
	}, nil
}

// LegalMoveCount returns the number of legal moves for the side to move.
func (p Position) LegalMoveCount() int {
	game, err := gameFromFEN(p.fen)
	if err != nil {
		return 0
	}
	return len(game.ValidMoves())
}

// InCheck reports whether the side to move is in check.
func (p Position) InCheck() bool {
	return kingAttacked(p.pos, p.pos.Turn())
}

func (p Position) opponentInCheck() bool {
	return kingAttacked(p.pos, p.pos.Turn().Other())
}

// kingAttacked reports whether any enemy piece attacks color's king. Pins on
// the attacker are ignored: a pinned piece still gives check.
func kingAttacked(pos *nchess.Position, color nchess.Color) bool {
	target := kingSquare(pos, color)
	if target == nchess.NoSquare {
		return false
	}
	return squareAttacked(pos.Board(), target, color.Other())
}

var (
	knightJumps = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func pieceAt(board *nchess.Board, file, rank int) (nchess.Piece, bool) {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return nchess.NoPiece, false
	}
	return board.Piece(nchess.NewSquare(nchess.File(file), nchess.Rank(rank))), true
}

// squareAttacked reports whether a piece of color by attacks sq.
func squareAttacked(board *nchess.Board, sq nchess.Square, by nchess.Color) bool {
	file, rank := int(sq.File()), int(sq.Rank())
	is := func(piece nchess.Piece, types ...nchess.PieceType) bool {
		if piece == nchess.NoPiece || piece.Color() != by {
			return false
		}
		for _, t := range types {
			if piece.Type() == t {
				return true
			}
		}
		return false
	}

	// A white pawn attacks upward, so it sits one rank below sq.
	pawnRank := rank - 1
	if by == nchess.Black {
		pawnRank = rank + 1
	}
	for _, df := range []int{-1, 1} {
		if piece, ok := pieceAt(board, file+df, pawnRank); ok && is(piece, nchess.Pawn) {
			return true
		}
	}
	for _, d := range knightJumps {
		if piece, ok := pieceAt(board, file+d[0], rank+d[1]); ok && is(piece, nchess.Knight) {
			return true
		}
	}
	for _, d := range kingSteps {
		if piece, ok := pieceAt(board, file+d[0], rank+d[1]); ok && is(piece, nchess.King) {
			return true
		}
	}
	slide := func(rays [][2]int, types ...nchess.PieceType) bool {
		for _, d := range rays {
			for f, r := file+d[0], rank+d[1]; ; f, r = f+d[0], r+d[1] {
				piece, ok := pieceAt(board, f, r)
				if !ok {
					break
				}
				if piece == nchess.NoPiece {
					continue
				}
				if is(piece, types...) {
					return true
				}
				break
			}
		}
		return false
	}
	return slide(rookRays, nchess.Rook, nchess.Queen) || slide(bishopRays, nchess.Bishop, nchess.Queen)
}

func kingSquare(pos *nchess.Position, color nchess.Color) nchess.Square {
	board := pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := board.Piece(sq)
			if piece != nchess.NoPiece && piece.Type() == nchess.King && piece.Color() == color {
				return sq
			}
		}
	}
	return nchess.NoSquare
}

func normalizeCastling(token string) string {
	switch strings.TrimRight(token, "+#!?") {
	case "0-0":
		return "O-O"
	case "0-0-0":
		return "O-O-O"
	}
	return token
}
