package chess

import (
	"fmt"
	"strconv"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/chess/uci"
)

// MateScore is the capped pawn value reported for a forced mate.
const MateScore = 100.0

type EvalKind string

const (
	EvalCentipawns EvalKind = "cp"
	EvalMate       EvalKind = "mate"
)

// Evaluation is always from White's point of view. For mates Pawns holds
// ±MateScore and MateIn the signed distance in moves: positive when White
// mates, negative when Black does.
type Evaluation struct {
	Kind   EvalKind `json:"kind"`
	Pawns  float64  `json:"pawns"`
	MateIn int      `json:"mate_in,omitempty"`
	Note   string   `json:"note,omitempty"`
}

func (e Evaluation) IsMate() bool { return e.Kind == EvalMate }

// String renders "+1.25", "-0.50", "#3" or "#-5".
func (e Evaluation) String() string {
	if e.IsMate() {
		return "#" + strconv.Itoa(e.MateIn)
	}
	return fmt.Sprintf("%+.2f", e.Pawns)
}

// normalize converts a side-to-move-relative engine score into a White
// perspective Evaluation.
func normalize(score uci.Score, turn rules.Side) Evaluation {
	sign := 1
	if turn == rules.Black {
		sign = -1
	}
	if !score.Mate {
		return Evaluation{Kind: EvalCentipawns, Pawns: float64(score.Value*sign) / 100.0}
	}

	// "mate 0" means the side to move is already mated.
	mateIn := score.Value
	moverWins := mateIn > 0
	whiteWins := moverWins == (turn == rules.White)

	distance := mateIn
	if distance < 0 {
		distance = -distance
	}
	eval := Evaluation{Kind: EvalMate, MateIn: distance}
	winner := "White"
	if whiteWins {
		eval.Pawns = MateScore
	} else {
		eval.Pawns = -MateScore
		eval.MateIn = -distance
		winner = "Black"
	}
	if distance == 0 {
		eval.Note = winner + " has delivered mate"
	} else {
		eval.Note = fmt.Sprintf("%s mates in %d", winner, distance)
	}
	return eval
}
