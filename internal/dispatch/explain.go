package dispatch

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/session"
)

func explain(g *session.Game, aspect string) Explanation {
	st := g.Status()
	pos := g.Position()

	ex := Explanation{
		Aspect:          aspect,
		FEN:             st.FEN,
		SideToMove:      st.Turn,
		Label:           st.Label,
		Phase:           pos.Phase(),
		Material:        st.Material,
		MaterialBalance: st.MaterialBalance,
		InCheck:         st.InCheck,
		LegalMoves:      st.LegalMoves,
	}
	if op := rules.OpeningFor(st.Moves); op.Code != "" {
		ex.Opening = &op
	}
	if res, ok := g.LastAnalysis(); ok {
		ex.LastAnalysis = &res
	}
	ex.Summary = summarize(ex, st)
	return ex
}

func summarize(ex Explanation, st session.StatusSnapshot) string {
	var parts []string
	switch ex.Aspect {
	case AspectMaterial:
		parts = append(parts, materialSentence(ex))
	case AspectPosition:
		parts = append(parts, phaseSentence(ex, st))
		if ex.Opening != nil {
			parts = append(parts, fmt.Sprintf("The opening is %s (%s).", ex.Opening.Title, ex.Opening.Code))
		}
		parts = append(parts, fmt.Sprintf("%s has %d legal moves.", titleSide(ex.SideToMove), ex.LegalMoves))
	case AspectTactics:
		parts = append(parts, statusSentence(ex))
		if ex.LastAnalysis != nil {
			a := ex.LastAnalysis
			parts = append(parts, fmt.Sprintf("The engine prefers %s (%s).", a.BestMove, a.Evaluation.String()))
			if len(a.PrincipalVariation) > 1 {
				parts = append(parts, "Main line: "+strings.Join(a.PrincipalVariation, " ")+".")
			}
		} else {
			parts = append(parts, "No engine analysis is available for this position yet.")
		}
	default:
		parts = append(parts, phaseSentence(ex, st), statusSentence(ex), materialSentence(ex))
		if ex.LastAnalysis != nil {
			parts = append(parts, fmt.Sprintf("Engine evaluation: %s, best move %s.", ex.LastAnalysis.Evaluation.String(), ex.LastAnalysis.BestMove))
		}
	}
	return strings.Join(parts, " ")
}

func titleSide(s rules.Side) string {
	if s == rules.Black {
		return "Black"
	}
	return "White"
}

func phaseSentence(ex Explanation, st session.StatusSnapshot) string {
	if st.MoveCount == 0 {
		return "The game is at the starting position."
	}
	return fmt.Sprintf("After %d moves the game is in the %s.", st.MoveCount, ex.Phase)
}

func statusSentence(ex Explanation) string {
	side := titleSide(ex.SideToMove)
	switch ex.Label {
	case rules.LabelCheckmate:
		return fmt.Sprintf("%s is checkmated.", side)
	case rules.LabelStalemate:
		return "The game is drawn by stalemate."
	case rules.LabelInsufficientMaterial:
		return "The game is drawn by insufficient material."
	case rules.LabelSeventyFiveMoves:
		return "The game is drawn by the 75-move rule."
	case rules.LabelFivefoldRepetition:
		return "The game is drawn by fivefold repetition."
	case rules.LabelCheck:
		return fmt.Sprintf("%s is in check and must respond.", side)
	default:
		return fmt.Sprintf("%s to move.", side)
	}
}

func materialSentence(ex Explanation) string {
	m := ex.Material
	switch b := ex.MaterialBalance; {
	case b > 0:
		return fmt.Sprintf("White is ahead by %d in material (%d to %d).", b, m.White, m.Black)
	case b < 0:
		return fmt.Sprintf("Black is ahead by %d in material (%d to %d).", -b, m.Black, m.White)
	default:
		return fmt.Sprintf("Material is level at %d each.", m.White)
	}
}
