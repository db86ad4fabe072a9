package dispatch

import (
	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

type MoveOutcome struct {
	session.MoveResult
	// Side is the mover named by the caller, if any. It is not checked.
	Side string `json:"side,omitempty"`
}

type AnalysisOutcome struct {
	Question string               `json:"question,omitempty"`
	Depth    int                  `json:"depth,omitempty"`
	Analysis chess.AnalysisResult `json:"analysis"`
}

type ResetOutcome struct {
	FEN     string `json:"fen"`
	Message string `json:"message"`
}

type HistoryOutcome struct {
	Moves []string           `json:"moves"`
	Pairs []session.MovePair `json:"pairs"`
	Count int                `json:"count"`
}

type Explanation struct {
	Aspect          string                `json:"aspect"`
	FEN             string                `json:"fen"`
	SideToMove      rules.Side            `json:"side_to_move"`
	Label           rules.Label           `json:"status"`
	Phase           rules.Phase           `json:"phase"`
	Material        rules.Material        `json:"material"`
	MaterialBalance int                   `json:"material_balance"`
	Opening         *rules.Opening        `json:"opening,omitempty"`
	InCheck         bool                  `json:"in_check"`
	LegalMoves      int                   `json:"legal_moves"`
	LastAnalysis    *chess.AnalysisResult `json:"last_analysis,omitempty"`
	Summary         string                `json:"summary"`
}

// AnalysisEnvelope wraps a direct analysis in the analyze_position envelope.
func AnalysisEnvelope(res chess.AnalysisResult, depth int, err error) chessdto.Envelope {
	if err != nil {
		return chessdto.Envelope{Command: CommandAnalyzePosition, Error: ToDomainError(err)}
	}
	return chessdto.Envelope{Command: CommandAnalyzePosition, Success: true, Payload: AnalysisOutcome{Depth: depth, Analysis: res}}
}
