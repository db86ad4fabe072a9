package domain

import "time"

// ArchivedGame is a finished or abandoned session game as stored.
type ArchivedGame struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	MovesSAN     []string      `json:"moves_san"`
	FinalFEN     string        `json:"final_fen"`
	Result       string        `json:"result"`
	ResultMethod string        `json:"result_method"`
	ECO          string        `json:"eco,omitempty"`
	Opening      string        `json:"opening,omitempty"`
	PGN          string        `json:"pgn"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
}

// PGN result tokens.
const (
	ResultWhiteWins  = "1-0"
	ResultBlackWins  = "0-1"
	ResultDraw       = "1/2-1/2"
	ResultUnfinished = "*"
)
