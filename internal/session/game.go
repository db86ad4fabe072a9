package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
)

// DefaultID is used when a caller does not name a session.
const DefaultID = "default"

// GameOverReason is the MoveError reason for moves after a terminal position.
const GameOverReason = "game is over; reset to start a new game"

// HistorySeparator joins moves in StatusSnapshot.History.
const HistorySeparator = " → "

type State string

const (
	StateActive   State = "active"
	StateGameOver State = "game_over"
)

type MoveResult struct {
	Token      string      `json:"token"`
	SAN        string      `json:"san"`
	UCI        string      `json:"uci"`
	FEN        string      `json:"fen"`
	SideToMove rules.Side  `json:"side_to_move"`
	Ply        int         `json:"ply"`
	Label      rules.Label `json:"label"`
	GameOver   bool        `json:"game_over"`
}

type StatusSnapshot struct {
	SessionID       string         `json:"session_id"`
	GameID          string         `json:"game_id"`
	FEN             string         `json:"fen"`
	Turn            rules.Side     `json:"turn"`
	TurnCode        string         `json:"turn_code"`
	Label           rules.Label    `json:"status"`
	Winner          rules.Side     `json:"winner,omitempty"`
	State           State          `json:"state"`
	GameOver        bool           `json:"game_over"`
	InCheck         bool           `json:"in_check"`
	History         string         `json:"history"`
	Moves           []string       `json:"moves"`
	MoveCount       int            `json:"move_count"`
	FullMoveNumber  int            `json:"fullmove_number"`
	Material        rules.Material `json:"material"`
	MaterialBalance int            `json:"material_balance"`
	LegalMoves      int            `json:"legal_moves"`
}

type MovePair struct {
	Number int    `json:"number"`
	White  string `json:"white"`
	Black  string `json:"black"`
}

// Game is one session's board. All methods are safe for concurrent use;
// moves and resets on the same Game are applied one at a time.
type Game struct {
	id string

	mu           sync.Mutex
	gameID       string
	position     rules.Position
	history      []string
	repetitions  map[string]int
	state        State
	lastAnalysis *chess.AnalysisResult
	startedAt    time.Time
	updatedAt    time.Time
}

func NewGame(id string) *Game {
	if strings.TrimSpace(id) == "" {
		id = DefaultID
	}
	g := &Game{id: id}
	g.resetLocked(time.Now())
	return g
}

func (g *Game) ID() string { return g.id }

func (g *Game) resetLocked(now time.Time) {
	start := rules.Initial()
	g.gameID = uuid.NewString()
	g.position = start
	g.history = nil
	g.repetitions = map[string]int{start.RepetitionKey(): 1}
	g.state = StateActive
	g.lastAnalysis = nil
	g.startedAt = now
	g.updatedAt = now
}

// MakeMove applies token to the current position. On failure nothing changes.
func (g *Game) MakeMove(token string) (MoveResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateGameOver {
		return MoveResult{}, &rules.MoveError{Token: token, FEN: g.position.FEN(), Reason: GameOverReason}
	}

	applied, err := g.position.Apply(token)
	if err != nil {
		return MoveResult{}, err
	}

	next := applied.Position
	key := next.RepetitionKey()
	g.repetitions[key]++
	g.position = next
	g.history = append(g.history, applied.SAN)
	g.updatedAt = time.Now()

	st := next.Status(g.repetitions[key])
	if st.Label.Terminal() {
		g.state = StateGameOver
	}

	return MoveResult{
		Token:      token,
		SAN:        applied.SAN,
		UCI:        applied.UCI,
		FEN:        next.FEN(),
		SideToMove: next.Turn(),
		Ply:        len(g.history),
		Label:      st.Label,
		GameOver:   g.state == StateGameOver,
	}, nil
}

func (g *Game) Status() StatusSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Game) statusLocked() StatusSnapshot {
	pos := g.position
	st := pos.Status(g.repetitions[pos.RepetitionKey()])
	material := pos.Material()
	return StatusSnapshot{
		SessionID:       g.id,
		GameID:          g.gameID,
		FEN:             pos.FEN(),
		Turn:            st.SideToMove,
		TurnCode:        st.SideToMove.Code(),
		Label:           st.Label,
		Winner:          st.Winner,
		State:           g.state,
		GameOver:        st.Label.Terminal(),
		InCheck:         st.InCheck,
		History:         strings.Join(g.history, HistorySeparator),
		Moves:           append([]string{}, g.history...),
		MoveCount:       len(g.history),
		FullMoveNumber:  pos.FullMoveNumber(),
		Material:        material,
		MaterialBalance: material.Balance(),
		LegalMoves:      st.LegalMoveCount,
	}
}

// Reset returns the game to the initial position and starts a new game id.
func (g *Game) Reset() rules.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked(time.Now())
	return g.position
}

// ResetRecorded resets like Reset and also returns the game as it was just
// before, in the same critical section.
func (g *Game) ResetRecorded() (Record, rules.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := g.recordLocked()
	g.resetLocked(time.Now())
	return rec, g.position
}

func (g *Game) Position() rules.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

func (g *Game) History() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.history...)
}

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// MovePairs groups the history into numbered white/black pairs.
func (g *Game) MovePairs() []MovePair {
	return PairMoves(g.History())
}

func PairMoves(history []string) []MovePair {
	pairs := make([]MovePair, 0, (len(history)+1)/2)
	for i := 0; i < len(history); i += 2 {
		pair := MovePair{Number: i/2 + 1, White: history[i]}
		if i+1 < len(history) {
			pair.Black = history[i+1]
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

// SetLastAnalysis caches a result for display. It never touches the board.
func (g *Game) SetLastAnalysis(res chess.AnalysisResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastAnalysis = &res
}

// LastAnalysis returns the cached result if it still describes the current position.
func (g *Game) LastAnalysis() (chess.AnalysisResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastAnalysis == nil || g.lastAnalysis.FEN != g.position.FEN() {
		return chess.AnalysisResult{}, false
	}
	return *g.lastAnalysis, true
}

// Record is a point-in-time copy of a game, used for archiving.
type Record struct {
	SessionID string
	GameID    string
	Moves     []string
	Status    StatusSnapshot
	StartedAt time.Time
	UpdatedAt time.Time
}

func (g *Game) Record() Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recordLocked()
}

func (g *Game) recordLocked() Record {
	return Record{
		SessionID: g.id,
		GameID:    g.gameID,
		Moves:     append([]string(nil), g.history...),
		Status:    g.statusLocked(),
		StartedAt: g.startedAt,
		UpdatedAt: g.updatedAt,
	}
}
