package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

const defaultArchiveTimeout = 5 * time.Second

// Analyzer is the engine side of the dispatcher. *chess.Analyzer implements it.
type Analyzer interface {
	AnalyzePosition(ctx context.Context, pos rules.Position, budget chess.Budget) (chess.AnalysisResult, error)
}

// Archiver stores finished games. Implementations ignore games they already hold.
type Archiver interface {
	ArchiveGame(ctx context.Context, rec session.Record) error
}

type Config struct {
	// Budget is the default analysis budget. Zero fields take the analyzer defaults.
	Budget         chess.Budget
	ArchiveTimeout time.Duration
}

type handlerFunc func(ctx context.Context, g *session.Game, raw json.RawMessage) (any, error)

// Dispatcher is the single entry point for commands from the UI and from
// language-model tool calls.
type Dispatcher struct {
	registry *session.Registry
	analyzer Analyzer
	archiver Archiver
	cfg      Config
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// New builds a Dispatcher. archiver may be nil.
func New(registry *session.Registry, analyzer Analyzer, archiver Archiver, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = defaultArchiveTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	specs, err := Tools()
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		registry: registry,
		analyzer: analyzer,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}
	d.handlers = map[string]handlerFunc{
		CommandMakeMove:        d.makeMove,
		CommandAnalyzePosition: d.analyzePosition,
		CommandResetBoard:      d.resetBoard,
		CommandGetMoveHistory:  d.moveHistory,
		CommandExplainPosition: d.explainPosition,
	}
	for _, spec := range specs {
		if _, ok := d.handlers[spec.Name]; !ok {
			return nil, fmt.Errorf("tool schema names %q but no handler exists", spec.Name)
		}
	}
	if len(specs) != len(d.handlers) {
		return nil, fmt.Errorf("tool schema lists %d tools, dispatcher handles %d", len(specs), len(d.handlers))
	}
	return d, nil
}

// Execute runs req against the session named sessionID.
func (d *Dispatcher) Execute(ctx context.Context, sessionID string, req chessdto.CommandRequest) chessdto.Envelope {
	return d.Dispatch(ctx, sessionID, req.Name, req.Arguments)
}

// Dispatch runs one command. It never retries; the envelope carries either
// the payload or a typed error.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, name string, args json.RawMessage) chessdto.Envelope {
	name = strings.TrimSpace(name)
	started := time.Now()

	handler, ok := d.handlers[name]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, name)
		return d.envelope(sessionID, name, nil, err, started)
	}

	g := d.registry.GetOrCreate(sessionID)
	payload, err := handler(ctx, g, args)
	return d.envelope(g.ID(), name, payload, err, started)
}

func (d *Dispatcher) envelope(sessionID, name string, payload any, err error, started time.Time) chessdto.Envelope {
	if err != nil {
		de := ToDomainError(err)
		d.logger.Info("command_failed",
			zap.String("session_id", sessionID),
			zap.String("command", name),
			zap.String("code", de.Code),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return chessdto.Envelope{Command: name, Success: false, Error: de}
	}
	d.logger.Debug("command_completed",
		zap.String("session_id", sessionID),
		zap.String("command", name),
		zap.Duration("elapsed", time.Since(started)),
	)
	return chessdto.Envelope{Command: name, Success: true, Payload: payload}
}

// Status returns the refreshed snapshot callers display after a command.
func (d *Dispatcher) Status(sessionID string) session.StatusSnapshot {
	return d.registry.GetOrCreate(sessionID).Status()
}

// AnalyzeFEN analyses a caller-supplied position without touching any
// session. The FEN is validated before the engine sees it.
func (d *Dispatcher) AnalyzeFEN(ctx context.Context, fen string, budget chess.Budget) chessdto.Envelope {
	started := time.Now()
	pos, err := rules.ParsePosition(strings.TrimSpace(fen))
	if err != nil {
		return d.envelope("", CommandAnalyzePosition, nil, err, started)
	}
	res, err := d.analyze(ctx, pos, d.mergeBudget(budget))
	if err != nil {
		return d.envelope("", CommandAnalyzePosition, nil, err, started)
	}
	return d.envelope("", CommandAnalyzePosition, AnalysisOutcome{Depth: budget.Depth, Analysis: res}, nil, started)
}

func (d *Dispatcher) mergeBudget(b chess.Budget) chess.Budget {
	out := d.cfg.Budget
	if b.Time > 0 {
		out.Time = b.Time
	}
	if b.Variations > 0 {
		out.Variations = b.Variations
	}
	if b.Depth > 0 {
		out.Depth = b.Depth
	}
	return out
}

// analyze bounds the engine call with a deadline above the engine's own.
func (d *Dispatcher) analyze(ctx context.Context, pos rules.Position, budget chess.Budget) (chess.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, budget.Deadline())
	defer cancel()
	return d.analyzer.AnalyzePosition(ctx, pos, budget)
}

func (d *Dispatcher) makeMove(ctx context.Context, g *session.Game, raw json.RawMessage) (any, error) {
	var args makeMoveArgs
	if err := decodeArgs(CommandMakeMove, raw, &args); err != nil {
		return nil, err
	}
	if err := args.validate(); err != nil {
		return nil, err
	}

	res, err := g.MakeMove(args.Move)
	if err != nil {
		return nil, err
	}
	if res.GameOver {
		d.archive(ctx, g.Record(), "game_over")
	}
	return MoveOutcome{MoveResult: res, Side: args.Side}, nil
}

func (d *Dispatcher) analyzePosition(ctx context.Context, g *session.Game, raw json.RawMessage) (any, error) {
	var args analyzeArgs
	if err := decodeArgs(CommandAnalyzePosition, raw, &args); err != nil {
		return nil, err
	}
	if err := args.validate(); err != nil {
		return nil, err
	}

	budget := d.cfg.Budget
	out := AnalysisOutcome{Question: strings.TrimSpace(args.Question)}
	if args.Depth != nil {
		budget.Depth = *args.Depth
		out.Depth = *args.Depth
	}

	res, err := d.analyze(ctx, g.Position(), budget)
	if err != nil {
		return nil, err
	}
	g.SetLastAnalysis(res)
	out.Analysis = res
	return out, nil
}

func (d *Dispatcher) resetBoard(ctx context.Context, g *session.Game, raw json.RawMessage) (any, error) {
	if err := decodeArgs(CommandResetBoard, raw, &noArgs{}); err != nil {
		return nil, err
	}
	rec, pos := g.ResetRecorded()
	d.archive(ctx, rec, "reset")
	return ResetOutcome{FEN: pos.FEN(), Message: "board reset to the starting position"}, nil
}

func (d *Dispatcher) moveHistory(_ context.Context, g *session.Game, raw json.RawMessage) (any, error) {
	if err := decodeArgs(CommandGetMoveHistory, raw, &noArgs{}); err != nil {
		return nil, err
	}
	moves := g.History()
	return HistoryOutcome{Moves: moves, Pairs: session.PairMoves(moves), Count: len(moves)}, nil
}

func (d *Dispatcher) explainPosition(_ context.Context, g *session.Game, raw json.RawMessage) (any, error) {
	var args explainArgs
	if err := decodeArgs(CommandExplainPosition, raw, &args); err != nil {
		return nil, err
	}
	if err := args.validate(); err != nil {
		return nil, err
	}
	return explain(g, args.Aspect), nil
}

// ArchiveEvicted is the registry eviction hook.
func (d *Dispatcher) ArchiveEvicted(g *session.Game, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ArchiveTimeout)
	defer cancel()
	d.archive(ctx, g.Record(), reason)
}

// archive is best effort; failures are logged and never fail the command.
func (d *Dispatcher) archive(ctx context.Context, rec session.Record, reason string) {
	if d.archiver == nil || len(rec.Moves) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ArchiveTimeout)
	defer cancel()
	if err := d.archiver.ArchiveGame(ctx, rec); err != nil {
		d.logger.Warn("archive_failed",
			zap.String("session_id", rec.SessionID),
			zap.String("game_id", rec.GameID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("game_archived",
		zap.String("session_id", rec.SessionID),
		zap.String("game_id", rec.GameID),
		zap.String("reason", reason),
		zap.Int("moves", len(rec.Moves)),
	)
}
