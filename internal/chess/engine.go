package chess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/chess/uci"
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrAnalysisFailed    = errors.New("analysis failed")
)

// AnalysisError ties an engine failure to the position it was asked about.
// errors.Is matches both Kind and the underlying cause.
type AnalysisError struct {
	Kind error
	FEN  string
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.FEN == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v for %s: %v", e.Kind, e.FEN, e.Err)
}

func (e *AnalysisError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Searcher is the engine process boundary. *uci.Handle implements it.
type Searcher interface {
	Start(ctx context.Context) error
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	Stop() error
}

// ResultCache stores finished analyses. Misses report false with a nil error.
type ResultCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type RankedMove struct {
	Rank       int        `json:"rank"`
	Move       string     `json:"move"`
	UCI        string     `json:"uci"`
	Evaluation Evaluation `json:"evaluation"`
	Line       []string   `json:"line,omitempty"`
}

type Diagnostics struct {
	Depth        int   `json:"depth"`
	SelDepth     int   `json:"seldepth,omitempty"`
	Nodes        int64 `json:"nodes"`
	EngineTimeMS int64 `json:"engine_time_ms"`
	WallTimeMS   int64 `json:"wall_time_ms"`
}

type AnalysisResult struct {
	Success            bool         `json:"success"`
	FEN                string       `json:"fen"`
	SideToMove         rules.Side   `json:"side_to_move"`
	BestMove           string       `json:"best_move"`
	BestMoveUCI        string       `json:"best_move_uci"`
	Evaluation         Evaluation   `json:"evaluation"`
	Ranked             []RankedMove `json:"ranked_moves"`
	PrincipalVariation []string     `json:"principal_variation"`
	Diagnostics        Diagnostics  `json:"diagnostics"`
	Cached             bool         `json:"cached,omitempty"`
}

type AnalyzerOption func(*Analyzer)

func WithResultCache(c ResultCache, ttl time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

func WithLogger(logger *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Analyzer funnels every analysis through one Searcher, one request at a time.
type Analyzer struct {
	engine   Searcher
	cache    ResultCache
	cacheTTL time.Duration
	logger   *zap.Logger

	mu sync.Mutex
}

func NewAnalyzer(engine Searcher, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start brings the engine up. It is a no-op when already running.
func (a *Analyzer) Start(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return &AnalysisError{Kind: ErrEngineUnavailable, Err: err}
	}
	return nil
}

// Stop releases the engine; the next Analyze starts it again.
func (a *Analyzer) Stop() error {
	return a.engine.Stop()
}

// Analyze validates fen and analyses it. Unparseable input never reaches the engine.
func (a *Analyzer) Analyze(ctx context.Context, fen string, budget Budget) (AnalysisResult, error) {
	pos, err := rules.ParsePosition(fen)
	if err != nil {
		return AnalysisResult{}, err
	}
	return a.AnalyzePosition(ctx, pos, budget)
}

func (a *Analyzer) AnalyzePosition(ctx context.Context, pos rules.Position, budget Budget) (AnalysisResult, error) {
	budget = budget.withDefaults()
	fen := pos.FEN()

	if pos.LegalMoveCount() == 0 {
		return AnalysisResult{}, &AnalysisError{Kind: ErrAnalysisFailed, FEN: fen, Err: errors.New("position has no legal moves")}
	}

	key := cacheKey(fen, budget)
	if cached, ok := a.lookup(ctx, key); ok {
		return cached, nil
	}

	started := time.Now()
	resp, err := a.search(ctx, uci.SearchRequest{
		FEN:     fen,
		Limits:  budget.limits(),
		MultiPV: budget.Variations,
	})
	wall := time.Since(started)
	if err != nil {
		var startErr *uci.StartError
		if errors.As(err, &startErr) {
			return AnalysisResult{}, &AnalysisError{Kind: ErrEngineUnavailable, FEN: fen, Err: err}
		}
		a.logger.Warn("analysis_failed",
			zap.String("fen", fen),
			zap.Duration("elapsed", wall),
			zap.Error(err),
		)
		return AnalysisResult{}, &AnalysisError{Kind: ErrAnalysisFailed, FEN: fen, Err: err}
	}

	result, err := buildResult(pos, resp, budget)
	if err != nil {
		return AnalysisResult{}, &AnalysisError{Kind: ErrAnalysisFailed, FEN: fen, Err: err}
	}
	result.Diagnostics.WallTimeMS = wall.Milliseconds()

	a.logger.Info("analysis_completed",
		zap.String("fen", fen),
		zap.String("best_move", result.BestMove),
		zap.String("eval", result.Evaluation.String()),
		zap.Int("depth", result.Diagnostics.Depth),
		zap.Int64("nodes", result.Diagnostics.Nodes),
		zap.Duration("elapsed", wall),
	)

	a.store(ctx, key, result)
	return result, nil
}

func (a *Analyzer) search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.Search(ctx, req)
}

func buildResult(pos rules.Position, resp uci.SearchResponse, budget Budget) (AnalysisResult, error) {
	best := strings.TrimSpace(resp.BestMove)
	if best == "" || best == "(none)" || best == "0000" {
		return AnalysisResult{}, errors.New("engine returned no best move")
	}
	bestSAN, err := pos.SANFromUCI(best)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("engine best move %s: %w", best, err)
	}

	turn := pos.Turn()
	result := AnalysisResult{
		Success:     true,
		FEN:         pos.FEN(),
		SideToMove:  turn,
		BestMove:    bestSAN,
		BestMoveUCI: best,
		Evaluation:  Evaluation{Kind: EvalCentipawns},
		Diagnostics: Diagnostics{
			Depth:        resp.Stats.Depth,
			SelDepth:     resp.Stats.SelDepth,
			Nodes:        resp.Stats.Nodes,
			EngineTimeMS: resp.Stats.TimeMS,
		},
	}

	candidates := resp.Candidates
	if len(candidates) > budget.Variations {
		candidates = candidates[:budget.Variations]
	}
	ranked := make([]RankedMove, 0, len(candidates))
	for _, c := range candidates {
		// Candidates are alternatives, so each one is read against the original position.
		san, err := pos.SANFromUCI(c.Move)
		if err != nil {
			continue
		}
		ranked = append(ranked, RankedMove{
			Rank:       len(ranked) + 1,
			Move:       san,
			UCI:        c.Move,
			Evaluation: normalize(c.Score, turn),
			Line:       pos.LineToSAN(c.Principal, principalPlies),
		})
	}
	result.Ranked = ranked

	if len(ranked) > 0 {
		result.Evaluation = ranked[0].Evaluation
		result.PrincipalVariation = ranked[0].Line
	}
	if len(result.PrincipalVariation) == 0 {
		result.PrincipalVariation = []string{bestSAN}
	}
	return result, nil
}

func (a *Analyzer) lookup(ctx context.Context, key string) (AnalysisResult, bool) {
	if a.cache == nil {
		return AnalysisResult{}, false
	}
	var cached AnalysisResult
	found, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		a.logger.Warn("analysis_cache_get_failed", zap.String("key", key), zap.Error(err))
		return AnalysisResult{}, false
	}
	if !found || !cached.Success {
		return AnalysisResult{}, false
	}
	cached.Cached = true
	return cached, true
}

func (a *Analyzer) store(ctx context.Context, key string, result AnalysisResult) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	if err := a.cache.Set(ctx, key, result, a.cacheTTL); err != nil {
		a.logger.Warn("analysis_cache_set_failed", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(fen string, b Budget) string {
	raw := fmt.Sprintf("%s|%d|%d|%d", fen, b.Time.Milliseconds(), b.Depth, b.Variations)
	sum := sha256.Sum256([]byte(raw))
	return "chess:analysis:" + hex.EncodeToString(sum[:])
}

// EngineState reports the engine lifecycle when the Searcher exposes one.
func (a *Analyzer) EngineState() string {
	if s, ok := a.engine.(interface{ State() uci.State }); ok {
		return s.State().String()
	}
	return "unknown"
}
