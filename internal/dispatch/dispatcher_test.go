package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/chess/uci"
	"github.com/park285/cheese-analyzer/internal/chess/uci/ucitest"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

func TestMain(m *testing.M) {
	ucitest.MaybeServe()
	os.Exit(m.Run())
}

type recordingArchiver struct {
	mu      sync.Mutex
	records []session.Record
}

func (a *recordingArchiver) ArchiveGame(_ context.Context, rec session.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

type stubAnalyzer struct {
	err   error
	calls int
}

func (s *stubAnalyzer) AnalyzePosition(_ context.Context, pos rules.Position, _ chess.Budget) (chess.AnalysisResult, error) {
	s.calls++
	if s.err != nil {
		return chess.AnalysisResult{}, s.err
	}
	return chess.AnalysisResult{Success: true, FEN: pos.FEN(), BestMove: "e4"}, nil
}

func newTestDispatcher(t *testing.T, analyzer Analyzer) (*Dispatcher, *session.Registry, *recordingArchiver) {
	t.Helper()
	reg := session.NewRegistry()
	arch := &recordingArchiver{}
	d, err := New(reg, analyzer, arch, Config{Budget: chess.Budget{Time: 50 * time.Millisecond, Variations: 2}}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, reg, arch
}

func newEngineAnalyzer(t *testing.T) *chess.Analyzer {
	t.Helper()
	t.Setenv(ucitest.EnvHelper, "1")
	handle := uci.NewHandle(uci.HandleConfig{BinaryPath: os.Args[0], Options: uci.Options{HashMB: 16, MultiPV: 1}})
	a := chess.NewAnalyzer(handle)
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func run(t *testing.T, d *Dispatcher, id, name, args string) chessdto.Envelope {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return d.Execute(context.Background(), id, chessdto.CommandRequest{Name: name, Arguments: raw})
}

func wantCode(t *testing.T, env chessdto.Envelope, code string) {
	t.Helper()
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("envelope = %+v, want error code %s", env, code)
	}
	if env.Payload != nil {
		t.Fatalf("failed envelope carries a payload: %+v", env.Payload)
	}
}

func TestEndToEndScenario(t *testing.T) {
	d, reg, arch := newTestDispatcher(t, newEngineAnalyzer(t))

	env := run(t, d, "s1", CommandMakeMove, `{"move":"e4"}`)
	if !env.Success {
		t.Fatalf("e4: %+v", env.Error)
	}
	if mv := env.Payload.(MoveOutcome); mv.SideToMove != rules.Black || mv.SAN != "e4" {
		t.Fatalf("after e4: %+v", mv)
	}
	if env := run(t, d, "s1", CommandMakeMove, `{"move":"e5","side":"black"}`); !env.Success {
		t.Fatalf("e5: %+v", env.Error)
	}

	env = run(t, d, "s1", CommandAnalyzePosition, `{"question":"who is better?"}`)
	if !env.Success {
		t.Fatalf("analyze: %+v", env.Error)
	}
	out := env.Payload.(AnalysisOutcome)
	if !out.Analysis.Success || out.Question != "who is better?" {
		t.Fatalf("analysis = %+v", out)
	}
	g := reg.GetOrCreate("s1")
	if _, err := g.Position().Apply(out.Analysis.BestMove); err != nil {
		t.Fatalf("best move %s is not legal: %v", out.Analysis.BestMove, err)
	}
	if cached, ok := g.LastAnalysis(); !ok || cached.BestMove != out.Analysis.BestMove {
		t.Fatalf("analysis not cached on session")
	}

	wantCode(t, run(t, d, "s1", CommandMakeMove, `{"move":"illegal_token"}`), chessdto.CodeIllegalMove)
	if n := len(g.History()); n != 2 {
		t.Fatalf("history length = %d, want 2", n)
	}

	env = run(t, d, "s1", CommandResetBoard, "")
	if !env.Success || env.Payload.(ResetOutcome).FEN != rules.StartFEN {
		t.Fatalf("reset = %+v", env)
	}
	if len(g.History()) != 0 || g.Position().FEN() != rules.StartFEN {
		t.Fatalf("reset left state behind")
	}
	if arch.count() != 1 {
		t.Fatalf("reset archived %d games", arch.count())
	}
}

func TestUnknownCommandDoesNotCreateSession(t *testing.T) {
	d, reg, _ := newTestDispatcher(t, &stubAnalyzer{})
	env := run(t, d, "ghost", "resign", `{}`)
	wantCode(t, env, chessdto.CodeUnknownCommand)
	if env.Command != "resign" {
		t.Fatalf("command = %q", env.Command)
	}
	if reg.ActiveCount() != 0 {
		t.Fatalf("unknown command created a session")
	}
}

func TestArgumentShapeIsStrict(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &stubAnalyzer{})
	cases := []struct {
		name, args string
	}{
		{CommandMakeMove, `{}`},
		{CommandMakeMove, `{"move":""}`},
		{CommandMakeMove, `{"move":"e4","side":"green"}`},
		{CommandMakeMove, `{"move":"e4","promotion":"q"}`},
		{CommandMakeMove, `{"move":4}`},
		{CommandMakeMove, `["e4"]`},
		{CommandMakeMove, `{"move":"e4"} {}`},
		{CommandAnalyzePosition, `{}`},
		{CommandAnalyzePosition, `{"question":"?","depth":0}`},
		{CommandAnalyzePosition, `{"question":"?","depth":"deep"}`},
		{CommandResetBoard, `{"hard":true}`},
		{CommandGetMoveHistory, `{"limit":3}`},
		{CommandExplainPosition, `{"aspect":"endgame"}`},
	}
	for _, tc := range cases {
		env := run(t, d, "", tc.name, tc.args)
		if env.Success || env.Error == nil || env.Error.Code != chessdto.CodeInvalidArguments {
			t.Errorf("%s %s: envelope = %+v", tc.name, tc.args, env)
		}
	}
}

func TestOutOfTurnSideIsNotEnforcedButMoveIs(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &stubAnalyzer{})
	// The side hint is informational; legality comes from the position.
	if env := run(t, d, "", CommandMakeMove, `{"move":"e4","side":"black"}`); !env.Success {
		t.Fatalf("e4 with side=black: %+v", env.Error)
	}
	wantCode(t, run(t, d, "", CommandMakeMove, `{"move":"d4","side":"white"}`), chessdto.CodeIllegalMove)
}

func TestHistoryPairs(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &stubAnalyzer{})
	for _, mv := range []string{"e4", "e5", "Nf3"} {
		if env := run(t, d, "h", CommandMakeMove, `{"move":"`+mv+`"}`); !env.Success {
			t.Fatalf("%s: %+v", mv, env.Error)
		}
	}
	env := run(t, d, "h", CommandGetMoveHistory, "null")
	hist := env.Payload.(HistoryOutcome)
	if hist.Count != 3 || len(hist.Pairs) != 2 {
		t.Fatalf("history = %+v", hist)
	}
	if hist.Pairs[1] != (session.MovePair{Number: 2, White: "Nf3"}) {
		t.Fatalf("second pair = %+v", hist.Pairs[1])
	}
}

func TestAnalysisErrorsAreRetryable(t *testing.T) {
	stub := &stubAnalyzer{err: &chess.AnalysisError{Kind: chess.ErrEngineUnavailable, Err: errors.New("no binary")}}
	d, _, _ := newTestDispatcher(t, stub)
	env := run(t, d, "", CommandAnalyzePosition, `{"question":"best move?"}`)
	wantCode(t, env, chessdto.CodeEngineUnavailable)
	if !env.Error.Retryable {
		t.Fatalf("engine_unavailable should be retryable")
	}

	stub.err = &chess.AnalysisError{Kind: chess.ErrAnalysisFailed, Err: errors.New("timeout")}
	wantCode(t, run(t, d, "", CommandAnalyzePosition, `{"question":"best move?"}`), chessdto.CodeAnalysisFailed)
}

func TestAnalyzeFENValidatesBeforeEngine(t *testing.T) {
	stub := &stubAnalyzer{}
	d, reg, _ := newTestDispatcher(t, stub)

	env := d.AnalyzeFEN(context.Background(), "not a fen", chess.Budget{})
	wantCode(t, env, chessdto.CodeInvalidPosition)
	if stub.calls != 0 {
		t.Fatalf("invalid FEN reached the analyzer")
	}

	env = d.AnalyzeFEN(context.Background(), rules.StartFEN, chess.Budget{Variations: 1})
	if !env.Success || env.Command != CommandAnalyzePosition {
		t.Fatalf("analyze fen = %+v", env)
	}
	if reg.ActiveCount() != 0 {
		t.Fatalf("direct analysis created a session")
	}
}

func TestGameOverIsArchivedOnce(t *testing.T) {
	d, _, arch := newTestDispatcher(t, &stubAnalyzer{})
	for _, mv := range []string{"f3", "e5", "g4", "Qh4#"} {
		if env := run(t, d, "mate", CommandMakeMove, `{"move":"`+mv+`"}`); !env.Success {
			t.Fatalf("%s: %+v", mv, env.Error)
		}
	}
	if arch.count() != 1 {
		t.Fatalf("archived %d games after mate", arch.count())
	}
	wantCode(t, run(t, d, "mate", CommandMakeMove, `{"move":"a3"}`), chessdto.CodeIllegalMove)

	run(t, d, "mate", CommandResetBoard, "")
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.records) != 2 || arch.records[0].GameID != arch.records[1].GameID {
		t.Fatalf("reset should re-offer the same game id: %+v", arch.records)
	}
}

func TestExplainPosition(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &stubAnalyzer{})
	for _, mv := range []string{"e4", "e5", "Nf3", "Nc6", "Bb5"} {
		run(t, d, "x", CommandMakeMove, `{"move":"`+mv+`"}`)
	}
	run(t, d, "x", CommandAnalyzePosition, `{"question":"plan?"}`)

	env := run(t, d, "x", CommandExplainPosition, "")
	ex := env.Payload.(Explanation)
	if ex.Aspect != AspectGeneral || ex.Phase != rules.PhaseOpening {
		t.Fatalf("explanation = %+v", ex)
	}
	if ex.Opening == nil || ex.Opening.Code == "" {
		t.Fatalf("opening missing: %+v", ex)
	}
	if ex.LastAnalysis == nil || ex.Summary == "" {
		t.Fatalf("analysis or summary missing: %+v", ex)
	}

	env = run(t, d, "x", CommandExplainPosition, `{"aspect":"material"}`)
	if got := env.Payload.(Explanation).Summary; got != "Material is level at 39 each." {
		t.Fatalf("material summary = %q", got)
	}
}

func TestEvictedSessionsAreArchived(t *testing.T) {
	d, reg, arch := newTestDispatcher(t, &stubAnalyzer{})
	reg.OnEvict(d.ArchiveEvicted)

	run(t, d, "a", CommandMakeMove, `{"move":"e4"}`)
	reg.GetOrCreate("empty")
	reg.ClearAll()
	if arch.count() != 1 {
		t.Fatalf("archived %d games, want only the one with moves", arch.count())
	}
}

func TestToolSchemaMatchesHandlers(t *testing.T) {
	specs, err := Tools()
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	want := map[string]bool{
		CommandMakeMove: true, CommandAnalyzePosition: true, CommandResetBoard: true,
		CommandGetMoveHistory: true, CommandExplainPosition: true,
	}
	if len(specs) != len(want) {
		t.Fatalf("schema has %d tools", len(specs))
	}
	for _, s := range specs {
		if !want[s.Name] || s.Description == "" || s.Parameters["type"] != "object" {
			t.Fatalf("bad tool %+v", s)
		}
	}
	if _, err := json.Marshal(specs); err != nil {
		t.Fatalf("schema is not JSON encodable: %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, &stubAnalyzer{}, nil, Config{}, nil); err == nil {
		t.Fatalf("nil registry accepted")
	}
	if _, err := New(session.NewRegistry(), nil, nil, Config{}, nil); err == nil {
		t.Fatalf("nil analyzer accepted")
	}
}

func TestMissingEngineSurfacesUnavailable(t *testing.T) {
	handle := uci.NewHandle(uci.HandleConfig{BinaryPath: filepath.Join(t.TempDir(), "stockfish")})
	d, _, _ := newTestDispatcher(t, chess.NewAnalyzer(handle))
	wantCode(t, run(t, d, "", CommandAnalyzePosition, `{"question":"?"}`), chessdto.CodeEngineUnavailable)
}
