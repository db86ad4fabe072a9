package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/dispatch"
	"github.com/park285/cheese-analyzer/internal/llm"
	"github.com/park285/cheese-analyzer/internal/msgcat"
	"github.com/park285/cheese-analyzer/internal/session"
)

type scriptedProvider struct {
	mu       sync.Mutex
	replies  []llm.Reply
	errs     []error
	requests []llm.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) (llm.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.Reply{}, p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return llm.Reply{}, llm.ErrEmptyReply
}

type fixedAnalyzer struct{}

func (fixedAnalyzer) AnalyzePosition(_ context.Context, pos rules.Position, _ chess.Budget) (chess.AnalysisResult, error) {
	return chess.AnalysisResult{
		Success:            true,
		FEN:                pos.FEN(),
		BestMove:           "Nf3",
		Evaluation:         chess.Evaluation{Kind: chess.EvalCentipawns, Pawns: 0.35},
		PrincipalVariation: []string{"Nf3", "Nc6"},
	}, nil
}

func newService(t *testing.T, provider llm.Provider) (*Service, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry()
	d, err := dispatch.New(reg, fixedAnalyzer{}, nil, dispatch.Config{}, nil)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	svc, err := NewService(provider, d, msgcat.Must(), 0, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, reg
}

func call(name, args string) *llm.ToolCall {
	return &llm.ToolCall{Name: name, Arguments: json.RawMessage(args)}
}

func TestReplyDispatchesToolCall(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Reply{
		{Call: call("make_move", `{"move":"e4"}`)},
		{Text: "You opened with the king's pawn."},
	}}
	svc, reg := newService(t, p)

	res := svc.Reply(context.Background(), "c1", "I play e4")
	if res.Reply != "You opened with the king's pawn." || res.Fallback {
		t.Fatalf("result = %+v", res)
	}
	if res.Command == nil || !res.Command.Success || res.Command.Command != "make_move" {
		t.Fatalf("command = %+v", res.Command)
	}
	if res.Status.MoveCount != 1 || res.Status.Turn != rules.Black {
		t.Fatalf("status not refreshed: %+v", res.Status)
	}
	if got := reg.GetOrCreate("c1").History(); len(got) != 1 || got[0] != "e4" {
		t.Fatalf("history = %v", got)
	}

	if len(p.requests) != 2 {
		t.Fatalf("provider calls = %d", len(p.requests))
	}
	first := p.requests[0]
	if len(first.Tools) != 5 || !strings.Contains(first.Messages[0].Content, rules.StartFEN) {
		t.Fatalf("first request = %+v", first)
	}
	if !strings.Contains(p.requests[1].Messages[1].Content, "played e4") {
		t.Fatalf("phrase prompt = %q", p.requests[1].Messages[1].Content)
	}
}

func TestReplyPlainText(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Reply{{Text: "Chess is fun."}}}
	svc, _ := newService(t, p)
	res := svc.Reply(context.Background(), "", "tell me something")
	if res.Reply != "Chess is fun." || res.Command != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestReplyFallsBackWhenModelFails(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("connection refused")}}
	svc, _ := newService(t, p)
	res := svc.Reply(context.Background(), "", "hello")
	if !res.Fallback || !strings.Contains(res.Reply, "white to move") {
		t.Fatalf("result = %+v", res)
	}
}

func TestReplyFallsBackWhenPhrasingFails(t *testing.T) {
	p := &scriptedProvider{
		replies: []llm.Reply{{Call: call("analyze_position", `{"question":"best?"}`)}},
		errs:    []error{nil, errors.New("timeout")},
	}
	svc, reg := newService(t, p)
	res := svc.Reply(context.Background(), "a", "what should white play?")
	if !res.Fallback || !strings.Contains(res.Reply, "Best move: Nf3") || !strings.Contains(res.Reply, "+0.35") {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := reg.GetOrCreate("a").LastAnalysis(); !ok {
		t.Fatalf("analysis not cached on the session")
	}
}

func TestReplyReportsCommandErrors(t *testing.T) {
	p := &scriptedProvider{
		replies: []llm.Reply{{Call: call("make_move", `{"move":"Ke2"}`)}},
		errs:    []error{nil, errors.New("down")},
	}
	svc, _ := newService(t, p)
	res := svc.Reply(context.Background(), "", "king to e2")
	if res.Command == nil || res.Command.Success || res.Command.Error.Code != "illegal_move" {
		t.Fatalf("command = %+v", res.Command)
	}
	if !strings.HasPrefix(res.Reply, "That did not work") || !strings.Contains(res.Reply, "Ke2") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestReplyWithoutProviderOrMessage(t *testing.T) {
	svc, _ := newService(t, nil)
	if res := svc.Reply(context.Background(), "", "   "); res.Reply != "Please type a message." {
		t.Fatalf("empty reply = %q", res.Reply)
	}
	if res := svc.Reply(context.Background(), "", "e4"); !res.Fallback || res.Command != nil {
		t.Fatalf("no-provider result = %+v", res)
	}
}
