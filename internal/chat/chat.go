package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/dispatch"
	"github.com/park285/cheese-analyzer/internal/llm"
	"github.com/park285/cheese-analyzer/internal/msgcat"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

const (
	phraseTemperature = 0.5
	phraseMaxTokens   = 300
	defaultTimeout    = 30 * time.Second
)

// Dispatcher is the command surface the chat path drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, name string, args json.RawMessage) chessdto.Envelope
	Status(sessionID string) session.StatusSnapshot
}

// Result is one chat turn.
type Result struct {
	Reply    string                 `json:"reply"`
	Command  *chessdto.Envelope     `json:"command,omitempty"`
	Status   session.StatusSnapshot `json:"status"`
	Fallback bool                   `json:"fallback,omitempty"`
}

type Service struct {
	provider   llm.Provider
	dispatcher Dispatcher
	catalog    *msgcat.Catalog
	tools      []chessdto.ToolSpec
	timeout    time.Duration
	logger     *zap.Logger
}

// NewService builds the chat path. provider may be nil, in which case every
// turn gets a catalog reply.
func NewService(provider llm.Provider, dispatcher Dispatcher, catalog *msgcat.Catalog, timeout time.Duration, logger *zap.Logger) (*Service, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	tools, err := dispatch.Tools()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:   provider,
		dispatcher: dispatcher,
		catalog:    catalog,
		tools:      tools,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Reply handles one user message: the model picks at most one command, the
// dispatcher runs it, and the model phrases the outcome. Model failures fall
// back to catalog text; they are never returned as errors.
func (s *Service) Reply(ctx context.Context, sessionID, message string) Result {
	message = strings.TrimSpace(message)
	status := s.dispatcher.Status(sessionID)
	if message == "" {
		return Result{Reply: s.text("chat.empty", nil), Status: status}
	}
	if s.provider == nil {
		return Result{Reply: s.text("fallback.idle", map[string]any{"Status": status}), Status: status, Fallback: true}
	}

	system := s.text("prompt.system", status)
	llmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.provider.Complete(llmCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: message},
		},
		Tools: s.tools,
	})
	cancel()
	if err != nil {
		s.logger.Warn("chat_llm_failed", zap.String("session_id", sessionID), zap.Error(err))
		return Result{Reply: s.text("fallback.idle", map[string]any{"Status": status}), Status: status, Fallback: true}
	}
	if reply.Call == nil {
		return Result{Reply: reply.Text, Status: status}
	}

	env := s.dispatcher.Dispatch(ctx, sessionID, reply.Call.Name, reply.Call.Arguments)
	status = s.dispatcher.Status(sessionID)
	res := Result{Command: &env, Status: status}

	text, err := s.phrase(ctx, message, env, status)
	if err != nil {
		s.logger.Warn("chat_phrase_failed", zap.String("session_id", sessionID), zap.String("command", env.Command), zap.Error(err))
		res.Reply = s.fallback(env, status)
		res.Fallback = true
		return res
	}
	res.Reply = text
	return res
}

func (s *Service) phrase(ctx context.Context, message string, env chessdto.Envelope, status session.StatusSnapshot) (string, error) {
	prompt, err := s.catalog.Render("prompt.phrase", map[string]any{
		"Message": message,
		"Status":  status,
		"Command": env.Command,
		"Result":  describe(env),
	})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reply, err := s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.text("prompt.phrase_system", nil)},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: phraseTemperature,
		MaxTokens:   phraseMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return "", llm.ErrEmptyReply
	}
	return reply.Text, nil
}

// describe renders an envelope as one line for the phrasing prompt.
func describe(env chessdto.Envelope) string {
	if !env.Success {
		if env.Error != nil {
			return "failed (" + env.Error.Code + "): " + env.Error.Message
		}
		return "failed"
	}
	switch p := env.Payload.(type) {
	case dispatch.MoveOutcome:
		return fmt.Sprintf("played %s, now %s", p.SAN, p.Label)
	case dispatch.AnalysisOutcome:
		return fmt.Sprintf("best move %s, evaluation %s, line %s",
			p.Analysis.BestMove, p.Analysis.Evaluation.String(), strings.Join(p.Analysis.PrincipalVariation, " "))
	case dispatch.ResetOutcome:
		return p.Message
	case dispatch.HistoryOutcome:
		if p.Count == 0 {
			return "no moves played"
		}
		return strings.Join(p.Moves, " ")
	case dispatch.Explanation:
		return p.Summary
	default:
		return "done"
	}
}

func (s *Service) fallback(env chessdto.Envelope, status session.StatusSnapshot) string {
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return s.text("fallback.error", map[string]any{"Error": msg, "Status": status})
	}
	switch p := env.Payload.(type) {
	case dispatch.MoveOutcome:
		return s.text("fallback.move", map[string]any{"Move": p.SAN, "Status": status})
	case dispatch.AnalysisOutcome:
		return s.text("fallback.analysis", map[string]any{
			"BestMove":   p.Analysis.BestMove,
			"Evaluation": p.Analysis.Evaluation.String(),
			"Status":     status,
		})
	case dispatch.ResetOutcome:
		return s.text("fallback.reset", nil)
	case dispatch.HistoryOutcome:
		return s.text("fallback.history", map[string]any{"Status": status})
	case dispatch.Explanation:
		return s.text("fallback.explain", map[string]any{"Summary": p.Summary})
	default:
		return s.text("fallback.idle", map[string]any{"Status": status})
	}
}

// text renders key, degrading to the key itself if the catalog is broken.
func (s *Service) text(key string, data any) string {
	out, err := s.catalog.Render(key, data)
	if err != nil {
		s.logger.Error("catalog_render_failed", zap.String("key", key), zap.Error(err))
		return key
	}
	return out
}
