package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-analyzer/internal/archive"
	"github.com/park285/cheese-analyzer/internal/chat"
	"github.com/park285/cheese-analyzer/internal/chess"
	"github.com/park285/cheese-analyzer/internal/chess/rules"
	"github.com/park285/cheese-analyzer/internal/dispatch"
	"github.com/park285/cheese-analyzer/internal/domain"
	"github.com/park285/cheese-analyzer/internal/render"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

const (
	maxBodyBytes     = 64 << 10
	defaultGameLimit = 20
	maxGameLimit     = 100
)

type Commands interface {
	Execute(ctx context.Context, sessionID string, req chessdto.CommandRequest) chessdto.Envelope
	Status(sessionID string) session.StatusSnapshot
	AnalyzeFEN(ctx context.Context, fen string, budget chess.Budget) chessdto.Envelope
}

type Sessions interface {
	GetOrCreate(id string) *session.Game
	Delete(id string)
	ActiveCount() int
	Sessions() []session.Summary
}

type Chat interface {
	Reply(ctx context.Context, sessionID, message string) chat.Result
}

type Games interface {
	RecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error)
	GetGame(ctx context.Context, id string) (*domain.ArchivedGame, error)
}

type Renderer interface {
	RenderPNG(ctx context.Context, pos rules.Position, opts render.Options) ([]byte, error)
}

type EngineStater interface {
	EngineState() string
}

// Deps are the collaborators behind the API. Chat, Games, Renderer and
// Engine may be nil; their routes then answer 503 or omit the field.
type Deps struct {
	Commands Commands
	Sessions Sessions
	Chat     Chat
	Games    Games
	Renderer Renderer
	Engine   EngineStater
}

type Config struct {
	// OriginPatterns is passed to the websocket handshake.
	OriginPatterns []string
	// CommandTimeout bounds one command or chat turn.
	CommandTimeout time.Duration
}

type Server struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	mux    *http.ServeMux
}

func New(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	if deps.Commands == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = time.Minute
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the routed API with request-id, recovery and access-log
// middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = Recover(s.logger)(h)
	h = AccessLog(s.logger)(h)
	h = RequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /api/sessions/{id}/commands", s.handleCommand)
	s.mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/sessions/{id}/games", s.handleGames)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleGame)
	s.mux.HandleFunc("GET /api/sessions/{id}/board.png", s.handleBoard)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	Engine         string `json:"engine,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", ActiveSessions: s.deps.Sessions.ActiveCount()}
	if s.deps.Engine != nil {
		resp.Engine = s.deps.Engine.EngineState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	tools, err := dispatch.Tools()
	if err != nil {
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.Sessions()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Commands.Status(r.PathValue("id")))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	env := s.deps.Commands.Execute(r.Context(), r.PathValue("id"), chessdto.CommandRequest{Name: dispatch.CommandGetMoveHistory})
	writeJSON(w, statusFor(env), env)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type commandResponse struct {
	chessdto.Envelope
	Status session.StatusSnapshot `json:"status"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CommandTimeout)
	defer cancel()
	env := s.deps.Commands.Execute(ctx, id, req)
	writeJSON(w, statusFor(env), commandResponse{Envelope: env, Status: s.deps.Commands.Status(id)})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "chat is not configured")
		return
	}
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CommandTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.deps.Chat.Reply(ctx, r.PathValue("id"), req.Message))
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.deps.Games == nil {
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "archive is not configured")
		return
	}
	limit := defaultGameLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, chessdto.CodeInvalidArguments, "limit must be a positive integer")
			return
		}
		limit = min(n, maxGameLimit)
	}
	games, err := s.deps.Games.RecentGames(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Warn("archive_list_failed", zap.String("session_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, "archive unavailable")
		return
	}
	if games == nil {
		games = []*domain.ArchivedGame{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Games == nil {
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "archive is not configured")
		return
	}
	game, err := s.deps.Games.GetGame(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, archive.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "not_found", "game not found")
		return
	case err != nil:
		s.logger.Warn("archive_get_failed", zap.String("game_id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, "archive unavailable")
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/x-chess-pgn") {
		w.Header().Set("Content-Type", "application/x-chess-pgn")
		_, _ = io.WriteString(w, game.PGN)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Renderer == nil {
		writeError(w, http.StatusServiceUnavailable, chessdto.CodeInternal, "board rendering is not configured")
		return
	}
	g := s.deps.Sessions.GetOrCreate(r.PathValue("id"))
	st := g.Status()
	opts := render.Options{
		Flip:    queryBool(r, "flip"),
		Caption: fmt.Sprintf("%s to move - %s - %d moves", st.Turn, st.Label, st.MoveCount),
	}
	png, err := s.deps.Renderer.RenderPNG(r.Context(), g.Position(), opts)
	if err != nil {
		s.logger.Warn("board_render_failed", zap.String("session_id", g.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, "render failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

type analyzeRequest struct {
	FEN     string `json:"fen"`
	TimeMS  int    `json:"time_ms,omitempty"`
	MultiPV int    `json:"multipv,omitempty"`
	Depth   int    `json:"depth,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TimeMS < 0 || req.MultiPV < 0 || req.Depth < 0 || req.Depth > chess.MaxDepth {
		writeError(w, http.StatusBadRequest, chessdto.CodeInvalidArguments,
			fmt.Sprintf("time_ms and multipv must be >= 0, depth within 0..%d", chess.MaxDepth))
		return
	}
	budget := chess.Budget{
		Time:       time.Duration(req.TimeMS) * time.Millisecond,
		Variations: req.MultiPV,
		Depth:      req.Depth,
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CommandTimeout)
	defer cancel()
	env := s.deps.Commands.AnalyzeFEN(ctx, req.FEN, budget)
	writeJSON(w, statusFor(env), env)
}

// decode reads a bounded JSON body. On failure it has already answered.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, chessdto.CodeInvalidArguments, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an envelope's error code onto an HTTP status.
func statusFor(env chessdto.Envelope) int {
	if env.Success || env.Error == nil {
		return http.StatusOK
	}
	switch env.Error.Code {
	case chessdto.CodeInvalidPosition, chessdto.CodeInvalidArguments, chessdto.CodeUnknownCommand:
		return http.StatusBadRequest
	case chessdto.CodeIllegalMove:
		return http.StatusUnprocessableEntity
	case chessdto.CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	case chessdto.CodeAnalysisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, chessdto.Envelope{Success: false, Error: &chessdto.DomainError{Code: code, Message: message}})
}
