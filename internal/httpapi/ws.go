package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-analyzer/internal/chat"
	"github.com/park285/cheese-analyzer/internal/session"
	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

const (
	FrameCommand = "command"
	FrameChat    = "chat"
	FrameStatus  = "status"
	FrameError   = "error"

	wsPingInterval = 30 * time.Second
	wsPingTimeout  = 3 * time.Second
	wsReadLimit    = 64 << 10
)

// Frame is one client message on /ws.
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Reply answers one Frame. ID echoes the client's frame id.
type Reply struct {
	Type     string                  `json:"type"`
	ID       string                  `json:"id,omitempty"`
	Envelope *chessdto.Envelope      `json:"envelope,omitempty"`
	Chat     *chat.Result            `json:"chat,omitempty"`
	Status   *session.StatusSnapshot `json:"status,omitempty"`
	Error    *chessdto.DomainError   `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = session.DefaultID
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Info("ws_accept_failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.pingLoop(ctx, conn, cancel)

	logger := s.logger.With(zap.String("session_id", sessionID), zap.String("request_id", RequestIDFrom(r.Context())))
	logger.Debug("ws_connected")

	status := s.deps.Commands.Status(sessionID)
	if err := wsjson.Write(ctx, conn, Reply{Type: FrameStatus, Status: &status}); err != nil {
		return
	}

	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				logger.Info("ws_read_failed", zap.Error(err))
			}
			return
		}
		reply := s.handleFrame(ctx, sessionID, frame)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			logger.Info("ws_write_failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, sessionID string, frame Frame) Reply {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	switch frame.Type {
	case FrameCommand:
		env := s.deps.Commands.Execute(ctx, sessionID, chessdto.CommandRequest{Name: frame.Name, Arguments: frame.Arguments})
		status := s.deps.Commands.Status(sessionID)
		return Reply{Type: FrameCommand, ID: frame.ID, Envelope: &env, Status: &status}
	case FrameChat:
		if s.deps.Chat == nil {
			return frameError(frame.ID, chessdto.CodeInternal, "chat is not configured")
		}
		res := s.deps.Chat.Reply(ctx, sessionID, frame.Message)
		return Reply{Type: FrameChat, ID: frame.ID, Chat: &res, Status: &res.Status}
	case FrameStatus:
		status := s.deps.Commands.Status(sessionID)
		return Reply{Type: FrameStatus, ID: frame.ID, Status: &status}
	default:
		return frameError(frame.ID, chessdto.CodeInvalidArguments, "unknown frame type "+strconv.Quote(frame.Type))
	}
}

func frameError(id, code, msg string) Reply {
	return Reply{Type: FrameError, ID: id, Error: &chessdto.DomainError{Code: code, Message: msg}}
}

// pingLoop closes the connection after two consecutive missed pongs.
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	t := time.NewTicker(wsPingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, wsPingTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				cancel()
				return
			}
		}
	}
}
