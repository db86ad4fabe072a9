package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle of the single engine process owned by a Handle.
type State int

const (
	NotStarted State = iota
	Running
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const startAttempts = 2

// ErrBinaryNotFound is returned when the configured engine path does not exist.
var ErrBinaryNotFound = errors.New("engine binary not found")

// StartError marks a failure to bring the engine process up, as opposed to
// a failure of a request against a running engine.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start engine %q: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

type HandleConfig struct {
	BinaryPath string
	Options    Options
	Logger     *zap.Logger
}

// Handle owns at most one engine process. Its mutex is held for the whole of
// every request, so requests never interleave on the process.
type Handle struct {
	path   string
	opt    Options
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	session *Session
	lastErr error
}

func NewHandle(cfg HandleConfig) *Handle {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opt := cfg.Options
	if opt.HashMB <= 0 {
		opt.HashMB = 16
	}
	if opt.MultiPV <= 0 {
		opt.MultiPV = 1
	}
	return &Handle{path: cfg.BinaryPath, opt: opt, logger: logger}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastError returns the failure that moved the handle to Failed, if any.
func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Start launches the engine if it is not running. Calling it while running is a no-op.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startLocked(ctx)
}

func (h *Handle) startLocked(ctx context.Context) error {
	if h.state == Running && h.session != nil {
		return nil
	}
	if h.state == Failed {
		h.state = NotStarted
	}

	if h.path == "" {
		return &StartError{Path: h.path, Err: fmt.Errorf("%w: path not configured", ErrBinaryNotFound)}
	}
	if _, err := os.Stat(h.path); err != nil {
		return &StartError{Path: h.path, Err: fmt.Errorf("%w: %v", ErrBinaryNotFound, err)}
	}

	var lastErr error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		started := time.Now()
		session, err := NewSession(ctx, h.path, h.opt, h.logger)
		if err == nil {
			h.session = session
			h.state = Running
			h.lastErr = nil
			h.logger.Info("uci_engine_started",
				zap.String("path", h.path),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil
		}
		lastErr = err
		h.logger.Warn("uci_engine_start_failed",
			zap.String("path", h.path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	h.state = Failed
	h.lastErr = lastErr
	return &StartError{Path: h.path, Err: lastErr}
}

// Search runs one request against the engine, starting it first if needed.
// If the process died or its protocol state can no longer be trusted, the
// handle drops it and the next call starts a fresh one.
func (h *Handle) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.startLocked(ctx); err != nil {
		return SearchResponse{}, err
	}

	resp, err := h.session.Search(ctx, req)
	if err != nil && (errors.Is(err, ErrEngineExited) || errors.Is(err, ErrDesynced) || !h.session.Alive()) {
		h.logger.Warn("uci_engine_lost", zap.Error(err))
		_ = h.session.Close()
		h.session = nil
		h.state = Failed
		h.lastErr = err
	}
	return resp, err
}

// Stop terminates the engine process. Safe when nothing is running.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		h.state = NotStarted
		return nil
	}
	err := h.session.Close()
	h.session = nil
	h.state = NotStarted
	h.logger.Info("uci_engine_stopped", zap.String("path", h.path))
	return err
}
