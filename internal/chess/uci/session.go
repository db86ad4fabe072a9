package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout = 4 * time.Second
	stopDrainTimeout    = 2 * time.Second
	lineBuffer          = 256
)

var (
	// ErrEngineExited reports that the engine's stdout closed; the process is gone.
	ErrEngineExited = errors.New("engine process exited")
	// ErrDesynced reports that a timed-out search could not be drained back to idle.
	ErrDesynced = errors.New("engine protocol desynchronized")
)

type Options struct {
	Threads    int
	HashMB     int
	MultiPV    int
	SkillLevel int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Score is the engine's raw score, relative to the side to move.
type Score struct {
	Mate  bool
	Value int // centipawns, or plies-to-mate in moves when Mate is set
}

type Candidate struct {
	MultiPV   int
	Move      string
	Score     Score
	Principal []string
}

// Stats carries the diagnostics of the deepest info line seen.
type Stats struct {
	Depth    int
	SelDepth int
	Nodes    int64
	TimeMS   int64
}

type Session struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	done    chan struct{}
	readErr error

	mu      sync.Mutex
	search  sync.Mutex
	multiPV int
	logger  *zap.Logger
}

// NewSession starts the engine binary and runs the uci/isready handshake.
// ctx bounds the handshake only; the process outlives it until Close.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, lineBuffer),
		done:    make(chan struct{}),
		multiPV: opt.MultiPV,
		logger:  logger,
	}
	go s.pump(bufio.NewReader(stdoutPipe))

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type SearchRequest struct {
	FEN     string
	Moves   []string
	Limits  Limits
	MultiPV int
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Stats      Stats
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}

	if req.MultiPV > 0 && req.MultiPV != s.multiPV {
		if err := s.send(fmt.Sprintf("setoption name MultiPV value %d\n", req.MultiPV)); err != nil {
			return SearchResponse{}, fmt.Errorf("set multipv: %w", err)
		}
		if err := s.EnsureReady(ctx); err != nil {
			return SearchResponse{}, err
		}
		s.multiPV = req.MultiPV
	}

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	var stats Stats

	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Warn("uci_search_read_failed",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			if errors.Is(err, ErrEngineExited) {
				return SearchResponse{}, err
			}
			if drainErr := s.stopAndDrain(); drainErr != nil {
				return SearchResponse{}, fmt.Errorf("%w: %v (after %v)", ErrDesynced, drainErr, err)
			}
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if mv, cand, ok := parseInfo(line, &stats); ok {
				candidates[mv] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			var best string
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				best = parts[1]
			}
			return SearchResponse{
				Candidates: collapseCandidates(candidates),
				BestMove:   best,
				Stats:      stats,
			}, nil
		}
	}
}

// stopAndDrain halts a running search and discards output up to its bestmove,
// so the next request does not read a stale answer.
func (s *Session) stopAndDrain() error {
	if err := s.send("stop\n"); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopDrainTimeout)
	defer cancel()
	return s.awaitToken(ctx, "bestmove")
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	if opt.MultiPV <= 0 {
		return fmt.Errorf("multipv must be > 0: %d", opt.MultiPV)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis)*time.Millisecond + 3*time.Second
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

// parseInfo extracts a ranked line from an info message and folds the
// depth/nodes/time counters into stats.
func parseInfo(line string, stats *Stats) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv  = 1
		score    Score
		scoreSet bool
		pvIdx    = -1
		depth    int
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "depth":
			if i+1 < len(parts) {
				depth, _ = strconv.Atoi(parts[i+1])
				i++
			}
		case "seldepth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil && stats != nil && v > stats.SelDepth {
					stats.SelDepth = v
				}
				i++
			}
		case "nodes":
			if i+1 < len(parts) {
				if v, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil && stats != nil {
					stats.Nodes = v
				}
				i++
			}
		case "time":
			if i+1 < len(parts) {
				if v, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil && stats != nil {
					stats.TimeMS = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				if v, err := strconv.Atoi(parts[i+2]); err == nil {
					switch parts[i+1] {
					case "cp":
						score = Score{Value: v}
						scoreSet = true
					case "mate":
						score = Score{Mate: true, Value: v}
						scoreSet = true
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if stats != nil && depth > stats.Depth {
		stats.Depth = depth
	}

	if pvIdx == -1 || pvIdx >= len(parts) || !scoreSet {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]

	return multipv, Candidate{
		MultiPV:   multipv,
		Move:      principal[0],
		Score:     score,
		Principal: append([]string(nil), principal...),
	}, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Alive reports whether the engine's output stream is still open.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	if s.cmd != nil {
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// killed on purpose
			return nil
		}
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}

	return nil
}

func (s *Session) applyOptions(opt Options) error {
	threadCount := opt.Threads
	if threadCount <= 0 {
		threadCount = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", threadCount),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		fmt.Sprintf("setoption name MultiPV value %d\n", opt.MultiPV),
	}
	if opt.SkillLevel > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel))
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.stdin, msg); err != nil {
		if !s.Alive() {
			return fmt.Errorf("%w: %v", ErrEngineExited, err)
		}
		return err
	}
	return nil
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// pump is the only reader of stdout; lines survive a caller giving up on readLine.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.done)
	for {
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			s.lines <- trimmed
		}
		if err != nil {
			s.readErr = err
			close(s.lines)
			return
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", fmt.Errorf("%w: %v", ErrEngineExited, s.readErr)
		}
		return line, nil
	}
}
