// Package ucitest provides a scripted UCI engine for tests. A test binary
// re-executes itself and calls Serve when EnvHelper is set, which gives the
// code under test a real subprocess speaking the protocol.
package ucitest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// EnvHelper switches a test binary into engine mode.
const EnvHelper = "CHEESE_FAKE_UCI"

// EnvDelay makes every search sleep for the given number of milliseconds.
const EnvDelay = "CHEESE_FAKE_UCI_DELAY_MS"

// EnvHang makes the engine accept "go" and never answer.
const EnvHang = "CHEESE_FAKE_UCI_HANG"

// MaybeServe runs the fake engine and exits when the helper env var is set.
// Call it first thing in TestMain.
func MaybeServe() {
	if os.Getenv(EnvHelper) != "1" {
		return
	}
	Serve(os.Stdin, os.Stdout)
	os.Exit(0)
}

// Serve answers UCI commands from in until "quit" or EOF. Searches reply
// with the legal moves of the current position in sorted UCI order, one
// info line per requested variation, all scored "cp 25".
func Serve(in io.Reader, out io.Writer) {
	w := bufio.NewWriter(out)
	say := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
		w.Flush()
	}

	var (
		fen     = "startpos"
		moves   []string
		multiPV = 1
	)
	delay := time.Duration(envInt(EnvDelay)) * time.Millisecond
	hang := os.Getenv(EnvHang) == "1"

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			say("id name cheese-fake")
			say("id author tests")
			say("uciok")
		case "isready":
			say("readyok")
		case "setoption":
			if len(fields) >= 5 && fields[2] == "MultiPV" {
				if n, err := strconv.Atoi(fields[4]); err == nil && n > 0 {
					multiPV = n
				}
			}
		case "ucinewgame":
		case "position":
			fen, moves = parsePosition(fields[1:])
		case "go":
			if hang {
				continue
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			legal := legalMoves(fen, moves)
			if len(legal) == 0 {
				say("info depth 0 score mate 0")
				say("bestmove (none)")
				continue
			}
			n := multiPV
			if n > len(legal) {
				n = len(legal)
			}
			for i := 0; i < n; i++ {
				say("info depth 12 seldepth 16 multipv %d score cp %d nodes 4096 nps 100000 time 41 pv %s",
					i+1, 25-i*10, legal[i])
			}
			say("bestmove %s", legal[0])
		case "stop":
		case "quit":
			return
		}
	}
}

func parsePosition(args []string) (string, []string) {
	fen := "startpos"
	var moves []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "startpos":
			fen = "startpos"
		case "fen":
			end := i + 1
			for end < len(args) && args[end] != "moves" {
				end++
			}
			fen = strings.Join(args[i+1:end], " ")
			i = end - 1
		case "moves":
			moves = append(moves, args[i+1:]...)
			i = len(args)
		}
	}
	return fen, moves
}

func legalMoves(fen string, moves []string) []string {
	game := nchess.NewGame()
	if fen != "startpos" {
		opt, err := nchess.FEN(fen)
		if err != nil {
			return nil
		}
		game = nchess.NewGame(opt)
	}
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	out := make([]string, 0, 32)
	for _, mv := range game.ValidMoves() {
		out = append(out, mv.String())
	}
	sort.Strings(out)
	return out
}

func envInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return n
}
