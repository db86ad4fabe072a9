package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/park285/cheese-analyzer/internal/chess"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ArgumentError reports arguments that do not fit a command's schema.
type ArgumentError struct {
	Command string
	Reason  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid arguments: %s", e.Command, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

type makeMoveArgs struct {
	Move string `json:"move"`
	Side string `json:"side,omitempty"`
}

type analyzeArgs struct {
	Question string `json:"question"`
	Depth    *int   `json:"depth,omitempty"`
}

type explainArgs struct {
	Aspect string `json:"aspect,omitempty"`
}

type noArgs struct{}

// Explanation aspects.
const (
	AspectGeneral  = "general"
	AspectMaterial = "material"
	AspectPosition = "position"
	AspectTactics  = "tactics"
)

// decodeArgs decodes raw into dest, rejecting unknown fields and trailing data.
// Empty input and JSON null decode as an empty object.
func decodeArgs(command string, raw json.RawMessage, dest any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if trimmed[0] != '{' {
		return &ArgumentError{Command: command, Reason: "arguments must be a JSON object"}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return &ArgumentError{Command: command, Reason: err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &ArgumentError{Command: command, Reason: "unexpected data after arguments"}
	}
	return nil
}

func (a *makeMoveArgs) validate() error {
	a.Move = strings.TrimSpace(a.Move)
	if a.Move == "" {
		return &ArgumentError{Command: CommandMakeMove, Reason: "move is required"}
	}
	switch a.Side {
	case "", "white", "black":
	default:
		return &ArgumentError{Command: CommandMakeMove, Reason: fmt.Sprintf("side must be white or black, got %q", a.Side)}
	}
	return nil
}

func (a *analyzeArgs) validate() error {
	if strings.TrimSpace(a.Question) == "" {
		return &ArgumentError{Command: CommandAnalyzePosition, Reason: "question is required"}
	}
	if a.Depth != nil && (*a.Depth < 1 || *a.Depth > chess.MaxDepth) {
		return &ArgumentError{Command: CommandAnalyzePosition, Reason: fmt.Sprintf("depth must be between 1 and %d", chess.MaxDepth)}
	}
	return nil
}

func (a *explainArgs) validate() error {
	switch a.Aspect {
	case "":
		a.Aspect = AspectGeneral
	case AspectGeneral, AspectMaterial, AspectPosition, AspectTactics:
	default:
		return &ArgumentError{Command: CommandExplainPosition, Reason: fmt.Sprintf("unknown aspect %q", a.Aspect)}
	}
	return nil
}
