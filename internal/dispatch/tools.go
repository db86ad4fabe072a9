package dispatch

import (
	_ "embed"
	"fmt"
	"sync"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

// Command names. These are the only names Execute accepts.
const (
	CommandMakeMove        = "make_move"
	CommandAnalyzePosition = "analyze_position"
	CommandResetBoard      = "reset_board"
	CommandGetMoveHistory  = "get_move_history"
	CommandExplainPosition = "explain_position"
)

//go:embed tools.yaml
var toolsYAML []byte

var (
	toolsOnce sync.Once
	toolSpecs []chessdto.ToolSpec
	toolsErr  error
)

// Tools returns the tool schema presented to language models. The result is
// a fresh slice; callers may modify it.
func Tools() ([]chessdto.ToolSpec, error) {
	toolsOnce.Do(func() {
		toolSpecs, toolsErr = parseTools(toolsYAML)
	})
	if toolsErr != nil {
		return nil, toolsErr
	}
	return append([]chessdto.ToolSpec(nil), toolSpecs...), nil
}

func parseTools(raw []byte) ([]chessdto.ToolSpec, error) {
	var doc struct {
		Tools []chessdto.ToolSpec `yaml:"tools"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tool schema: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Tools))
	for _, t := range doc.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool schema: entry without name")
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tool schema: duplicate tool %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return doc.Tools, nil
}
