package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

var (
	ErrNotConfigured = errors.New("language model not configured")
	ErrEmptyReply    = errors.New("language model returned an empty reply")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a structured command chosen by the model.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Reply is what every provider produces: free text, a tool call, or both.
type Reply struct {
	Text string
	Call *ToolCall
}

type Request struct {
	Messages    []Message
	Tools       []chessdto.ToolSpec
	Temperature float64
	MaxTokens   int
}

// Provider is a language-model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}
