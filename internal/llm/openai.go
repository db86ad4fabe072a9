package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	transport
	apiKey string
	model  string
}

func NewOpenAIClient(baseURL, apiKey, model string, opts ...Option) *OpenAIClient {
	c := &OpenAIClient{
		transport: newTransport(baseURL, opts),
		apiKey:    strings.TrimSpace(apiKey),
		model:     strings.TrimSpace(model),
	}
	c.auth = func(req *fasthttp.Request) {
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}
	return c
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type completionRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	Temperature float64    `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Reply, error) {
	if c.baseURL == "" || c.model == "" {
		return Reply{}, ErrNotConfigured
	}
	body := completionRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, wireTool{Type: "function", Function: wireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}

	var resp completionResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chat/completions", body, &resp); err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}

	msg := resp.Choices[0].Message
	var reply Reply
	if msg.Content != nil {
		reply.Text = strings.TrimSpace(*msg.Content)
	}
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		reply.Call = &ToolCall{Name: fn.Name, Arguments: rawArguments(fn.Arguments)}
	} else if call, ok := ExtractInlineCall(reply.Text, req.Tools); ok {
		reply.Call = call
		reply.Text = ""
	}
	if reply.Text == "" && reply.Call == nil {
		return Reply{}, ErrEmptyReply
	}
	return reply, nil
}

func rawArguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// ExtractInlineCall recognises a tool call written into the text of a reply,
// either bare JSON or inside a fenced block, as some models do instead of
// using native tool calls. Only names present in tools are accepted.
func ExtractInlineCall(text string, tools []chessdto.ToolSpec) (*ToolCall, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var inline struct {
		Name      string          `json:"name"`
		Tool      string          `json:"tool"`
		Arguments  json.RawMessage `json:"arguments"`
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(s), &inline); err != nil {
		return nil, false
	}
	name := inline.Name
	if name == "" {
		name = inline.Tool
	}
	if len(inline.Arguments) == 0 {
		inline.Arguments = inline.Parameters
	}
	for _, t := range tools {
		if t.Name == name {
			return &ToolCall{Name: name, Arguments: unquoteArguments(inline.Arguments)}, true
		}
	}
	return nil, false
}

// unquoteArguments accepts arguments given either as an object or as a JSON
// string holding an object.
func unquoteArguments(raw json.RawMessage) json.RawMessage {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return rawArguments(s)
	}
	return raw
}

