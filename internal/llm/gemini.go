package llm

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/valyala/fasthttp"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini generateContent endpoint.
type GeminiClient struct {
	transport
	apiKey string
	model  string
}

func NewGeminiClient(baseURL, apiKey, model string, opts ...Option) *GeminiClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGeminiBaseURL
	}
	c := &GeminiClient{
		transport: newTransport(baseURL, opts),
		apiKey:    strings.TrimSpace(apiKey),
		model:     strings.TrimPrefix(strings.TrimSpace(model), "models/"),
	}
	c.auth = func(req *fasthttp.Request) {
		if c.apiKey != "" {
			req.Header.Set("x-goog-api-key", c.apiKey)
		}
	}
	return c
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []wireFunction `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Reply, error) {
	if c.baseURL == "" || c.model == "" {
		return Reply{}, ErrNotConfigured
	}
	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens},
	}
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]wireFunction, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, wireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	var resp geminiResponse
	path := "/models/" + url.PathEscape(c.model) + ":generateContent"
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, body, &resp); err != nil {
		return Reply{}, err
	}
	if len(resp.Candidates) == 0 {
		return Reply{}, ErrEmptyReply
	}

	var (
		reply Reply
		texts []string
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil && reply.Call == nil {
			reply.Call = &ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args}
			continue
		}
		if s := strings.TrimSpace(part.Text); s != "" {
			texts = append(texts, s)
		}
	}
	reply.Text = strings.Join(texts, "\n")
	if reply.Call == nil {
		if call, ok := ExtractInlineCall(reply.Text, req.Tools); ok {
			reply.Call = call
			reply.Text = ""
		}
	}
	if reply.Text == "" && reply.Call == nil {
		return Reply{}, ErrEmptyReply
	}
	return reply, nil
}
