package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-analyzer/pkg/chessdto"
)

var testTools = []chessdto.ToolSpec{
	{Name: "make_move", Description: "play", Parameters: map[string]any{"type": "object"}},
	{Name: "reset_board", Description: "reset", Parameters: map[string]any{"type": "object"}},
}

func newTestServer(t *testing.T, handler fasthttp.RequestHandler) *OpenAIClient {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return NewOpenAIClient("http://llm.test/v1", "sk-test", "test-model",
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(2*time.Second),
	)
}

func TestCompleteNativeToolCall(t *testing.T) {
	var seen completionRequest
	var auth, path string
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		auth = string(ctx.Request.Header.Peek("Authorization"))
		_ = json.Unmarshal(ctx.PostBody(), &seen)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"choices":[{"message":{"content":null,"tool_calls":[{"function":{"name":"make_move","arguments":"{\"move\":\"e4\"}"}}]}}]}`)
	})

	reply, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "I play e4"}},
		Tools:    testTools,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply.Call == nil || reply.Call.Name != "make_move" || string(reply.Call.Arguments) != `{"move":"e4"}` {
		t.Fatalf("reply = %+v", reply)
	}
	if path != "/v1/chat/completions" || auth != "Bearer sk-test" {
		t.Fatalf("path=%s auth=%s", path, auth)
	}
	if seen.Model != "test-model" || len(seen.Tools) != 2 || seen.Tools[0].Type != "function" {
		t.Fatalf("request body = %+v", seen)
	}
}

func TestCompleteText(t *testing.T) {
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"choices":[{"message":{"content":"  Hello there.  "}}]}`)
	})
	reply, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil || reply.Text != "Hello there." || reply.Call != nil {
		t.Fatalf("reply = %+v err = %v", reply, err)
	}
}

func TestCompleteInlineCall(t *testing.T) {
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"name\\\":\\\"reset_board\\\",\\\"arguments\\\":{}}\\n```" + `"}}]}`)
	})
	reply, err := c.Complete(context.Background(), Request{Tools: testTools})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply.Call == nil || reply.Call.Name != "reset_board" || reply.Text != "" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&calls, 1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"choices":[{"message":{"content":"ok"}}]}`)
	})
	reply, err := c.Complete(context.Background(), Request{})
	if err != nil || reply.Text != "ok" {
		t.Fatalf("reply = %+v err = %v", reply, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&calls, 1)
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString(`{"error":"bad key"}`)
	})
	_, err := c.Complete(context.Background(), Request{})
	if err == nil || !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("err = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestCompleteEmptyAndUnconfigured(t *testing.T) {
	c := newTestServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"choices":[]}`)
	})
	if _, err := c.Complete(context.Background(), Request{}); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewOpenAIClient("", "", "").Complete(context.Background(), Request{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unconfigured err = %v", err)
	}
}

func TestExtractInlineCall(t *testing.T) {
	cases := []struct {
		text string
		want string
		args string
	}{
		{text: `{"name":"make_move","arguments":{"move":"Nf3"}}`, want: "make_move", args: `{"move":"Nf3"}`},
		{text: `{"tool":"make_move","arguments":"{\"move\":\"d4\"}"}`, want: "make_move", args: `{"move":"d4"}`},
		{text: `{"tool":"make_move","parameters":{"move":"c4"}}`, want: "make_move", args: `{"move":"c4"}`},
		{text: `{"name":"resign","arguments":{}}`},
		{text: `I think e4 is best.`},
		{text: `{broken`},
	}
	for _, tc := range cases {
		call, ok := ExtractInlineCall(tc.text, testTools)
		if tc.want == "" {
			if ok {
				t.Errorf("%q: unexpected call %+v", tc.text, call)
			}
			continue
		}
		if !ok || call.Name != tc.want || string(call.Arguments) != tc.args {
			t.Errorf("%q: call = %+v ok = %v", tc.text, call, ok)
		}
	}
}

func TestCompleteSendsExtraHeaders(t *testing.T) {
	var trace, auth string
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		trace = string(ctx.Request.Header.Peek("X-Trace-Tag"))
		auth = string(ctx.Request.Header.Peek("Authorization"))
		ctx.SetBodyString(`{"choices":[{"message":{"content":"ok"}}]}`)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})

	c := NewOpenAIClient("http://llm.test/v1", "sk-test", "test-model",
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		WithHeaderProvider(StaticHeaders(map[string]string{"X-Trace-Tag": "chess", "X-Blank": " "})),
		WithMaxConnsPerHost(4),
	)
	if c.MaxConnsPerHost() != 4 {
		t.Fatalf("max conns = %d", c.MaxConnsPerHost())
	}
	if _, err := c.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if trace != "chess" || auth != "Bearer sk-test" {
		t.Fatalf("trace=%q auth=%q", trace, auth)
	}
	if NewOpenAIClient("http://x", "", "m", WithMaxConnsPerHost(0)).MaxConnsPerHost() != 16 {
		t.Fatalf("non-positive cap should keep the default")
	}
}
