package serving

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/rollout/internal/chat"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, content, finish string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":`+
		quote(content)+`},"finish_reason":`+quote(finish)+`}]}`)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	var got ChatCompletionRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeCompletion(w, "<answer>1</answer>", "length")
	})

	temp := 0.7
	c := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "qwen", Temperature: &temp, MaxTokens: 64})
	req := &chat.InferRequest{Messages: []chat.Message{{Role: chat.RoleUser, Content: "solve x+1=2"}}}

	res, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Content != "<answer>1</answer>" || !res.Truncated() {
		t.Fatalf("result = %+v", res)
	}
	if got.Model != "qwen" || got.MaxTokens != 64 || got.Temperature == nil || *got.Temperature != 0.7 {
		t.Fatalf("request body = %+v", got)
	}
	if got.ContinueFinalMessage || got.AddGenerationPrompt != nil {
		t.Fatalf("plain turn must not request continuation: %+v", got)
	}
}

func TestBuildRequestContinuation(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Model: "m"})
	req := &chat.InferRequest{Messages: []chat.Message{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, Content: "draft, but wait"},
		{Role: chat.RoleAssistant, Content: ""},
	}}

	body := c.BuildRequest(req)
	if len(body.Messages) != 2 || body.Messages[1].Content != "draft, but wait" {
		t.Fatalf("messages = %+v", body.Messages)
	}
	if !body.ContinueFinalMessage || body.AddGenerationPrompt == nil || *body.AddGenerationPrompt {
		t.Fatalf("continuation flags = %v %v", body.ContinueFinalMessage, body.AddGenerationPrompt)
	}
	if len(req.Messages) != 3 {
		t.Fatal("BuildRequest must not mutate the transcript")
	}
}

func TestGenerateMissingFinishReasonDefaultsToStop(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":null}]}`)
	})
	res, err := NewClient(Config{BaseURL: srv.URL}).Generate(context.Background(), &chat.InferRequest{Messages: []chat.Message{{Role: "user", Content: "q"}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.FinishReason != chat.FinishStop {
		t.Fatalf("finish reason = %q", res.FinishReason)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()
	req := &chat.InferRequest{Messages: []chat.Message{{Role: "user", Content: "q"}}}

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"context too long","type":"invalid_request_error"}}`)
	})
	_, err := NewClient(Config{BaseURL: srv.URL}).Generate(context.Background(), req)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest || se.Message != "context too long" {
		t.Fatalf("err = %v", err)
	}
	if se.Retryable() {
		t.Fatal("400 must not be retryable")
	}

	empty := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	if _, err := NewClient(Config{BaseURL: empty.URL}).Generate(context.Background(), req); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, "ok", "stop")
	})
	req := &chat.InferRequest{Messages: []chat.Message{{Role: "user", Content: "q"}}}

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 2, RetryBackoff: time.Millisecond})
	res, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Content != "ok" || calls.Load() != 3 {
		t.Fatalf("content=%q calls=%d", res.Message.Content, calls.Load())
	}

	calls.Store(0)
	c = NewClient(Config{BaseURL: srv.URL, MaxRetries: 1, RetryBackoff: time.Millisecond})
	var se *StatusError
	if _, err := c.Generate(context.Background(), req); !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 after retries are exhausted", err)
	}
}

func TestGenerateHonoursContext(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0", RequestsPerSecond: 0.001})
	req := &chat.InferRequest{Messages: []chat.Message{{Role: "user", Content: "q"}}}

	// The first token is available immediately; use it up so the next
	// call has to wait on the limiter.
	_ = c.limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, req); err == nil {
		t.Fatal("expected limiter wait to fail on context deadline")
	}
}

func TestGenerateReportsUsage(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	})

	c := NewClient(Config{BaseURL: srv.URL})
	res, err := c.Generate(context.Background(), &chat.InferRequest{Messages: []chat.Message{{Role: chat.RoleUser, Content: "q"}}})
	if err != nil {
		t.Fatal(err)
	}
	want := chat.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}
	if res.Usage == nil || *res.Usage != want {
		t.Fatalf("usage = %+v, want %+v", res.Usage, want)
	}

	srvNoUsage := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "ok", "stop")
	})
	res, err = NewClient(Config{BaseURL: srvNoUsage.URL}).Generate(context.Background(), &chat.InferRequest{Messages: []chat.Message{{Role: chat.RoleUser, Content: "q"}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Usage != nil {
		t.Fatalf("usage = %+v, want nil", res.Usage)
	}
}
