// Package chat holds the per-turn state shared by the rollout driver,
// the schedulers and the serving client.
package chat

import (
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// SolutionKey is the Data key holding the reference solution.
const SolutionKey = "solution"

var (
	ErrMissingSolution     = errors.New("missing solution")
	ErrMalformedTranscript = errors.New("malformed transcript")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InferRequest is one sample's transcript plus the sample data it was
// built from. Schedulers mutate it in place between turns.
type InferRequest struct {
	Messages []Message      `json:"messages"`
	Data     map[string]any `json:"data,omitempty"`
}

// Usage is the token accounting a server reports for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseChoice is one generation result. Usage is nil when the server
// did not report it.
type ResponseChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
	Usage        *Usage  `json:"usage,omitempty"`
}

// Truncated reports whether generation stopped on the token limit.
func (c ResponseChoice) Truncated() bool {
	return c.FinishReason == FinishLength
}

// Last returns a pointer to the final message, or nil for an empty transcript.
func (r *InferRequest) Last() *Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[len(r.Messages)-1]
}

// FromEnd returns the message n positions from the end (1 is the last).
func (r *InferRequest) FromEnd(n int) (Message, error) {
	if n < 1 || len(r.Messages) < n {
		return Message{}, fmt.Errorf("%w: need %d messages, have %d", ErrMalformedTranscript, n, len(r.Messages))
	}
	return r.Messages[len(r.Messages)-n], nil
}

// Pop removes and returns the final message.
func (r *InferRequest) Pop() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	last := r.Messages[len(r.Messages)-1]
	r.Messages = r.Messages[:len(r.Messages)-1]
	return last, true
}

func (r *InferRequest) Append(role, content string) {
	r.Messages = append(r.Messages, Message{Role: role, Content: content})
}

// Solution returns the reference solution stored in Data.
func (r *InferRequest) Solution() (string, error) {
	v, ok := r.Data[SolutionKey]
	if !ok {
		return "", ErrMissingSolution
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, not a string", ErrMissingSolution, SolutionKey, v)
	}
	return s, nil
}

// IsContinuationStub reports whether m is the empty assistant placeholder
// that asks the generator to extend the preceding assistant message.
func IsContinuationStub(m Message) bool {
	return m.Role == RoleAssistant && m.Content == ""
}

// EndsWithStub reports whether the transcript ends with a continuation stub.
func (r *InferRequest) EndsWithStub() bool {
	last := r.Last()
	return last != nil && IsContinuationStub(*last)
}

// Clone deep-copies the transcript. Data values are copied shallowly.
func (r *InferRequest) Clone() *InferRequest {
	out := &InferRequest{
		Messages: append([]Message(nil), r.Messages...),
	}
	if r.Data != nil {
		out.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	return out
}
