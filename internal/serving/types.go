package serving

import "github.com/samcharles93/rollout/internal/chat"

// ChatCompletionRequest is the OpenAI chat-completions body plus the vLLM
// extensions used to continue a partial assistant message.
type ChatCompletionRequest struct {
	Model                string         `json:"model"`
	Messages             []chat.Message `json:"messages"`
	Temperature          *float64       `json:"temperature,omitempty"`
	MaxTokens            int            `json:"max_tokens,omitempty"`
	Seed                 *int64         `json:"seed,omitempty"`
	ContinueFinalMessage bool           `json:"continue_final_message,omitempty"`
	AddGenerationPrompt  *bool          `json:"add_generation_prompt,omitempty"`
}

type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *chat.Usage  `json:"usage"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      chat.Message `json:"message"`
	FinishReason *string      `json:"finish_reason"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
