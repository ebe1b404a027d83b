package rollout

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/chat"
)

// Trace is the record of one finished rollout.
type Trace struct {
	ID         string         `json:"id"`
	Scheduler  string         `json:"scheduler,omitempty"`
	Messages   []chat.Message `json:"messages"`
	Data       map[string]any `json:"data,omitempty"`
	Turns      []TurnRecord   `json:"turns"`
	StopReason string         `json:"stop_reason"`
	Duration   time.Duration  `json:"duration_ns"`
}

type TurnRecord struct {
	Turn         int            `json:"turn"`
	Completion   string         `json:"completion"`
	FinishReason string         `json:"finish_reason"`
	Usage        *chat.Usage    `json:"usage,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// FinalCompletion is the content of the last assistant message.
func (t *Trace) FinalCompletion() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == chat.RoleAssistant {
			return t.Messages[i].Content
		}
	}
	return ""
}

type Summary struct {
	Samples     int            `json:"samples"`
	MeanTurns   float64        `json:"mean_turns"`
	StdDevTurns float64        `json:"stddev_turns"`
	MaxTurns    int            `json:"max_turns"`
	StopReasons map[string]int `json:"stop_reasons"`

	// Token totals over every turn that reported usage.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	// Accuracy is the mean score of final completions. It is only set by
	// SummarizeWithScorer.
	Accuracy *float64 `json:"accuracy,omitempty"`
}

func Summarize(traces []*Trace) Summary {
	s := Summary{Samples: len(traces), StopReasons: make(map[string]int)}
	if len(traces) == 0 {
		return s
	}
	turns := make([]float64, len(traces))
	for i, t := range traces {
		n := len(t.Turns)
		turns[i] = float64(n)
		s.MaxTurns = max(s.MaxTurns, n)
		s.StopReasons[t.StopReason]++
		for _, rec := range t.Turns {
			if rec.Usage != nil {
				s.PromptTokens += rec.Usage.PromptTokens
				s.CompletionTokens += rec.Usage.CompletionTokens
			}
		}
	}
	s.MeanTurns, s.StdDevTurns = stat.MeanStdDev(turns, nil)
	if len(traces) == 1 {
		s.StdDevTurns = 0
	}
	return s
}

// SummarizeWithScorer adds mean final-answer accuracy. Traces without a
// string solution are scored 0.
func SummarizeWithScorer(traces []*Trace, scorer accuracy.Scorer) (Summary, error) {
	s := Summarize(traces)
	if len(traces) == 0 {
		return s, nil
	}
	completions := make([]string, len(traces))
	solutions := make([]string, len(traces))
	for i, t := range traces {
		completions[i] = t.FinalCompletion()
		solutions[i], _ = t.Data[chat.SolutionKey].(string)
	}
	scores, err := scorer.Score(completions, solutions)
	if err != nil {
		return s, err
	}
	acc := stat.Mean(scores, nil)
	s.Accuracy = &acc
	return s, nil
}
