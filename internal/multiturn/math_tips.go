package multiturn

import (
	"fmt"
	"strings"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/chat"
	"github.com/samcharles93/rollout/internal/reasoning"
)

// MathTipsPrompt is appended to a wrong answer so the model continues
// with a self-correction inside the same assistant turn.
const MathTipsPrompt = "But wait... It seems I made a mistake,"

// MathTips gives a single in-turn hint after a wrong answer.
type MathTips struct {
	Base
	Scorer accuracy.Scorer
}

func NewMathTips(opts Options) *MathTips {
	return &MathTips{Base: Base{MaxTurns: opts.MaxTurns}, Scorer: opts.scorer()}
}

func (m *MathTips) CheckFinished(req *chat.InferRequest, result chat.ResponseChoice, turn int) (bool, error) {
	last, err := req.FromEnd(1)
	if err != nil {
		return false, err
	}
	// The hint is given once; after that the rollout ends.
	if strings.Contains(last.Content, MathTipsPrompt) {
		return true, nil
	}

	solution, err := req.Solution()
	if err != nil {
		return false, err
	}
	acc, err := accuracy.ScoreOne(m.Scorer, last.Content, solution)
	if err != nil {
		return false, fmt.Errorf("score turn %d: %w", turn, err)
	}
	if acc == 1 {
		return true, nil
	}
	return m.Base.CheckFinished(req, result, turn)
}

// Step drops the answer (and anything after the reasoning block) from the
// latest completion, appends the hint and writes it back as the assistant
// message the next turn continues from.
func (m *MathTips) Step(req *chat.InferRequest, result chat.ResponseChoice, _ int) (StepResult, error) {
	completion := reasoning.TruncateAt(result.Message.Content, reasoning.AnswerOpen, reasoning.ThinkClose)
	completion += MathTipsPrompt

	last := req.Last()
	if last == nil || last.Role != chat.RoleAssistant {
		req.Append(chat.RoleAssistant, completion)
		return StepResult{Request: req}, nil
	}

	if chat.IsContinuationStub(*last) {
		req.Pop()
		last = req.Last()
		if last == nil {
			return StepResult{}, fmt.Errorf("%w: continuation stub without a message before it", chat.ErrMalformedTranscript)
		}
	}
	last.Content = completion
	return StepResult{Request: req}, nil
}
