package multiturn

import (
	"fmt"
	"strings"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/chat"
)

// MathTipsMultiTurnPrompt is sent as a fresh user turn after a wrong answer.
const MathTipsMultiTurnPrompt = "The answer is not correct, It seems You made a mistake, you need to recheck very carefully."

// MathTipsMultiTurn asks one corrective follow-up question as a new user turn.
type MathTipsMultiTurn struct {
	Base
	Scorer accuracy.Scorer
}

func NewMathTipsMultiTurn(opts Options) *MathTipsMultiTurn {
	return &MathTipsMultiTurn{Base: Base{MaxTurns: opts.MaxTurns}, Scorer: opts.scorer()}
}

func (m *MathTipsMultiTurn) CheckFinished(req *chat.InferRequest, result chat.ResponseChoice, turn int) (bool, error) {
	lastQuery, err := req.FromEnd(2)
	if err != nil {
		return false, err
	}
	if strings.Contains(lastQuery.Content, MathTipsMultiTurnPrompt) {
		return true, nil
	}

	solution, err := req.Solution()
	if err != nil {
		return false, err
	}
	acc, err := accuracy.ScoreOne(m.Scorer, result.Message.Content, solution)
	if err != nil {
		return false, fmt.Errorf("score turn %d: %w", turn, err)
	}
	if acc == 1 {
		return true, nil
	}
	return m.Base.CheckFinished(req, result, turn)
}

func (m *MathTipsMultiTurn) Step(req *chat.InferRequest, _ chat.ResponseChoice, _ int) (StepResult, error) {
	req.Append(chat.RoleUser, MathTipsMultiTurnPrompt)
	return StepResult{Request: req}, nil
}
