// Package multiturn decides, after every generation turn of a rollout,
// whether the sample is finished and how its transcript changes for the
// next turn.
package multiturn

import (
	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/chat"
)

// Scheduler is a multi-turn rollout policy.
//
// The driver calls CheckFinished after each turn and Step only when the
// rollout continues. turn is 1-based. Step must not rely on CheckFinished
// having been called first.
type Scheduler interface {
	Step(req *chat.InferRequest, result chat.ResponseChoice, turn int) (StepResult, error)
	CheckFinished(req *chat.InferRequest, result chat.ResponseChoice, turn int) (bool, error)
}

// StepResult carries the transcript for the next turn. Extra is optional
// side-channel metadata (logging, reward shaping) and may be nil.
type StepResult struct {
	Request *chat.InferRequest
	Extra   map[string]any
}

// Options configures a scheduler built through a Registry.
type Options struct {
	// MaxTurns bounds the rollout length. Zero means unbounded.
	MaxTurns int
	// Scorer judges correctness for policies that stop early on a right
	// answer. Factories fall back to accuracy.Math when nil.
	Scorer accuracy.Scorer
}

func (o Options) scorer() accuracy.Scorer {
	if o.Scorer == nil {
		return accuracy.Math{}
	}
	return o.Scorer
}

// Base is the default finish policy. Concrete schedulers embed it and
// call Base.CheckFinished after their own checks.
type Base struct {
	MaxTurns int
}

// CheckFinished stops on a length-truncated response or once the turn
// cap is reached.
func (b Base) CheckFinished(_ *chat.InferRequest, result chat.ResponseChoice, turn int) (bool, error) {
	if result.Truncated() {
		return true, nil
	}
	if b.MaxTurns > 0 && turn >= b.MaxTurns {
		return true, nil
	}
	return false, nil
}
