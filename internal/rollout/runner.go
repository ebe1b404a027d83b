// Package rollout drives a multi-turn scheduler against a generator, one
// sample at a time or over a batch.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/rollout/internal/chat"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/multiturn"
)

// Generator produces one model turn for a transcript. A transcript that
// ends with a continuation stub asks for the preceding assistant message
// to be extended.
type Generator interface {
	Generate(ctx context.Context, req *chat.InferRequest) (chat.ResponseChoice, error)
}

type GeneratorFunc func(ctx context.Context, req *chat.InferRequest) (chat.ResponseChoice, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *chat.InferRequest) (chat.ResponseChoice, error) {
	return f(ctx, req)
}

const (
	StopFinished = "finished"
	StopLength   = "length"
	StopMaxTurns = "max_turns"
)

// Runner owns the turn loop for one scheduler/generator pair. It is safe
// for concurrent use as long as the scheduler and generator are.
type Runner struct {
	Scheduler multiturn.Scheduler
	// SchedulerName is recorded on traces.
	SchedulerName string
	Generator     Generator
	// MaxTurns is a hard cap applied on top of the scheduler's own policy.
	// Zero leaves termination to the scheduler.
	MaxTurns int
	Logger   logger.Logger

	now func() time.Time
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Runner) log() logger.Logger {
	if r.Logger == nil {
		return logger.Nop()
	}
	return r.Logger
}

// Run rolls out one sample. req is mutated in place; the returned trace
// holds a copy of the final transcript.
func (r *Runner) Run(ctx context.Context, req *chat.InferRequest) (*Trace, error) {
	if r.Scheduler == nil || r.Generator == nil {
		return nil, errors.New("rollout: runner needs a scheduler and a generator")
	}
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("rollout: %w: no messages", chat.ErrMalformedTranscript)
	}

	trace := &Trace{
		ID:        uuid.NewString(),
		Scheduler: r.SchedulerName,
	}
	log := r.log().With("trace", trace.ID)
	start := r.clock()

	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.Generator.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("generate turn %d: %w", turn, err)
		}
		merge(req, result)
		record := TurnRecord{
			Turn:         turn,
			Completion:   result.Message.Content,
			FinishReason: result.FinishReason,
			Usage:        result.Usage,
		}

		done, err := r.Scheduler.CheckFinished(req, result, turn)
		if err != nil {
			return nil, fmt.Errorf("check finished turn %d: %w", turn, err)
		}
		if done {
			trace.Turns = append(trace.Turns, record)
			trace.StopReason = StopFinished
			if result.Truncated() {
				trace.StopReason = StopLength
			}
			break
		}
		if r.MaxTurns > 0 && turn >= r.MaxTurns {
			trace.Turns = append(trace.Turns, record)
			trace.StopReason = StopMaxTurns
			log.Warn("turn cap reached before scheduler finished", "turns", turn)
			break
		}

		out, err := r.Scheduler.Step(req, result, turn)
		if err != nil {
			return nil, fmt.Errorf("step turn %d: %w", turn, err)
		}
		if out.Request != nil {
			req = out.Request
		}
		record.Extra = out.Extra
		trace.Turns = append(trace.Turns, record)

		if last := req.Last(); last != nil && last.Role == chat.RoleAssistant && last.Content != "" {
			req.Append(chat.RoleAssistant, "")
		}
		log.Debug("turn stepped", "turn", turn, "messages", len(req.Messages))
	}

	final := req.Clone()
	if final.EndsWithStub() {
		final.Pop()
	}
	trace.Messages = final.Messages
	trace.Data = final.Data
	trace.Duration = r.clock().Sub(start)

	log.Info("rollout done", "turns", len(trace.Turns), "stop", trace.StopReason, "duration", trace.Duration)
	return trace, nil
}

// merge folds a completion into the transcript: a trailing continuation
// stub is dropped and the completion extends the assistant message it
// continued; otherwise it becomes a new assistant message.
func merge(req *chat.InferRequest, result chat.ResponseChoice) {
	continuing := req.EndsWithStub()
	if continuing {
		req.Pop()
	}
	if last := req.Last(); continuing && last != nil && last.Role == chat.RoleAssistant {
		last.Content += result.Message.Content
		return
	}
	req.Append(chat.RoleAssistant, result.Message.Content)
}
