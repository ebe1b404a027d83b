// Package accuracy scores completions against reference solutions.
package accuracy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrLengthMismatch = errors.New("completions and solutions differ in length")
	ErrUnknownScorer  = errors.New("unknown scorer")
)

// Scorer maps (completion, solution) pairs to scores in [0, 1].
// The result has one element per input pair, in order.
type Scorer interface {
	Score(completions, solutions []string) ([]float64, error)
}

type ScorerFunc func(completions, solutions []string) ([]float64, error)

func (f ScorerFunc) Score(completions, solutions []string) ([]float64, error) {
	return f(completions, solutions)
}

// ScoreOne scores a single pair.
func ScoreOne(s Scorer, completion, solution string) (float64, error) {
	out, err := s.Score([]string{completion}, []string{solution})
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("scorer returned %d scores for 1 input", len(out))
	}
	return out[0], nil
}

// Exact scores 1 when the trimmed completion equals the trimmed solution.
type Exact struct{}

func (Exact) Score(completions, solutions []string) ([]float64, error) {
	return pairwise(completions, solutions, func(c, s string) float64 {
		if strings.TrimSpace(c) == strings.TrimSpace(s) {
			return 1
		}
		return 0
	})
}

func pairwise(completions, solutions []string, fn func(c, s string) float64) ([]float64, error) {
	if len(completions) != len(solutions) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(completions), len(solutions))
	}
	out := make([]float64, len(completions))
	for i := range completions {
		out[i] = fn(completions[i], solutions[i])
	}
	return out, nil
}

var scorers = map[string]func() Scorer{
	"math":  func() Scorer { return Math{} },
	"exact": func() Scorer { return Exact{} },
}

// Lookup returns the scorer registered under name. An empty name means "math".
func Lookup(name string) (Scorer, error) {
	if name == "" {
		name = "math"
	}
	mk, ok := scorers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownScorer, name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

func Names() []string {
	names := make([]string, 0, len(scorers))
	for n := range scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
