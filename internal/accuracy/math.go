package accuracy

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/samcharles93/rollout/internal/reasoning"
)

// Math compares final answers of math problems. The answer of a
// completion is the last <answer> block, else the last \boxed{}, else the
// last number outside <think>. Answers are compared as exact rationals
// when both parse, and as normalised strings otherwise.
type Math struct{}

func (Math) Score(completions, solutions []string) ([]float64, error) {
	return pairwise(completions, solutions, func(c, s string) float64 {
		gold, ok := goldAnswer(s)
		if !ok {
			return 0
		}
		got, ok := completionAnswer(c)
		if !ok {
			return 0
		}
		if equivalent(got, gold) {
			return 1
		}
		return 0
	})
}

var (
	// Commas count only as thousands separators: 1,234 is a number, 1,2 is not.
	numberPattern = regexp.MustCompile(`-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?(?:/\d+)?`)
	assignPattern = regexp.MustCompile(`^[A-Za-z]\s*=\s*`)
	fracPattern   = regexp.MustCompile(`^(-?)\\[dt]?frac\{([^{}]+)\}\{([^{}]+)\}$`)
)

func completionAnswer(text string) (string, bool) {
	if inner, ok := reasoning.ExtractAnswer(text); ok {
		if boxed, ok := reasoning.LastBoxed(inner); ok {
			return boxed, true
		}
		return inner, inner != ""
	}
	visible := reasoning.SplitRaw(text).Content
	if boxed, ok := reasoning.LastBoxed(visible); ok {
		return boxed, true
	}
	nums := numberPattern.FindAllString(visible, -1)
	if len(nums) == 0 {
		return "", false
	}
	return nums[len(nums)-1], true
}

func goldAnswer(solution string) (string, bool) {
	if boxed, ok := reasoning.LastBoxed(solution); ok {
		return boxed, true
	}
	if inner, ok := reasoning.ExtractAnswer(solution); ok {
		return inner, inner != ""
	}
	s := strings.TrimSpace(solution)
	return s, s != ""
}

var latexNoise = strings.NewReplacer(
	"$", "",
	`\left`, "",
	`\right`, "",
	`\!`, "",
	`\,`, "",
	`\;`, "",
	" ", "",
	"\t", "",
	"\n", "",
)

func normalize(s string) string {
	s = latexNoise.Replace(strings.TrimSpace(s))
	s = assignPattern.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, ".")
	return s
}

func toRat(s string) (*big.Rat, bool) {
	if m := fracPattern.FindStringSubmatch(s); m != nil {
		s = m[1] + m[2] + "/" + m[3]
	}
	if numberPattern.FindString(s) == s {
		s = strings.ReplaceAll(s, ",", "")
	}
	r, ok := new(big.Rat).SetString(s)
	return r, ok
}

func equivalent(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == b {
		return true
	}
	ra, okA := toRat(a)
	rb, okB := toRat(b)
	return okA && okB && ra.Cmp(rb) == 0
}
