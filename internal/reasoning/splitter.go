// Package reasoning knows the tag conventions of reasoning-style completions:
// <think>...</think> blocks followed by a final <answer>...</answer>.
package reasoning

import "strings"

const (
	ThinkOpen   = "<think>"
	ThinkClose  = "</think>"
	AnswerOpen  = "<answer>"
	AnswerClose = "</answer>"
)

type SplitResult struct {
	Content   string
	Reasoning string
}

// SplitRaw separates visible content from <think> blocks. Tags match
// ASCII case-insensitively. An unclosed block swallows the rest of the text.
func SplitRaw(raw string) SplitResult {
	var content, reasoning strings.Builder

	for cursor := 0; cursor < len(raw); {
		open := indexFold(raw[cursor:], ThinkOpen)
		if open < 0 {
			content.WriteString(raw[cursor:])
			break
		}
		content.WriteString(raw[cursor : cursor+open])

		body := cursor + open + len(ThinkOpen)
		end := indexFold(raw[body:], ThinkClose)
		if end < 0 {
			reasoning.WriteString(raw[body:])
			break
		}
		reasoning.WriteString(raw[body : body+end])
		cursor = body + end + len(ThinkClose)
	}

	return SplitResult{Content: content.String(), Reasoning: reasoning.String()}
}

// indexFold returns the byte offset of tag in s, folding ASCII letters
// only, or -1. tag must be lower-case ASCII. Offsets always index s.
func indexFold(s, tag string) int {
	n := len(tag)
	for i := 0; i+n <= len(s); i++ {
		if s[i] == tag[0] && hasPrefixFold(s[i:], tag) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, tag string) bool {
	for j := 0; j < len(tag); j++ {
		c := s[j]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != tag[j] {
			return false
		}
	}
	return true
}

// TruncateAt cuts s at the earliest occurrence of any marker and returns
// the prefix. Markers that do not occur are ignored.
func TruncateAt(s string, markers ...string) string {
	cut := len(s)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(s, m); i >= 0 && i < cut {
			cut = i
		}
	}
	return s[:cut]
}

// ExtractAnswer returns the body of the last closed <answer> block.
func ExtractAnswer(s string) (string, bool) {
	end := strings.LastIndex(s, AnswerClose)
	if end < 0 {
		return "", false
	}
	start := strings.LastIndex(s[:end], AnswerOpen)
	if start < 0 {
		return "", false
	}
	return strings.TrimSpace(s[start+len(AnswerOpen) : end]), true
}

// LastBoxed returns the argument of the last \boxed{...}, honouring
// nested braces. Unbalanced input yields false.
func LastBoxed(s string) (string, bool) {
	const marker = `\boxed`
	i := strings.LastIndex(s, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimLeft(s[i+len(marker):], " ")
	if !strings.HasPrefix(rest, "{") {
		return "", false
	}
	depth := 0
	for j, r := range rest {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(rest[1:j]), true
			}
		}
	}
	return "", false
}
