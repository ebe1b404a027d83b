package reasoning

import (
	"strings"
	"testing"
)

func TestSplitRaw(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		in            string
		wantContent   string
		wantReasoning string
	}{
		{"no thinking", "x=1", "x=1", ""},
		{"closed block", "<think>add one</think>x=1", "x=1", "add one"},
		{"unclosed block", "<think>still going", "", "still going"},
		{"upper case tags", "<THINK>r</THINK>c", "c", "r"},
		{"interleaved", "A<think>r1</think>B<think>r2</think>C", "ABC", "r1r2"},
		{"lowercase grows", strings.Repeat("Ⱥ", 20) + "<think>a</think> 1", strings.Repeat("Ⱥ", 20) + " 1", "a"},
		{"lowercase shrinks", strings.Repeat("İ", 10) + "<think>r</think>c", strings.Repeat("İ", 10) + "c", "r"},
		{"invalid utf8", "\xff\xfe<think>r</think>c\xff", "\xff\xfec\xff", "r"},
		{"non-ascii inside block", "<think>ÄÖÜ</think>ß", "ß", "ÄÖÜ"},
		{"kelvin sign is not k", "<thin\u212a>x", "<thin\u212a>x", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitRaw(tc.in)
			if got.Content != tc.wantContent {
				t.Fatalf("content got %q want %q", got.Content, tc.wantContent)
			}
			if got.Reasoning != tc.wantReasoning {
				t.Fatalf("reasoning got %q want %q", got.Reasoning, tc.wantReasoning)
			}
		})
	}
}

func TestTruncateAt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"<think>...</think>x=1<answer>1</answer>", "<think>..."},
		{"...</think>x=1<answer>1</answer>", "..."},
		{"x=1<answer>1</answer> then </think>", "x=1"},
		{"no markers", "no markers"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TruncateAt(tc.in, AnswerOpen, ThinkClose); got != tc.want {
			t.Errorf("TruncateAt(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := TruncateAt("abc", ""); got != "abc" {
		t.Errorf("empty marker should be ignored, got %q", got)
	}
}

func TestExtractAnswer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"<think>r</think><answer> 1 </answer>", "1", true},
		{"<answer>a</answer> retry <answer>b</answer>", "b", true},
		{"<answer>unclosed", "", false},
		{"plain", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractAnswer(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ExtractAnswer(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestLastBoxed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{`so \boxed{2}`, "2", true},
		{`\boxed{1} then \boxed{\frac{1}{2}}`, `\frac{1}{2}`, true},
		{`\boxed {7}`, "7", true},
		{`\boxed{unbalanced`, "", false},
		{`\boxed 3`, "", false},
		{"none", "", false},
	}
	for _, tc := range cases {
		got, ok := LastBoxed(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("LastBoxed(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
