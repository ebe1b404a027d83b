// Package dataset reads rollout samples from JSONL and writes traces back.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/rollout/internal/chat"
	"github.com/samcharles93/rollout/internal/rollout"
)

const maxLineBytes = 16 << 20

var ErrNoMessages = errors.New("sample has no messages")

// Decode parses one sample object. "messages" becomes the transcript and
// every other top-level key lands in Data.
func Decode(line []byte) (*chat.InferRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	msgs, ok := raw["messages"]
	if !ok {
		return nil, ErrNoMessages
	}
	req := &chat.InferRequest{Data: make(map[string]any, len(raw)-1)}
	if err := json.Unmarshal(msgs, &req.Messages); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	delete(raw, "messages")
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		req.Data[k] = val
	}
	return req, nil
}

// Read decodes a JSONL stream. Blank lines are skipped; errors name the
// offending line.
func Read(r io.Reader) ([]*chat.InferRequest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []*chat.InferRequest
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		req, err := Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, req)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ReadFile(path string) ([]*chat.InferRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reqs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}

// Writer appends traces as JSON lines.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{w: bw, enc: enc}
}

func (w *Writer) Write(t *rollout.Trace) error {
	return w.enc.Encode(t)
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteFile writes all traces to path, replacing it.
func WriteFile(path string, traces []*rollout.Trace) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := NewWriter(f)
	for _, t := range traces {
		if err := w.Write(t); err != nil {
			return err
		}
	}
	return w.Flush()
}
