package tracestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samcharles93/rollout/internal/chat"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/rollout"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleTrace(id string) *rollout.Trace {
	return &rollout.Trace{
		ID:        id,
		Scheduler: "math_tip_trick",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "solve x+1=2"},
			{Role: chat.RoleAssistant, Content: "<answer>1</answer>"},
		},
		Data:       map[string]any{"solution": "1"},
		Turns:      []rollout.TurnRecord{{Turn: 1, Completion: "<answer>1</answer>", FinishReason: "stop"}},
		StopReason: rollout.StopFinished,
		Duration:   1500 * time.Millisecond,
	}
}

func TestSaveGet(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, sampleTrace("tr-1")); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get(ctx, "tr-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Scheduler != "math_tip_trick" || got.StopReason != rollout.StopFinished {
		t.Fatalf("trace = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "<answer>1</answer>" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Data["solution"] != "1" || len(got.Turns) != 1 || got.Duration != 1500*time.Millisecond {
		t.Fatalf("data=%v turns=%v duration=%v", got.Data, got.Turns, got.Duration)
	}

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveReplaces(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	tr := sampleTrace("tr-1")
	if err := st.Save(ctx, tr); err != nil {
		t.Fatal(err)
	}
	tr.StopReason = rollout.StopMaxTurns
	if err := st.Save(ctx, tr); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get(ctx, "tr-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.StopReason != rollout.StopMaxTurns {
		t.Fatalf("stop reason = %s", got.StopReason)
	}
}

func TestSaveAllAndList(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	traces := []*rollout.Trace{sampleTrace("a"), sampleTrace("b"), sampleTrace("c")}
	if err := st.SaveAll(ctx, traces); err != nil {
		t.Fatal(err)
	}

	got, err := st.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		ids := make([]string, len(got))
		for i, tr := range got {
			ids[i] = tr.ID
		}
		t.Fatalf("List(2) ids = %v, want [c b]", ids)
	}

	all, err := st.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d traces", len(all))
	}
}
