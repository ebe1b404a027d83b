package multiturn

import (
	"errors"
	"slices"
	"testing"
)

func TestDefaultRegistryLookup(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()

	s, err := r.New("math_tip_trick", Options{MaxTurns: 3})
	if err != nil {
		t.Fatalf("New(math_tip_trick): %v", err)
	}
	tips, ok := s.(*MathTips)
	if !ok {
		t.Fatalf("got %T, want *MathTips", s)
	}
	if tips.MaxTurns != 3 {
		t.Fatalf("MaxTurns = %d, want 3", tips.MaxTurns)
	}

	s, err = r.New("math_tip_trick_multi_turn", Options{})
	if err != nil {
		t.Fatalf("New(math_tip_trick_multi_turn): %v", err)
	}
	if _, ok := s.(*MathTipsMultiTurn); !ok {
		t.Fatalf("got %T, want *MathTipsMultiTurn", s)
	}
}

func TestRegistryUnknownKey(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()
	_, err := r.Lookup("unknown_key")
	if !errors.Is(err, ErrUnknownScheduler) {
		t.Fatalf("err = %v, want ErrUnknownScheduler", err)
	}
	if _, err := r.New("unknown_key", Options{}); !errors.Is(err, ErrUnknownScheduler) {
		t.Fatalf("New err = %v, want ErrUnknownScheduler", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	f := func(o Options) (Scheduler, error) { return NewMathTips(o), nil }

	if err := r.Register("", f); err == nil {
		t.Fatal("empty name should fail")
	}
	if err := r.Register("x", nil); err == nil {
		t.Fatal("nil factory should fail")
	}
	if err := r.Register("b", f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", f); err == nil {
		t.Fatal("duplicate name should fail")
	}
	if got := r.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Names = %v", got)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	boom := errors.New("bad options")
	_ = r.Register("broken", func(Options) (Scheduler, error) { return nil, boom })
	if _, err := r.New("broken", Options{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped factory error", err)
	}
}

func TestDefaultRegistryIsFresh(t *testing.T) {
	t.Parallel()
	a := DefaultRegistry()
	_ = a.Register("extra", func(o Options) (Scheduler, error) { return NewMathTips(o), nil })
	if slices.Contains(DefaultRegistry().Names(), "extra") {
		t.Fatal("registries must not share state")
	}
}
