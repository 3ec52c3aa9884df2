package lifecycle

import (
	"context"
	"errors"
	"testing"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (c *fakeComponent) Start(context.Context) error {
	*c.log = append(*c.log, "start:"+c.name)
	return c.startErr
}

func (c *fakeComponent) Stop(context.Context) error {
	*c.log = append(*c.log, "stop:"+c.name)
	return c.stopErr
}

func TestRuntimeStartStopOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	r := NewRuntime(
		&fakeComponent{name: "a", log: &calls},
		&fakeComponent{name: "b", log: &calls},
	)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(calls) != len(want) {
		t.Fatalf("got calls %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestRuntimeStartFailureStopsStarted(t *testing.T) {
	t.Parallel()

	var calls []string
	r := NewRuntime(
		&fakeComponent{name: "a", log: &calls},
		&fakeComponent{name: "b", startErr: errors.New("boom"), log: &calls},
		&fakeComponent{name: "c", log: &calls},
	)

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(calls) != len(want) {
		t.Fatalf("got calls %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestRuntimeRegisterNil(t *testing.T) {
	t.Parallel()

	r := NewRuntime()
	r.Register(nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start with nil component: %v", err)
	}
}
