// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
	"errors"
	"testing"
	"time"
)

const machineConfig = `
[Orders]
objects=order, priority.order
force_stop=canceled,interrupted
new=submitted
returned=submitted
submitted=ready
ready=sent_to_client
sent_to_client=client_confirmed, client_rejected
client_rejected=updated
updated=ready
`

func newTestMachine(t *testing.T, opts ...MachineOption) *StateMachine {
	t.Helper()

	item, err := ParseConfig(machineConfig)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return NewStateMachine(map[string]*ConfigItem{item.Definition.Tag(): item}, NewMemoryBackend(), opts...)
}

func TestStateMachine_Transition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)
	tag := ObjectTag("order", "1")

	// Unknown objects enter the graph at a root.
	info, err := m.Transition(ctx, tag, "new", "Orders.v1")
	if err != nil {
		t.Fatalf("Transition to root failed: %v", err)
	}
	if info.StateOld != "" || info.StateCurrent != "new" {
		t.Errorf("unexpected record: %+v", info)
	}

	info, err = m.Transition(ctx, tag, "submitted", "Orders.v1")
	if err != nil {
		t.Fatalf("Transition along edge failed: %v", err)
	}
	if info.StateOld != "new" || info.StateCurrent != "submitted" {
		t.Errorf("unexpected record: %+v", info)
	}

	current, err := m.CurrentState(ctx, tag, "Orders.v1")
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if current.StateCurrent != "submitted" {
		t.Errorf("expected current state submitted, got %q", current.StateCurrent)
	}
}

func TestStateMachine_Transition_NoEdge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)
	tag := ObjectTag("order", "1")

	if _, err := m.Transition(ctx, tag, "new", "Orders.v1"); err != nil {
		t.Fatal(err)
	}

	_, err := m.Transition(ctx, tag, "ready", "Orders.v1")
	if err == nil {
		t.Fatal("expected denial for a transition without an edge")
	}
	if !errors.Is(err, ErrTransitionDenied) {
		t.Errorf("expected ErrTransitionDenied, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if terr.StateNew != "ready" || terr.Reason == "" {
		t.Errorf("unexpected error detail: %+v", terr)
	}

	// The denial must not have moved the object.
	current, err := m.CurrentState(ctx, tag, "Orders.v1")
	if err != nil {
		t.Fatal(err)
	}
	if current.StateCurrent != "new" {
		t.Errorf("denied transition must not change state, got %q", current.StateCurrent)
	}
}

func TestStateMachine_Transition_UnknownObjectNonRoot(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	_, err := m.Transition(context.Background(), ObjectTag("order", "1"), "ready", "Orders.v1")
	if !errors.Is(err, ErrTransitionDenied) {
		t.Errorf("unknown objects must enter at a root, got %v", err)
	}
}

func TestStateMachine_Transition_Forced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)
	tag := ObjectTag("order", "1")

	// Forced transitions skip both the root and the edge checks, but the
	// target must still exist.
	info, err := m.Transition(ctx, tag, "updated", "Orders.v1", WithForce())
	if err != nil {
		t.Fatalf("forced transition failed: %v", err)
	}
	if !info.IsForced {
		t.Error("expected the record to be marked forced")
	}

	if _, err := m.Transition(ctx, tag, "no_such_state", "Orders.v1", WithForce()); !errors.Is(err, ErrTransitionDenied) {
		t.Errorf("force must not allow states outside the graph, got %v", err)
	}
}

func TestStateMachine_Transition_ForceStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)
	tag := ObjectTag("order", "1")

	if _, err := m.Transition(ctx, tag, "new", "Orders.v1"); err != nil {
		t.Fatal(err)
	}

	// No edge leads from new to canceled, but canceled interrupts from
	// any state.
	if _, err := m.Transition(ctx, tag, "canceled", "Orders.v1"); err != nil {
		t.Errorf("force-stop state must interrupt from any state: %v", err)
	}
}

func TestStateMachine_Transition_UnknownDefinition(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	_, err := m.Transition(context.Background(), ObjectTag("order", "1"), "new", "Nowhere.v1")
	if !errors.Is(err, ErrUnknownDefinition) {
		t.Errorf("expected ErrUnknownDefinition, got %v", err)
	}
}

func TestStateMachine_History(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)
	tag := ObjectTag("order", "1")

	for _, state := range []string{"new", "submitted", "ready"} {
		if _, err := m.Transition(ctx, tag, state, "Orders.v1"); err != nil {
			t.Fatal(err)
		}
	}

	history, err := m.History(ctx, tag, "Orders.v1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, state := range []string{"new", "submitted", "ready"} {
		if history[i].StateCurrent != state {
			t.Errorf("entry %d: expected %q, got %q", i, state, history[i].StateCurrent)
		}
	}
	if history[2].StateOld != "submitted" {
		t.Errorf("expected the last entry to record its predecessor, got %q", history[2].StateOld)
	}
}

func TestStateMachine_Transition_Timestamp(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2015, 10, 10, 18, 20, 30, 0, time.UTC)
	m := newTestMachine(t, withClock(func() time.Time { return fixed }))

	info, err := m.Transition(context.Background(), ObjectTag("order", "1"), "new", "Orders.v1")
	if err != nil {
		t.Fatal(err)
	}
	if info.TimestampUTC != "2015-10-10T18:20:30Z" {
		t.Errorf("unexpected timestamp: %q", info.TimestampUTC)
	}
}

func TestStateMachine_MassTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	err := m.MassTransition(ctx, []Request{
		{ObjectTag: ObjectTag("order", "1"), StateNew: "new", DefTag: "Orders.v1"},
		{ObjectTag: ObjectTag("order", "2"), StateNew: "returned", DefTag: "Orders.v1"},
		{ObjectTag: ObjectTag("order", "1"), StateNew: "submitted", DefTag: "Orders.v1"},
	})
	if err != nil {
		t.Fatalf("MassTransition failed: %v", err)
	}

	// The first failure aborts the batch.
	err = m.MassTransition(ctx, []Request{
		{ObjectTag: ObjectTag("order", "2"), StateNew: "ready", DefTag: "Orders.v1"},
		{ObjectTag: ObjectTag("order", "2"), StateNew: "submitted", DefTag: "Orders.v1"},
	})
	if !errors.Is(err, ErrTransitionDenied) {
		t.Errorf("expected ErrTransitionDenied, got %v", err)
	}
	current, err := m.CurrentState(ctx, ObjectTag("order", "2"), "Orders.v1")
	if err != nil {
		t.Fatal(err)
	}
	if current.StateCurrent != "returned" {
		t.Errorf("aborted batch must not apply later items, got %q", current.StateCurrent)
	}
}

func TestStateMachine_DefTag(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	defTag, err := m.DefTag("order")
	if err != nil {
		t.Fatalf("DefTag failed: %v", err)
	}
	if defTag != "Orders.v1" {
		t.Errorf("unexpected definition: %q", defTag)
	}

	if _, err := m.DefTag("invoice"); !errors.Is(err, ErrUnknownObjectType) {
		t.Errorf("expected ErrUnknownObjectType, got %v", err)
	}
}

func TestStateMachine_DefTag_Ambiguous(t *testing.T) {
	t.Parallel()

	first, err := ParseConfig("[Orders]\nobjects=order\nnew=submitted")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ParseConfig("[Shipments]\nobjects=order\npacked=shipped")
	if err != nil {
		t.Fatal(err)
	}
	m := NewStateMachine(map[string]*ConfigItem{
		first.Definition.Tag():  first,
		second.Definition.Tag(): second,
	}, NewMemoryBackend())

	if _, err := m.DefTag("order"); !errors.Is(err, ErrAmbiguousObjectType) {
		t.Errorf("expected ErrAmbiguousObjectType, got %v", err)
	}
}

func TestStateMachine_TransitionTo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	guard, err := m.TransitionTo(ctx, "order", "1", "new")
	if err != nil {
		t.Fatalf("TransitionTo failed: %v", err)
	}
	if guard.DefTag() != "Orders.v1" {
		t.Errorf("unexpected resolved definition: %q", guard.DefTag())
	}
	guard.SetCtx("operator", "halina")

	info, err := guard.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if info.UserCtx["operator"] != "halina" {
		t.Errorf("expected guard context on the record, got %v", info.UserCtx)
	}

	// Validation happens up front: an invalid target never yields a guard.
	if _, err := m.TransitionTo(ctx, "order", "1", "ready"); !errors.Is(err, ErrTransitionDenied) {
		t.Errorf("expected ErrTransitionDenied, got %v", err)
	}
	// Abandoning a guard changes nothing.
	if _, err := m.TransitionTo(ctx, "order", "1", "submitted"); err != nil {
		t.Fatal(err)
	}
	current, err := m.CurrentState(ctx, ObjectTag("order", "1"), "Orders.v1")
	if err != nil {
		t.Fatal(err)
	}
	if current.StateCurrent != "new" {
		t.Errorf("uncommitted guard must not move the object, got %q", current.StateCurrent)
	}
}

func TestStateMachine_TransitionTo_UnknownObjectType(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	if _, err := m.TransitionTo(context.Background(), "invoice", "1", "new"); !errors.Is(err, ErrUnknownObjectType) {
		t.Errorf("expected ErrUnknownObjectType, got %v", err)
	}
}
