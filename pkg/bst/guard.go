// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
)

// Guard is a validated, not yet persisted transition. Obtain one with
// TransitionTo, perform the guarded work, then Commit to record the
// transition. Context gathered during the work can be attached through
// SetCtx before committing; dropping the guard without Commit leaves the
// object untouched.
type Guard struct {
	machine   *StateMachine
	objectTag string
	stateNew  string
	defTag    string
	userCtx   map[string]any
	force     bool
}

// TransitionTo validates that an object can move to the given state and
// returns a guard for committing it. The governing definition is
// resolved from the object type; pass a definition tag through
// WithDefinition to disambiguate.
func (m *StateMachine) TransitionTo(ctx context.Context, objectType, objectID, stateNew string, opts ...GuardOption) (*Guard, error) {
	g := &Guard{
		machine:   m,
		objectTag: ObjectTag(objectType, objectID),
		stateNew:  stateNew,
		userCtx:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.defTag == "" {
		defTag, err := m.DefTag(objectType)
		if err != nil {
			return nil, err
		}
		g.defTag = defTag
	}

	decision, err := m.CanTransition(ctx, g.objectTag, stateNew, g.defTag, g.force)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &TransitionError{
			ObjectTag: g.objectTag,
			DefTag:    g.defTag,
			StateNew:  stateNew,
			Reason:    decision.Reason,
		}
	}

	return g, nil
}

// GuardOption customizes a guarded transition.
type GuardOption func(*Guard)

// WithDefinition names the definition explicitly instead of resolving it
// from the object type.
func WithDefinition(defTag string) GuardOption {
	return func(g *Guard) { g.defTag = defTag }
}

// WithGuardForce marks the guarded transition as forced.
func WithGuardForce() GuardOption {
	return func(g *Guard) { g.force = true }
}

// SetCtx attaches a key to the transition's user context.
func (g *Guard) SetCtx(key string, value any) {
	g.userCtx[key] = value
}

// DefTag returns the definition tag the guard resolved.
func (g *Guard) DefTag() string { return g.defTag }

// Commit validates the transition again and persists it. The state may
// have moved since the guard was created, so Commit can fail with
// TransitionError.
func (g *Guard) Commit(ctx context.Context) (*TransitionInfo, error) {
	opts := []TransitionOption{WithUserCtx(g.userCtx)}
	if g.force {
		opts = append(opts, WithForce())
	}
	return g.machine.Transition(ctx, g.objectTag, g.stateNew, g.defTag, opts...)
}
