// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Sentinel errors for state machine failures.
var (
	// ErrTransitionDenied is the sentinel error wrapped by TransitionError.
	ErrTransitionDenied = errors.New("transition denied")
	// ErrUnknownDefinition is returned for a definition tag nothing was
	// registered under.
	ErrUnknownDefinition = errors.New("unknown definition")
	// ErrUnknownObjectType is returned for an object type no definition
	// governs.
	ErrUnknownObjectType = errors.New("unknown object type")
	// ErrAmbiguousObjectType is returned when an object type maps to more
	// than one definition and the caller did not name one.
	ErrAmbiguousObjectType = errors.New("ambiguous object type")
)

type (
	// TransitionError reports a rejected transition along with the
	// reason. It wraps ErrTransitionDenied for errors.Is() compatibility.
	TransitionError struct {
		ObjectTag string
		DefTag    string
		StateNew  string
		Reason    string
	}

	// TransitionInfo is the persisted record of one transition.
	TransitionInfo struct {
		StateOld     string         `json:"state_old"`
		StateCurrent string         `json:"state_current"`
		ObjectTag    string         `json:"object_tag"`
		DefTag       string         `json:"def_tag"`
		TimestampUTC string         `json:"transition_ts_utc"`
		ServerCtx    string         `json:"server_ctx"`
		UserCtx      map[string]any `json:"user_ctx"`
		IsForced     bool           `json:"is_forced"`
	}

	// Decision is the outcome of validating a transition without
	// performing it.
	Decision struct {
		Allowed      bool
		Reason       string
		StateCurrent string
		StateNew     string
	}

	// Request is one transition to perform, used with MassTransition.
	Request struct {
		ObjectTag string
		StateNew  string
		DefTag    string
		Opts      []TransitionOption
	}

	// TransitionOption customizes a single transition.
	TransitionOption func(*transitionOptions)

	transitionOptions struct {
		serverCtx string
		userCtx   map[string]any
		force     bool
	}

	// StateMachine validates transitions against registered definitions
	// and records them through a backend.
	StateMachine struct {
		config          map[string]*ConfigItem
		backend         Backend
		objectTypeToDef map[string][]string
		logger          *log.Logger
		now             func() time.Time
	}

	// MachineOption configures a StateMachine.
	MachineOption func(*StateMachine)
)

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition of %q to %q in %q denied: %s", e.ObjectTag, e.StateNew, e.DefTag, e.Reason)
}

// Unwrap returns ErrTransitionDenied so callers can use errors.Is for
// detection.
func (e *TransitionError) Unwrap() error { return ErrTransitionDenied }

// WithForce marks the transition as forced: any state the definition
// contains becomes a valid target, regardless of edges.
func WithForce() TransitionOption {
	return func(o *transitionOptions) { o.force = true }
}

// WithServerCtx attaches server-side context to the transition record.
func WithServerCtx(serverCtx string) TransitionOption {
	return func(o *transitionOptions) { o.serverCtx = serverCtx }
}

// WithUserCtx attaches caller-provided context to the transition record.
func WithUserCtx(userCtx map[string]any) TransitionOption {
	return func(o *transitionOptions) { o.userCtx = userCtx }
}

// WithMachineLogger sets the logger used for rejected transitions.
func WithMachineLogger(logger *log.Logger) MachineOption {
	return func(m *StateMachine) { m.logger = logger }
}

// withClock overrides the transition timestamp source in tests.
func withClock(now func() time.Time) MachineOption {
	return func(m *StateMachine) { m.now = now }
}

// NewStateMachine creates a state machine over the given definitions,
// keyed by definition tag, persisting through the backend.
func NewStateMachine(config map[string]*ConfigItem, backend Backend, opts ...MachineOption) *StateMachine {
	m := &StateMachine{
		config:          config,
		backend:         backend,
		objectTypeToDef: make(map[string][]string),
		logger:          log.New(io.Discard),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	// Map object types to the definitions that govern them.
	for defTag, item := range config {
		for _, objectType := range item.Objects {
			m.objectTypeToDef[objectType] = append(m.objectTypeToDef[objectType], defTag)
		}
	}
	return m
}

// ObjectTag builds the identifier an object is tracked under:
// <type>.<id>.
func ObjectTag(objectType, objectID string) string {
	return fmt.Sprintf("%s.%s", objectType, objectID)
}

// DefTag resolves the single definition governing an object type. An
// object type mapping to more than one definition is an error the caller
// resolves by naming the definition explicitly.
func (m *StateMachine) DefTag(objectType string) (string, error) {
	defTags, ok := m.objectTypeToDef[objectType]
	if !ok || len(defTags) == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownObjectType, objectType)
	}
	if len(defTags) > 1 {
		return "", fmt.Errorf("%w: %q maps to %s",
			ErrAmbiguousObjectType, objectType, strings.Join(defTags, ", "))
	}
	return defTags[0], nil
}

// CanTransition validates a transition without performing it. The
// returned error reports backend or configuration failures only; a
// disallowed transition is a non-nil Decision with Allowed false.
func (m *StateMachine) CanTransition(ctx context.Context, objectTag, stateNew, defTag string, force bool) (*Decision, error) {
	item, ok := m.config[defTag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefinition, defTag)
	}

	current, err := m.CurrentState(ctx, objectTag, defTag)
	if err != nil {
		return nil, err
	}
	stateCurrent := ""
	if current != nil {
		stateCurrent = current.StateCurrent
	}

	decision := &Decision{Allowed: true, StateCurrent: stateCurrent, StateNew: stateNew}

	// A forced transition is fine as long as the target state exists.
	if force && item.Definition.HasNode(stateNew) {
		return decision, nil
	}

	// A forced stop interrupts the process from any state.
	for _, stop := range item.ForceStop {
		if stateNew == stop {
			return decision, nil
		}
	}

	// Unknown objects may only enter the graph at a root.
	if current == nil && !isRoot(item.Definition, stateNew) {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("object %q of %q not found and target state %q is not one of roots %s",
			objectTag, defTag, stateNew, strings.Join(item.Definition.Roots(), ", "))
		m.logger.Warn("transition rejected", "object", objectTag, "def", defTag, "reason", decision.Reason)
		return decision, nil
	}

	if stateCurrent != "" && !item.Definition.HasEdge(stateCurrent, stateNew) {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("no transition found from %q to %q for %q in %q",
			stateCurrent, stateNew, objectTag, defTag)
		m.logger.Warn("transition rejected", "object", objectTag, "def", defTag, "reason", decision.Reason)
		return decision, nil
	}

	return decision, nil
}

// Transition validates and persists a transition, returning the recorded
// info. A disallowed transition is reported via TransitionError.
func (m *StateMachine) Transition(ctx context.Context, objectTag, stateNew, defTag string, opts ...TransitionOption) (*TransitionInfo, error) {
	options := &transitionOptions{}
	for _, opt := range opts {
		opt(options)
	}

	decision, err := m.CanTransition(ctx, objectTag, stateNew, defTag, options.force)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &TransitionError{
			ObjectTag: objectTag,
			DefTag:    defTag,
			StateNew:  stateNew,
			Reason:    decision.Reason,
		}
	}

	info := &TransitionInfo{
		StateOld:     decision.StateCurrent,
		StateCurrent: stateNew,
		ObjectTag:    objectTag,
		DefTag:       defTag,
		TimestampUTC: m.now().UTC().Format(time.RFC3339Nano),
		ServerCtx:    options.serverCtx,
		UserCtx:      options.userCtx,
		IsForced:     options.force,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding transition info: %w", err)
	}
	if err := m.backend.SetCurrentStateInfo(ctx, defTag, objectTag, data); err != nil {
		return nil, fmt.Errorf("persisting transition: %w", err)
	}

	return info, nil
}

// MassTransition performs the transitions in order, aborting on the
// first failure.
func (m *StateMachine) MassTransition(ctx context.Context, requests []Request) error {
	for _, req := range requests {
		if _, err := m.Transition(ctx, req.ObjectTag, req.StateNew, req.DefTag, req.Opts...); err != nil {
			return err
		}
	}
	return nil
}

// CurrentState returns the object's current transition record, or nil
// when the object is unknown.
func (m *StateMachine) CurrentState(ctx context.Context, objectTag, defTag string) (*TransitionInfo, error) {
	data, err := m.backend.CurrentStateInfo(ctx, defTag, objectTag)
	if err != nil {
		return nil, fmt.Errorf("reading current state: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var info TransitionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding current state: %w", err)
	}
	info.ObjectTag = objectTag
	info.DefTag = defTag
	return &info, nil
}

// History returns the object's transitions, oldest first.
func (m *StateMachine) History(ctx context.Context, objectTag, defTag string) ([]*TransitionInfo, error) {
	records, err := m.backend.History(ctx, defTag, objectTag)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	out := make([]*TransitionInfo, 0, len(records))
	for _, record := range records {
		var info TransitionInfo
		if err := json.Unmarshal(record, &info); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		out = append(out, &info)
	}
	return out, nil
}

func isRoot(def *Definition, name string) bool {
	for _, root := range def.Roots() {
		if root == name {
			return true
		}
	}
	return false
}
