package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Definition load failures. Every one of these makes the whole
// definition unusable; a definition either loads completely or not at
// all.
var (
	ErrDuplicateState       = errors.New("duplicate state name")
	ErrDuplicateAction      = errors.New("duplicate action for state")
	ErrDanglingReference    = errors.New("transition references undeclared state")
	ErrMissingInitialState  = errors.New("definition has no initial draft state")
	ErrMultipleInitialState = errors.New("definition has more than one initial state")
	ErrInvalidDocstatusEdge = errors.New("illegal docstatus edge")
)

// LoadError wraps a definition load failure with the record type and
// the offending state or transition.
type LoadError struct {
	RecordType string
	State      string
	Action     string
	Err        error
}

func (e *LoadError) Error() string {
	switch {
	case e.Action != "":
		return fmt.Sprintf("workflow for %s: transition %q from state %q: %v", e.RecordType, e.Action, e.State, e.Err)
	case e.State != "":
		return fmt.Sprintf("workflow for %s: state %q: %v", e.RecordType, e.State, e.Err)
	default:
		return fmt.Sprintf("workflow for %s: %v", e.RecordType, e.Err)
	}
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WorkflowDefinition is the validated, immutable workflow graph for
// one record type. Construct it through LoadDefinition only; the
// lookup maps are built once and never mutated afterwards, which makes
// a definition safe for unsynchronized concurrent reads.
type WorkflowDefinition struct {
	RecordType  string           `json:"record_type" validate:"required"`
	States      []*WorkflowState `json:"states"      validate:"required,min=1,dive"`
	Transitions []*Transition    `json:"transitions" validate:"dive"`

	// Unreachable lists states with no path from the initial state.
	// Permitted (manually seeded terminal states exist) but flagged.
	Unreachable []string `json:"-"`

	statesByName map[string]*WorkflowState
	byFromAction map[string]map[string]*Transition
	initial      *WorkflowState
}

// LoadDefinition validates the raw states and transitions and builds
// an immutable definition. Pure construction, no side effects.
func LoadDefinition(recordType string, states []*WorkflowState, transitions []*Transition) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{
		RecordType:   recordType,
		States:       states,
		Transitions:  transitions,
		statesByName: make(map[string]*WorkflowState, len(states)),
		byFromAction: make(map[string]map[string]*Transition, len(states)),
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(def); err != nil {
		return nil, &LoadError{RecordType: recordType, Err: err}
	}

	if err := def.indexStates(); err != nil {
		return nil, err
	}

	if err := def.resolveInitialState(); err != nil {
		return nil, err
	}

	if err := def.indexTransitions(); err != nil {
		return nil, err
	}

	def.Unreachable = def.unreachableStates()

	return def, nil
}

func (d *WorkflowDefinition) indexStates() error {
	for _, state := range d.States {
		if !state.DocStatus.Valid() {
			return &LoadError{RecordType: d.RecordType, State: state.Name, Err: fmt.Errorf("%w: %d", ErrInvalidDocstatusEdge, int(state.DocStatus))}
		}

		if _, exists := d.statesByName[state.Name]; exists {
			return &LoadError{RecordType: d.RecordType, State: state.Name, Err: ErrDuplicateState}
		}

		d.statesByName[state.Name] = state
	}

	return nil
}

// resolveInitialState picks the state new records start in. At most
// one state may be flagged initial and it must be a draft state; when
// none is flagged the first-declared draft state is used.
func (d *WorkflowDefinition) resolveInitialState() error {
	for _, state := range d.States {
		if !state.Initial {
			continue
		}

		if state.DocStatus != DocStatusDraft {
			return &LoadError{RecordType: d.RecordType, State: state.Name, Err: fmt.Errorf("%w: initial state must be a draft state", ErrMissingInitialState)}
		}

		if d.initial != nil {
			return &LoadError{RecordType: d.RecordType, State: state.Name, Err: ErrMultipleInitialState}
		}

		d.initial = state
	}

	if d.initial == nil {
		for _, state := range d.States {
			if state.DocStatus == DocStatusDraft {
				d.initial = state

				break
			}
		}
	}

	if d.initial == nil {
		return &LoadError{RecordType: d.RecordType, Err: ErrMissingInitialState}
	}

	return nil
}

func (d *WorkflowDefinition) indexTransitions() error {
	for _, tr := range d.Transitions {
		from, ok := d.statesByName[tr.FromState]
		if !ok {
			return &LoadError{RecordType: d.RecordType, State: tr.FromState, Action: tr.Action, Err: ErrDanglingReference}
		}

		to, ok := d.statesByName[tr.ToState]
		if !ok {
			return &LoadError{RecordType: d.RecordType, State: tr.ToState, Action: tr.Action, Err: ErrDanglingReference}
		}

		if !LegalEdge(from.DocStatus, to.DocStatus) {
			return &LoadError{
				RecordType: d.RecordType,
				State:      tr.FromState,
				Action:     tr.Action,
				Err:        fmt.Errorf("%w: %s -> %s", ErrInvalidDocstatusEdge, from.DocStatus, to.DocStatus),
			}
		}

		actions := d.byFromAction[tr.FromState]
		if actions == nil {
			actions = make(map[string]*Transition)
			d.byFromAction[tr.FromState] = actions
		}

		if _, exists := actions[tr.Action]; exists {
			return &LoadError{RecordType: d.RecordType, State: tr.FromState, Action: tr.Action, Err: ErrDuplicateAction}
		}

		actions[tr.Action] = tr
	}

	return nil
}

// unreachableStates walks the graph from the initial state and returns
// the names of states no transition path reaches.
func (d *WorkflowDefinition) unreachableStates() []string {
	visited := map[string]bool{d.initial.Name: true}
	queue := []string{d.initial.Name}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, tr := range d.byFromAction[current] {
			if !visited[tr.ToState] {
				visited[tr.ToState] = true
				queue = append(queue, tr.ToState)
			}
		}
	}

	var unreachable []string

	for _, state := range d.States {
		if !visited[state.Name] {
			unreachable = append(unreachable, state.Name)
		}
	}

	return unreachable
}

// State returns the declared state with the given name, or nil.
func (d *WorkflowDefinition) State(name string) *WorkflowState {
	return d.statesByName[name]
}

// InitialState returns the state new records start in.
func (d *WorkflowDefinition) InitialState() *WorkflowState {
	return d.initial
}

// FindTransition returns the unique transition leaving fromState with
// the given action name, or nil. Uniqueness is guaranteed at load.
func (d *WorkflowDefinition) FindTransition(fromState, action string) *Transition {
	return d.byFromAction[fromState][action]
}

// TransitionsFrom returns every transition leaving the given state, in
// declaration order.
func (d *WorkflowDefinition) TransitionsFrom(fromState string) []*Transition {
	var out []*Transition

	for _, tr := range d.Transitions {
		if tr.FromState == fromState {
			out = append(out, tr)
		}
	}

	return out
}

// DefaultStateFor returns the first-declared state with the given
// docstatus. Used when instantiating a new record (Draft) or producing
// an amended copy of a cancelled one.
func (d *WorkflowDefinition) DefaultStateFor(status DocStatus) *WorkflowState {
	if status == DocStatusDraft {
		return d.initial
	}

	for _, state := range d.States {
		if state.DocStatus == status {
			return state
		}
	}

	return nil
}
