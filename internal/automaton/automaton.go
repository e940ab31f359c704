// Package automaton provides finite task automata driven by the words an
// environment model emits, plus the concrete replenishment and
// regeneration tasks.
package automaton

import (
	"fmt"

	"github.com/fentz26/rackplan/internal/warehouse"
)

// TransitionFunc maps the current state and an observed word to the next
// state, or Invalid when q is not a state of the automaton.
type TransitionFunc[W any] func(q int, w W, tc *warehouse.TaskContext) int

// Definition describes one automaton.
type Definition[W any] struct {
	Name       string
	Initial    int
	States     []int
	Accepting  []int
	Fail       []int
	Done       []int
	Transition TransitionFunc[W]
}

// Automaton is a validated definition bound to a task context. It is
// immutable after New and may be shared by concurrent readers.
type Automaton[W any] struct {
	name       string
	initial    int
	states     map[int]struct{}
	accepting  map[int]struct{}
	fail       map[int]struct{}
	done       map[int]struct{}
	transition TransitionFunc[W]
	ctx        warehouse.TaskContext
}

// New validates def and binds it to a copy of tc.
func New[W any](def Definition[W], tc warehouse.TaskContext) (*Automaton[W], error) {
	if def.Transition == nil {
		return nil, fmt.Errorf("%w: %s has no transition function", ErrDefinition, def.Name)
	}
	if len(def.States) == 0 {
		return nil, fmt.Errorf("%w: %s has no states", ErrDefinition, def.Name)
	}
	a := &Automaton[W]{
		name:       def.Name,
		initial:    def.Initial,
		states:     toSet(def.States),
		transition: def.Transition,
		ctx:        tc,
	}
	if _, ok := a.states[def.Initial]; !ok {
		return nil, fmt.Errorf("%w: %s initial state %d is not a state", ErrDefinition, def.Name, def.Initial)
	}
	for _, group := range []struct {
		label string
		qs    []int
	}{
		{"accepting", def.Accepting},
		{"fail", def.Fail},
		{"done", def.Done},
	} {
		for _, q := range group.qs {
			if _, ok := a.states[q]; !ok {
				return nil, fmt.Errorf("%w: %s %s state %d is not a state", ErrDefinition, def.Name, group.label, q)
			}
		}
	}
	a.accepting = toSet(def.Accepting)
	a.fail = toSet(def.Fail)
	a.done = toSet(def.Done)
	return a, nil
}

func toSet(qs []int) map[int]struct{} {
	set := make(map[int]struct{}, len(qs))
	for _, q := range qs {
		set[q] = struct{}{}
	}
	return set
}

// Step advances the automaton from q on word w.
func (a *Automaton[W]) Step(q int, w W) (int, error) {
	if _, ok := a.states[q]; !ok {
		return Invalid, &InvalidStateError{Automaton: a.name, State: q}
	}
	next := a.transition(q, w, &a.ctx)
	if _, ok := a.states[next]; !ok {
		return Invalid, &InvalidStateError{Automaton: a.name, State: next}
	}
	return next, nil
}

// Name returns the automaton name.
func (a *Automaton[W]) Name() string { return a.name }

// Initial returns the initial state.
func (a *Automaton[W]) Initial() int { return a.initial }

// NumStates returns the number of states.
func (a *Automaton[W]) NumStates() int { return len(a.states) }

// Context returns the task context the automaton was bound to.
func (a *Automaton[W]) Context() warehouse.TaskContext { return a.ctx }

func (a *Automaton[W]) IsAccepting(q int) bool { return has(a.accepting, q) }
func (a *Automaton[W]) IsFail(q int) bool      { return has(a.fail, q) }
func (a *Automaton[W]) IsDone(q int) bool      { return has(a.done, q) }

// IsTerminal reports whether q is absorbing: a done or fail state.
func (a *Automaton[W]) IsTerminal(q int) bool {
	return a.IsDone(q) || a.IsFail(q)
}

func has(set map[int]struct{}, q int) bool {
	_, ok := set[q]
	return ok
}
