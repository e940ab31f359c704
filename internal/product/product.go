// Package product composes an environment model with a task automaton
// into the combined planning model of one (agent, task) pair.
package product

import (
	"github.com/fentz26/rackplan/internal/automaton"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// Environment is the dense adjacency an environment model exposes.
type Environment[W any] interface {
	InitialIndex() int
	NumActions() int
	Edge(s, a int) warehouse.Edge[W]
}

// Key is a product state: environment state index S and automaton
// state Q.
type Key struct {
	S int `json:"s"`
	Q int `json:"q"`
}

// Model is a deterministic product MDP. States are dense indices into
// Keys; Next[i][a] is the successor of state i under action a.
//
// NextAgent and NextTask are the chaining links set by Link. They are
// indices into the owning Chain's global state space.
type Model struct {
	Agent   int
	Task    int
	Actions int
	Initial int

	Keys  []Key
	Index map[Key]int

	Next      [][]int
	Reward    [][]float64
	Accepting []bool
	Terminal  []bool
	Done      []bool

	NextAgent int
	NextTask  int
}

// Build walks every product state reachable from the environment's
// initial state paired with the automaton's initial state. States whose
// automaton component is done or failed are absorbing: each action
// self-loops with zero reward.
func Build[W any](env Environment[W], aut *automaton.Automaton[W], agent, task int) (*Model, error) {
	m := &Model{
		Agent:   agent,
		Task:    task,
		Actions: env.NumActions(),
		Index:   make(map[Key]int),
	}
	start := Key{S: env.InitialIndex(), Q: aut.Initial()}
	m.Initial = m.add(start, aut)
	m.NextAgent, m.NextTask = m.Initial, m.Initial

	for i := 0; i < len(m.Keys); i++ {
		k := m.Keys[i]
		next := make([]int, m.Actions)
		reward := make([]float64, m.Actions)
		if m.Terminal[i] {
			for a := range next {
				next[a] = i
			}
		} else {
			for a := 0; a < m.Actions; a++ {
				e := env.Edge(k.S, a)
				q, err := aut.Step(k.Q, e.Word)
				if err != nil {
					return nil, &BuildError{Agent: agent, Task: task, State: k, Err: err}
				}
				next[a] = m.add(Key{S: e.Next, Q: q}, aut)
				reward[a] = e.Reward
			}
		}
		m.Next = append(m.Next, next)
		m.Reward = append(m.Reward, reward)
	}
	return m, nil
}

// stateClass is the part of an automaton the state index needs.
type stateClass interface {
	IsAccepting(q int) bool
	IsDone(q int) bool
	IsTerminal(q int) bool
}

func (m *Model) add(k Key, aut stateClass) int {
	if i, ok := m.Index[k]; ok {
		return i
	}
	i := len(m.Keys)
	m.Index[k] = i
	m.Keys = append(m.Keys, k)
	m.Accepting = append(m.Accepting, aut.IsAccepting(k.Q))
	m.Done = append(m.Done, aut.IsDone(k.Q))
	m.Terminal = append(m.Terminal, aut.IsTerminal(k.Q))
	return i
}

// NumStates returns the number of reachable product states.
func (m *Model) NumStates() int { return len(m.Keys) }

// Link records the chaining links to the next agent on the same task and
// to the first agent on the next task.
func (m *Model) Link(nextAgent, nextTask int) {
	m.NextAgent = nextAgent
	m.NextTask = nextTask
}
