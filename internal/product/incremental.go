package product

import (
	"fmt"
	"slices"

	"github.com/james-bowman/sparse"
)

// Incremental is the sparse export of a linked chain: every product laid
// out in one global state space, with each model's own actions followed
// by two switch actions. SwitchAgent hands a task that has not been
// started to the next agent; SwitchTask moves on from a finished task to
// the first agent of the next one. A switch that is not available at a
// state self-loops and is never proper.
type Incremental struct {
	Local   int
	Actions int
	States  int
	Initial int

	Next        [][]int
	Transitions []*sparse.CSR
	Rewards     [][]float64
	Proper      [][]int
	Available   [][]int

	Owner     []Pair
	LocalIdx  []int
	Accepting []bool
	Goal      []bool
}

// SwitchAgent returns the index of the hand-over action.
func (g *Incremental) SwitchAgent() int { return g.Local }

// SwitchTask returns the index of the next-task action.
func (g *Incremental) SwitchTask() int { return g.Local + 1 }

// Export assembles the incremental model from the linked products and
// their per pair matrices. Link and SetMatrices must have run for every
// pair.
func (c *Chain) Export() (*Incremental, error) {
	pairs := c.Pairs()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrUnknownPair)
	}
	slices.SortFunc(pairs, func(x, y Pair) int { return c.Offset(x.Agent, x.Task) - c.Offset(y.Agent, y.Task) })

	first, err := c.Model(pairs[0].Agent, pairs[0].Task)
	if err != nil {
		return nil, err
	}
	local := first.Actions
	n := c.states
	g := &Incremental{
		Local:     local,
		Actions:   local + 2,
		States:    n,
		Next:      make([][]int, n),
		Rewards:   make([][]float64, local+2),
		Owner:     make([]Pair, n),
		LocalIdx:  make([]int, n),
		Accepting: make([]bool, n),
		Goal:      make([]bool, n),
	}
	if g.Initial, err = c.InitialIndex(0, 0); err != nil {
		return nil, err
	}
	for a := range g.Rewards {
		g.Rewards[a] = make([]float64, n)
	}

	terminal := make([]bool, n)
	for _, p := range pairs {
		m, err := c.Model(p.Agent, p.Task)
		if err != nil {
			return nil, err
		}
		if m.Actions != local {
			return nil, fmt.Errorf("product %s has %d actions, chain has %d", p, m.Actions, local)
		}
		mats := c.Matrices(p.Agent, p.Task)
		if mats == nil {
			return nil, fmt.Errorf("product %s: matrices not set", p)
		}
		off := c.Offset(p.Agent, p.Task)
		self := off + m.Initial
		for ls := 0; ls < m.NumStates(); ls++ {
			s := off + ls
			row := make([]int, g.Actions)
			for a := 0; a < local; a++ {
				row[a] = off + m.Next[ls][a]
				g.Rewards[a][s] = mats.Rewards[a][ls]
			}
			row[g.SwitchAgent()], row[g.SwitchTask()] = s, s
			if ls == m.Initial && m.NextAgent != self {
				row[g.SwitchAgent()] = m.NextAgent
			}
			if m.Terminal[ls] && m.NextTask != self {
				row[g.SwitchTask()] = m.NextTask
			}
			g.Next[s] = row
			g.Owner[s] = p
			g.LocalIdx[s] = ls
			g.Accepting[s] = m.Accepting[ls]
			terminal[s] = m.Terminal[ls]
			g.Goal[s] = m.Terminal[ls] && p.Task == c.tasks-1
		}
	}

	g.Transitions = make([]*sparse.CSR, g.Actions)
	for a := 0; a < g.Actions; a++ {
		indptr := make([]int, n+1)
		ind := make([]int, n)
		data := make([]float64, n)
		for s := 0; s < n; s++ {
			indptr[s+1] = s + 1
			ind[s] = g.Next[s][a]
			data[s] = 1
		}
		g.Transitions[a] = sparse.NewCSR(n, n, indptr, ind, data)
	}
	g.Proper, g.Available = g.properActions(terminal)
	return g, nil
}

// properActions keeps the actions whose successor can reach a goal.
// Goals get no proper action, terminal states only their next-task
// switch, and the hand-over switch counts only where it leaves the
// state.
func (g *Incremental) properActions(terminal []bool) ([][]int, [][]int) {
	usable := func(s, a int) bool {
		if g.Goal[s] {
			return false
		}
		if terminal[s] {
			return a == g.SwitchTask() && g.Next[s][a] != s
		}
		if a >= g.Local {
			return a == g.SwitchAgent() && g.Next[s][a] != s
		}
		return true
	}

	pred := make([][]int, g.States)
	for s, row := range g.Next {
		for a, j := range row {
			if usable(s, a) {
				pred[j] = append(pred[j], s)
			}
		}
	}
	ok := make([]bool, g.States)
	queue := make([]int, 0, g.States)
	for s := range g.Goal {
		if g.Goal[s] {
			ok[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		for _, s := range pred[j] {
			if !ok[s] {
				ok[s] = true
				queue = append(queue, s)
			}
		}
	}

	proper := make([][]int, g.States)
	avail := make([][]int, g.States)
	for s, row := range g.Next {
		for a, j := range row {
			if usable(s, a) && ok[j] {
				proper[s] = append(proper[s], a)
			}
		}
		if len(proper[s]) > 0 {
			avail[s] = proper[s]
			continue
		}
		all := make([]int, g.Actions)
		for a := range all {
			all[a] = a
		}
		avail[s] = all
	}
	return proper, avail
}
