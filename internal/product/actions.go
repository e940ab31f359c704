package product

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// reachesGoal marks every state from which an accepting or done state is
// reachable.
func reachesGoal(m *Model) []bool {
	n := m.NumStates()
	pred := make([][]int, n)
	for s, row := range m.Next {
		for _, j := range row {
			pred[j] = append(pred[j], s)
		}
	}
	ok := make([]bool, n)
	queue := make([]int, 0, n)
	for s := 0; s < n; s++ {
		if m.Accepting[s] || m.Done[s] {
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
	return ok
}

// ProperActions returns, per state, the actions whose successor can still
// reach an accepting state. States that cannot reach one get an empty
// set.
func ProperActions(m *Model) [][]int {
	ok := reachesGoal(m)
	proper := make([][]int, m.NumStates())
	for s, row := range m.Next {
		for a, j := range row {
			if ok[j] {
				proper[s] = append(proper[s], a)
			}
		}
	}
	return proper
}

// AvailableActions returns the proper actions of each state, or every
// action when a state has none.
func AvailableActions(m *Model, proper [][]int) [][]int {
	avail := make([][]int, m.NumStates())
	for s := range avail {
		if len(proper[s]) > 0 {
			avail[s] = proper[s]
			continue
		}
		all := make([]int, m.Actions)
		for a := range all {
			all[a] = a
		}
		avail[s] = all
	}
	return avail
}

// ShapedRewards returns the per state, per action reward with terminal
// states zeroed.
func ShapedRewards(m *Model) [][]float64 {
	out := make([][]float64, m.NumStates())
	for s, row := range m.Reward {
		r := make([]float64, m.Actions)
		if !m.Terminal[s] {
			copy(r, row)
		}
		out[s] = r
	}
	return out
}

// Matrices is the sparse export of a model: one transition matrix and
// one reward vector per action.
type Matrices struct {
	Transitions []*sparse.CSR
	Rewards     [][]float64
}

// BuildMatrices exports m. It only reads m, so pooled workers may call it
// on models they own.
func BuildMatrices(m *Model) (*Matrices, error) {
	n := m.NumStates()
	shaped := ShapedRewards(m)
	out := &Matrices{
		Transitions: make([]*sparse.CSR, m.Actions),
		Rewards:     make([][]float64, m.Actions),
	}
	for a := 0; a < m.Actions; a++ {
		// one successor per row
		indptr := make([]int, n+1)
		ind := make([]int, n)
		data := make([]float64, n)
		r := make([]float64, n)
		for s := 0; s < n; s++ {
			j := m.Next[s][a]
			if j < 0 || j >= n {
				return nil, fmt.Errorf("product %d x %d: successor %d of state %d outside %d states", m.Agent, m.Task, j, s, n)
			}
			indptr[s+1] = s + 1
			ind[s] = j
			data[s] = 1
			r[s] = shaped[s][a]
		}
		out.Transitions[a] = sparse.NewCSR(n, n, indptr, ind, data)
		out.Rewards[a] = r
	}
	return out, nil
}
