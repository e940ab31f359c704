package product

import "fmt"

// Pair identifies one (agent, task) product.
type Pair struct {
	Agent int `json:"agent"`
	Task  int `json:"task"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%d x %d", p.Agent, p.Task)
}

// Chain holds the product models of every (agent, task) pair laid out
// task-major in one global state space. Models are added and linked by a
// single owner; matrix slots are then filled one per worker.
type Chain struct {
	agents int
	tasks  int
	models [][]*Model
	offset [][]int
	mats   [][]*Matrices
	states int
}

// NewChain creates an empty chain for agents x tasks pairs.
func NewChain(agents, tasks int) *Chain {
	c := &Chain{
		agents: agents,
		tasks:  tasks,
		models: make([][]*Model, tasks),
		offset: make([][]int, tasks),
		mats:   make([][]*Matrices, tasks),
	}
	for t := 0; t < tasks; t++ {
		c.models[t] = make([]*Model, agents)
		c.offset[t] = make([]int, agents)
		c.mats[t] = make([]*Matrices, agents)
	}
	return c
}

// Agents returns the number of agents.
func (c *Chain) Agents() int { return c.agents }

// Tasks returns the number of tasks.
func (c *Chain) Tasks() int { return c.tasks }

// NumStates returns the size of the global state space.
func (c *Chain) NumStates() int { return c.states }

func (c *Chain) inRange(agent, task int) bool {
	return agent >= 0 && agent < c.agents && task >= 0 && task < c.tasks
}

// Add places m in its (agent, task) slot and assigns its global offset.
func (c *Chain) Add(m *Model) error {
	if !c.inRange(m.Agent, m.Task) {
		return fmt.Errorf("%w: %d x %d", ErrUnknownPair, m.Agent, m.Task)
	}
	if c.models[m.Task][m.Agent] != nil {
		return fmt.Errorf("product %d x %d added twice", m.Agent, m.Task)
	}
	c.models[m.Task][m.Agent] = m
	c.offset[m.Task][m.Agent] = c.states
	c.states += m.NumStates()
	return nil
}

// Model returns the product of (agent, task).
func (c *Chain) Model(agent, task int) (*Model, error) {
	if !c.inRange(agent, task) || c.models[task][agent] == nil {
		return nil, fmt.Errorf("%w: %d x %d", ErrUnknownPair, agent, task)
	}
	return c.models[task][agent], nil
}

// Offset returns the global index of local state 0 of (agent, task).
func (c *Chain) Offset(agent, task int) int {
	return c.offset[task][agent]
}

// InitialIndex returns the global index of the initial state of
// (agent, task).
func (c *Chain) InitialIndex(agent, task int) (int, error) {
	m, err := c.Model(agent, task)
	if err != nil {
		return 0, err
	}
	return c.offset[task][agent] + m.Initial, nil
}

// Link sets the chaining links of every model. The last agent of a task
// links back to its own initial state, and so does every agent of the
// last task.
func (c *Chain) Link() error {
	for t := 0; t < c.tasks; t++ {
		for a := 0; a < c.agents; a++ {
			m, err := c.Model(a, t)
			if err != nil {
				return err
			}
			self, _ := c.InitialIndex(a, t)
			nextAgent, nextTask := self, self
			if a < c.agents-1 {
				if nextAgent, err = c.InitialIndex(a+1, t); err != nil {
					return err
				}
			}
			if t < c.tasks-1 {
				if nextTask, err = c.InitialIndex(0, t+1); err != nil {
					return err
				}
			}
			m.Link(nextAgent, nextTask)
		}
	}
	return nil
}

// Pairs lists every pair task-major.
func (c *Chain) Pairs() []Pair {
	out := make([]Pair, 0, c.agents*c.tasks)
	for t := 0; t < c.tasks; t++ {
		for a := 0; a < c.agents; a++ {
			out = append(out, Pair{Agent: a, Task: t})
		}
	}
	return out
}

// SetMatrices fills the matrix slot of (agent, task). Distinct pairs may
// be set concurrently.
func (c *Chain) SetMatrices(agent, task int, m *Matrices) {
	c.mats[task][agent] = m
}

// Matrices returns the sparse export of (agent, task), or nil before it
// has been set.
func (c *Chain) Matrices(agent, task int) *Matrices {
	if !c.inRange(agent, task) {
		return nil
	}
	return c.mats[task][agent]
}
