package warehouse

import "fmt"

// Coarse actions.
const (
	MoveLeft = iota
	MoveRight
	MoveUp
	MoveDown

	CoarseActions
)

// CoarseWord is what a task automaton observes after a coarse move.
type CoarseWord struct {
	Pos Point
}

// CoarseModel is the low resolution warehouse: one state per coarse
// cell, four moves, no heading or payload.
type CoarseModel struct {
	reward  float64
	initial int

	gridSquare int
	width      int
	height     int
	states []Point
	index  map[Point]int
	edges  [][]Edge[CoarseWord]
}

// NewCoarseModel creates an empty coarse model whose every step yields
// the given reward.
func NewCoarseModel(reward float64) *CoarseModel {
	return &CoarseModel{
		reward: reward,
		index:  make(map[Point]int),
	}
}

// BuildStateSpace enumerates the coarse cells of a width x height
// warehouse where gridSquare fine cells fold into one coarse cell. It
// returns the coarse grid size.
func (m *CoarseModel) BuildStateSpace(width, height, gridSquare int) (int, int) {
	if gridSquare < 1 {
		gridSquare = 1
	}
	m.gridSquare = gridSquare
	m.width = (width + gridSquare - 1) / gridSquare
	m.height = (height + gridSquare - 1) / gridSquare
	m.states = m.states[:0]
	m.index = make(map[Point]int, m.width*m.height)
	for x := 0; x < m.width; x++ {
		for y := 0; y < m.height; y++ {
			p := Point{X: x, Y: y}
			m.index[p] = len(m.states)
			m.states = append(m.states, p)
		}
	}
	return m.width, m.height
}

// Step applies one move. Movement is clamped at the grid edge, and
// vertical moves are blocked on odd columns inside the rack block so
// robots cannot cut through racks. The rack block is measured in coarse
// cells.
func (m *CoarseModel) Step(s Point, action int, layout *Layout) (Point, float64, CoarseWord, error) {
	next := s
	switch action {
	case MoveLeft:
		if s.X > 0 {
			next.X--
		}
	case MoveRight:
		if s.X < m.width-1 {
			next.X++
		}
	case MoveUp:
		if !m.rackBlocked(s, layout) && s.Y < m.height-1 {
			next.Y++
		}
	case MoveDown:
		if !m.rackBlocked(s, layout) && s.Y > 0 {
			next.Y--
		}
	default:
		return s, 0, CoarseWord{}, fmt.Errorf("%w: coarse action %d", ErrUnknownAction, action)
	}
	return next, m.reward, CoarseWord{Pos: next}, nil
}

func (m *CoarseModel) rackBlocked(s Point, layout *Layout) bool {
	lo, hi, ok := layout.RackBounds()
	if !ok {
		return false
	}
	if g := m.gridSquare; g > 1 {
		lo = Point{X: lo.X / g, Y: lo.Y / g}
		hi = Point{X: hi.X / g, Y: hi.Y / g}
	}
	return s.X%2 != 0 && s.X <= hi.X-2 && s.Y >= lo.Y && s.Y <= hi.Y
}

// BuildTransitions fills the dense state x action edge table.
func (m *CoarseModel) BuildTransitions(layout *Layout) error {
	m.edges = make([][]Edge[CoarseWord], len(m.states))
	for i, s := range m.states {
		row := make([]Edge[CoarseWord], CoarseActions)
		for a := 0; a < CoarseActions; a++ {
			next, r, w, err := m.Step(s, a, layout)
			if err != nil {
				return err
			}
			j, ok := m.index[next]
			if !ok {
				return &MissingStateError{From: s.String(), Action: a, State: next.String()}
			}
			row[a] = Edge[CoarseWord]{Next: j, Reward: r, Word: w}
		}
		m.edges[i] = row
	}
	return nil
}

// WithInitial returns a view of the model rooted at p. The view shares
// the transition table, which is read-only once built.
func (m *CoarseModel) WithInitial(p Point) (*CoarseModel, error) {
	idx, ok := m.index[p]
	if !ok {
		return nil, fmt.Errorf("%w: coarse cell %s", ErrUnknownState, p)
	}
	view := *m
	view.initial = idx
	return &view, nil
}

// InitialIndex returns the dense index of the initial cell.
func (m *CoarseModel) InitialIndex() int { return m.initial }

// NumActions returns the size of the action set.
func (m *CoarseModel) NumActions() int { return CoarseActions }

// NumStates returns the number of enumerated cells.
func (m *CoarseModel) NumStates() int { return len(m.states) }

// Edge returns the transition out of state s under action a.
func (m *CoarseModel) Edge(s, a int) Edge[CoarseWord] { return m.edges[s][a] }

// Index returns the dense index of p.
func (m *CoarseModel) Index(p Point) (int, bool) {
	i, ok := m.index[p]
	return i, ok
}

// States returns the reverse index of the model: position i holds the
// cell with dense index i.
func (m *CoarseModel) States() []Point { return m.states }

// Dims returns the coarse grid size.
func (m *CoarseModel) Dims() (int, int) { return m.width, m.height }
