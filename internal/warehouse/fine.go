package warehouse

import "fmt"

// Fine actions.
const (
	RotateLeft = iota
	RotateRight
	Forward
	Pickup
	Drop

	FineActions
)

var fineActionNames = [FineActions]string{"rotate_left", "rotate_right", "forward", "pickup", "drop"}

// FineActionName names a fine action.
func FineActionName(a int) string {
	if a < 0 || a >= FineActions {
		return fmt.Sprintf("action(%d)", a)
	}
	return fineActionNames[a]
}

// CellType classifies the cell in front of a robot.
type CellType int

const (
	CellOutOfBounds CellType = iota
	CellFree
	CellPack
	CellRack
	CellFeed
)

func (c CellType) String() string {
	switch c {
	case CellOutOfBounds:
		return "out_of_bounds"
	case CellFree:
		return "free"
	case CellPack:
		return "pack"
	case CellRack:
		return "rack"
	case CellFeed:
		return "feed"
	default:
		return fmt.Sprintf("cell(%d)", int(c))
	}
}

// FineState is the high resolution robot state. PackPos is NoPack
// whenever PackAvailable is false.
type FineState struct {
	Dir           Direction
	Pos           Point
	Carrying      bool
	PackAvailable bool
	PackPos       Point
}

// FineWord is what a task automaton observes after a fine step.
type FineWord struct {
	Pos           Point
	Dir           Direction
	Carrying      bool
	PackAvailable bool
	PackPos       Point
}

// Pack returns the floor pack position, if any.
func (w FineWord) Pack() (Point, bool) {
	return w.PackPos, w.PackAvailable
}

func wordOf(s FineState) FineWord {
	return FineWord{
		Pos:           s.Pos,
		Dir:           s.Dir,
		Carrying:      s.Carrying,
		PackAvailable: s.PackAvailable,
		PackPos:       s.PackPos,
	}
}

// ClassifyCell decides what occupies p. Racks win over a floor pack,
// which wins over feed points.
func ClassifyCell(p Point, ok bool, s FineState, layout *Layout) CellType {
	if !ok {
		return CellOutOfBounds
	}
	switch {
	case layout.IsRack(p):
		return CellRack
	case s.PackAvailable && s.PackPos == p:
		return CellPack
	case layout.IsFeed(p):
		return CellFeed
	default:
		return CellFree
	}
}

// FineModel is the high resolution warehouse with heading, payload and
// at most one pack on the floor.
type FineModel struct {
	reward  float64
	initial int

	states []FineState
	index  map[FineState]int
	edges  [][]Edge[FineWord]
}

// NewFineModel creates an empty fine model whose every step yields the
// given reward.
func NewFineModel(reward float64) *FineModel {
	return &FineModel{
		reward: reward,
		index:  make(map[FineState]int),
	}
}

// BuildStateSpace enumerates, for every corridor cell and heading, the
// robot not carrying with a pack dropped on each other corridor cell,
// not carrying with no pack down, and carrying with no pack down.
func (m *FineModel) BuildStateSpace(corridors []Point) {
	m.states = m.states[:0]
	m.index = make(map[FineState]int)
	for _, p := range corridors {
		for d := Right; d <= Up; d++ {
			for _, p2 := range corridors {
				if p2 == p {
					continue
				}
				m.add(FineState{Dir: d, Pos: p, PackAvailable: true, PackPos: p2})
			}
			m.add(FineState{Dir: d, Pos: p, PackPos: NoPack})
			m.add(FineState{Dir: d, Pos: p, Carrying: true, PackPos: NoPack})
		}
	}
}

func (m *FineModel) add(s FineState) {
	if _, ok := m.index[s]; ok {
		return
	}
	m.index[s] = len(m.states)
	m.states = append(m.states, s)
}

// Step applies one fine action.
func (m *FineModel) Step(s FineState, action int, layout *Layout) (FineState, float64, FineWord, error) {
	geo := layout.Geometry()
	front, inBounds := geo.FrontCell(s.Pos, s.Dir)
	cell := ClassifyCell(front, inBounds, s, layout)
	next := s
	switch action {
	case RotateLeft:
		next.Dir = s.Dir.RotateLeft()
	case RotateRight:
		next.Dir = s.Dir.RotateRight()
	case Forward:
		if cell == CellFree {
			next.Pos = front
		}
	case Pickup:
		if s.Carrying {
			break
		}
		switch cell {
		case CellFeed, CellRack:
			if !s.PackAvailable {
				next.Carrying = true
			}
		case CellPack:
			next.Carrying = true
			next.PackAvailable = false
			next.PackPos = NoPack
		}
	case Drop:
		if !s.Carrying {
			break
		}
		switch cell {
		case CellRack, CellFeed:
			next.Carrying = false
			next.PackAvailable = false
			next.PackPos = NoPack
		case CellFree:
			next.Carrying = false
			next.PackAvailable = true
			next.PackPos = front
		}
	default:
		return s, 0, FineWord{}, fmt.Errorf("%w: fine action %d", ErrUnknownAction, action)
	}
	return next, m.reward, wordOf(next), nil
}

// BuildTransitions fills the dense state x action edge table.
func (m *FineModel) BuildTransitions(layout *Layout) error {
	m.edges = make([][]Edge[FineWord], len(m.states))
	for i, s := range m.states {
		row := make([]Edge[FineWord], FineActions)
		for a := 0; a < FineActions; a++ {
			next, r, w, err := m.Step(s, a, layout)
			if err != nil {
				return err
			}
			j, ok := m.index[next]
			if !ok {
				return &MissingStateError{From: fmt.Sprintf("%+v", s), Action: a, State: fmt.Sprintf("%+v", next)}
			}
			row[a] = Edge[FineWord]{Next: j, Reward: r, Word: w}
		}
		m.edges[i] = row
	}
	return nil
}

// WithInitial returns a view of the model rooted at s. The view shares
// the transition table, which is read-only once built.
func (m *FineModel) WithInitial(s FineState) (*FineModel, error) {
	idx, ok := m.index[s]
	if !ok {
		return nil, fmt.Errorf("%w: %+v", ErrUnknownState, s)
	}
	view := *m
	view.initial = idx
	return &view, nil
}

// InitialIndex returns the dense index of the initial state.
func (m *FineModel) InitialIndex() int { return m.initial }

// NumActions returns the size of the action set.
func (m *FineModel) NumActions() int { return FineActions }

// NumStates returns the number of enumerated states.
func (m *FineModel) NumStates() int { return len(m.states) }

// Edge returns the transition out of state s under action a.
func (m *FineModel) Edge(s, a int) Edge[FineWord] { return m.edges[s][a] }

// Index returns the dense index of s.
func (m *FineModel) Index(s FineState) (int, bool) {
	i, ok := m.index[s]
	return i, ok
}

// States returns the reverse index of the model.
func (m *FineModel) States() []FineState { return m.states }
