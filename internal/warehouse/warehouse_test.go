package warehouse

import (
	"errors"
	"testing"
)

func defaultLayout(t *testing.T) *Layout {
	t.Helper()
	l := NewLayout(12, 12, []Point{{X: 0, Y: 5}})
	if err := l.SetRacks(nil); err != nil {
		t.Fatalf("SetRacks failed: %v", err)
	}
	l.SetCorridors(nil)
	l.SetRotationMapping()
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return l
}

func TestSetRacksDefault(t *testing.T) {
	l := defaultLayout(t)

	// three rack column pairs, ten rows each
	if len(l.Racks) != 60 {
		t.Fatalf("Expected 60 racks, got %d", len(l.Racks))
	}
	for _, p := range []Point{{2, 1}, {3, 1}, {5, 10}, {9, 10}} {
		if !l.IsRack(p) {
			t.Errorf("Expected %s to be a rack", p)
		}
	}
	for _, p := range []Point{{2, 0}, {4, 5}, {2, 11}, {10, 5}} {
		if l.IsRack(p) {
			t.Errorf("Expected %s not to be a rack", p)
		}
	}
}

func TestSetRacksTooNarrow(t *testing.T) {
	l := NewLayout(4, 4, []Point{{X: 0, Y: 0}})
	err := l.SetRacks(nil)
	if !errors.Is(err, ErrLayoutTooNarrow) {
		t.Fatalf("Expected ErrLayoutTooNarrow, got %v", err)
	}
}

func TestCorridorsExcludeRacksAndFeed(t *testing.T) {
	l := defaultLayout(t)

	if got, want := len(l.Corridors), 12*12-60-1; got != want {
		t.Fatalf("Expected %d corridors, got %d", want, got)
	}
	for _, p := range l.Corridors {
		if l.IsRack(p) || l.IsFeed(p) {
			t.Errorf("Corridor %s overlaps a rack or feed point", p)
		}
	}
}

func TestValidateMissingRotation(t *testing.T) {
	l := NewLayout(12, 12, []Point{{X: 0, Y: 5}})
	if err := l.SetRacks(nil); err != nil {
		t.Fatalf("SetRacks failed: %v", err)
	}
	l.Rotation[Right] = Point{X: 1}
	if err := l.Validate(); !errors.Is(err, ErrMissingRotation) {
		t.Fatalf("Expected ErrMissingRotation, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	l := defaultLayout(t)

	if err := l.Select(4, 0); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	tc := l.TaskContext(7)
	if tc.Rack != l.Racks[4] {
		t.Errorf("Expected rack %s, got %s", l.Racks[4], tc.Rack)
	}
	if tc.Feed != (Point{X: 0, Y: 5}) {
		t.Errorf("Expected feed (0, 5), got %s", tc.Feed)
	}
	if tc.Queue != NoPack {
		t.Errorf("Expected no queue point for unknown agent, got %s", tc.Queue)
	}

	if err := l.Select(len(l.Racks), 0); !errors.Is(err, ErrSelector) {
		t.Errorf("Expected ErrSelector for rack, got %v", err)
	}
	if err := l.Select(0, 1); !errors.Is(err, ErrSelector) {
		t.Errorf("Expected ErrSelector for feed, got %v", err)
	}
}

func TestPointString(t *testing.T) {
	if got := (Point{X: 3, Y: -1}).String(); got != "(3, -1)" {
		t.Errorf("Expected (3, -1), got %s", got)
	}
}

func TestCoarseStateSpace(t *testing.T) {
	m := NewCoarseModel(-1)
	w, h := m.BuildStateSpace(12, 12, 5)
	if w != 3 || h != 3 {
		t.Fatalf("Expected 3x3 coarse grid, got %dx%d", w, h)
	}
	if m.NumStates() != 9 {
		t.Fatalf("Expected 9 states, got %d", m.NumStates())
	}
	// x-major order
	if m.States()[1] != (Point{X: 0, Y: 1}) {
		t.Errorf("Expected second state (0, 1), got %s", m.States()[1])
	}
	for i, p := range m.States() {
		if j, ok := m.Index(p); !ok || j != i {
			t.Errorf("Index(%s) = %d, %v; want %d", p, j, ok, i)
		}
	}
}

func TestCoarseStep(t *testing.T) {
	l := defaultLayout(t)
	m := NewCoarseModel(-1)
	m.BuildStateSpace(l.Width, l.Height, 1)

	tests := []struct {
		name   string
		from   Point
		action int
		want   Point
	}{
		{"left clamps", Point{0, 4}, MoveLeft, Point{0, 4}},
		{"right clamps", Point{11, 4}, MoveRight, Point{11, 4}},
		{"right", Point{0, 4}, MoveRight, Point{1, 4}},
		{"up", Point{0, 4}, MoveUp, Point{0, 5}},
		{"down", Point{0, 4}, MoveDown, Point{0, 3}},
		{"up clamps", Point{0, 11}, MoveUp, Point{0, 11}},
		{"down clamps", Point{4, 0}, MoveDown, Point{4, 0}},
		{"odd column inside racks blocked", Point{3, 4}, MoveUp, Point{3, 4}},
		{"odd column inside racks blocked down", Point{5, 4}, MoveDown, Point{5, 4}},
		{"odd column above racks free", Point{3, 11}, MoveDown, Point{3, 10}},
		{"even column free", Point{4, 4}, MoveUp, Point{4, 5}},
		{"last rack column free", Point{9, 4}, MoveUp, Point{9, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, r, w, err := m.Step(tt.from, tt.action, l)
			if err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
			if r != -1 {
				t.Errorf("Expected reward -1, got %v", r)
			}
			if w.Pos != got {
				t.Errorf("Word position %s does not match state %s", w.Pos, got)
			}
		})
	}

	if _, _, _, err := m.Step(Point{}, 9, l); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}
}

func TestCoarseTransitionsDeterministic(t *testing.T) {
	l := defaultLayout(t)
	a := NewCoarseModel(-1)
	a.BuildStateSpace(l.Width, l.Height, 1)
	if err := a.BuildTransitions(l); err != nil {
		t.Fatalf("BuildTransitions failed: %v", err)
	}
	b := NewCoarseModel(-1)
	b.BuildStateSpace(l.Width, l.Height, 1)
	if err := b.BuildTransitions(l); err != nil {
		t.Fatalf("BuildTransitions failed: %v", err)
	}
	for s := 0; s < a.NumStates(); s++ {
		for act := 0; act < a.NumActions(); act++ {
			if a.Edge(s, act) != b.Edge(s, act) {
				t.Fatalf("Edge(%d, %d) differs between builds", s, act)
			}
		}
	}

	view, err := a.WithInitial(Point{X: 2, Y: 0})
	if err != nil {
		t.Fatalf("WithInitial failed: %v", err)
	}
	if got := view.States()[view.InitialIndex()]; got != (Point{X: 2, Y: 0}) {
		t.Errorf("Expected initial (2, 0), got %s", got)
	}
	if a.InitialIndex() != 0 {
		t.Errorf("WithInitial mutated the base model")
	}
	if _, err := a.WithInitial(Point{X: 40, Y: 0}); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Expected ErrUnknownState, got %v", err)
	}
}

func TestCoarseStepScaledRackBlock(t *testing.T) {
	l := defaultLayout(t)
	m := NewCoarseModel(-1)
	if w, h := m.BuildStateSpace(l.Width, l.Height, 2); w != 6 || h != 6 {
		t.Fatalf("Expected 6x6 coarse grid, got %dx%d", w, h)
	}

	tests := []struct {
		name   string
		from   Point
		action int
		want   Point
	}{
		// fine x=10..11 hold no racks
		{"rack-free column", Point{5, 2}, MoveUp, Point{5, 3}},
		{"rack-free column down", Point{5, 2}, MoveDown, Point{5, 1}},
		// fine x=2..3 are a rack pair
		{"rack column blocked", Point{1, 2}, MoveUp, Point{1, 2}},
		{"even column free", Point{2, 2}, MoveUp, Point{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _, err := m.Step(tt.from, tt.action, l)
			if err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyCell(t *testing.T) {
	l := defaultLayout(t)
	pack := FineState{PackAvailable: true, PackPos: Point{X: 1, Y: 5}}

	tests := []struct {
		name string
		p    Point
		ok   bool
		s    FineState
		want CellType
	}{
		{"out of bounds", Point{}, false, FineState{PackPos: NoPack}, CellOutOfBounds},
		{"rack", Point{2, 1}, true, FineState{PackPos: NoPack}, CellRack},
		{"feed", Point{0, 5}, true, FineState{PackPos: NoPack}, CellFeed},
		{"pack", Point{1, 5}, true, pack, CellPack},
		{"free", Point{1, 5}, true, FineState{PackPos: NoPack}, CellFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCell(tt.p, tt.ok, tt.s, l); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFineBoundaryForwardIsNoop(t *testing.T) {
	l := defaultLayout(t)
	m := NewFineModel(-1)

	s := FineState{Dir: Up, Pos: Point{X: 0, Y: 0}, PackPos: NoPack}
	next, _, _, err := m.Step(s, Forward, l)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if next != s {
		t.Errorf("Expected no-op at boundary, got %+v", next)
	}

	// into a rack
	s = FineState{Dir: Right, Pos: Point{X: 1, Y: 3}, PackPos: NoPack}
	next, _, _, _ = m.Step(s, Forward, l)
	if next != s {
		t.Errorf("Expected no-op into rack, got %+v", next)
	}
}

func TestFineRotation(t *testing.T) {
	l := defaultLayout(t)
	m := NewFineModel(-1)

	s := FineState{Dir: Right, Pos: Point{X: 1, Y: 1}, PackPos: NoPack}
	for i := 0; i < NumDirections; i++ {
		s, _, _, _ = m.Step(s, RotateRight, l)
	}
	if s.Dir != Right {
		t.Errorf("Expected four right turns to return to right, got %s", s.Dir)
	}
	s, _, _, _ = m.Step(s, RotateLeft, l)
	if s.Dir != Up {
		t.Errorf("Expected left turn from right to face up, got %s", s.Dir)
	}
}

func TestFinePickupAndDrop(t *testing.T) {
	l := defaultLayout(t)
	m := NewFineModel(-1)

	// facing rack (2, 3) from (1, 3)
	s := FineState{Dir: Right, Pos: Point{X: 1, Y: 3}, PackPos: NoPack}
	s, _, w, _ := m.Step(s, Pickup, l)
	if !s.Carrying || !w.Carrying {
		t.Fatalf("Expected pickup from rack, got %+v", s)
	}

	// second pickup is a no-op
	again, _, _, _ := m.Step(s, Pickup, l)
	if again != s {
		t.Errorf("Expected pickup while carrying to be a no-op")
	}

	// drop on a free cell leaves a pack on the floor
	s.Dir = Left
	s, _, w, _ = m.Step(s, Drop, l)
	if s.Carrying || !s.PackAvailable || s.PackPos != (Point{X: 0, Y: 3}) {
		t.Fatalf("Expected floor pack at (0, 3), got %+v", s)
	}
	if p, ok := w.Pack(); !ok || p != (Point{X: 0, Y: 3}) {
		t.Errorf("Expected word pack (0, 3), got %s %v", p, ok)
	}

	// rack pickup is refused while a pack sits on the floor
	s.Dir = Right
	refused, _, _, _ := m.Step(s, Pickup, l)
	if refused.Carrying {
		t.Errorf("Expected rack pickup refused with floor pack present")
	}

	// picking the floor pack back up clears it
	s.Dir = Left
	s, _, _, _ = m.Step(s, Pickup, l)
	if !s.Carrying || s.PackAvailable || s.PackPos != NoPack {
		t.Fatalf("Expected floor pack collected, got %+v", s)
	}

	// drop onto the rack clears the load
	s.Dir = Right
	s, _, _, _ = m.Step(s, Drop, l)
	if s.Carrying || s.PackAvailable {
		t.Errorf("Expected drop onto rack to clear the load, got %+v", s)
	}
}

func TestFineCarryingInvariant(t *testing.T) {
	l := defaultLayout(t)
	m := NewFineModel(-1)
	m.BuildStateSpace(l.Corridors)
	if err := m.BuildTransitions(l); err != nil {
		t.Fatalf("BuildTransitions failed: %v", err)
	}

	c := len(l.Corridors)
	if got, want := m.NumStates(), 4*c*(c+1); got != want {
		t.Fatalf("Expected %d fine states, got %d", want, got)
	}
	states := m.States()
	for i, s := range states {
		if s.Carrying && s.PackAvailable {
			t.Fatalf("State %d carries with a floor pack: %+v", i, s)
		}
		if !s.PackAvailable && s.PackPos != NoPack {
			t.Fatalf("State %d has a pack position without a pack: %+v", i, s)
		}
		for a := 0; a < m.NumActions(); a++ {
			n := states[m.Edge(i, a).Next]
			if n.Carrying && n.PackAvailable {
				t.Fatalf("Successor of %d under %d violates the carrying invariant", i, a)
			}
		}
	}
}

func TestFineSmallScenario(t *testing.T) {
	l := NewLayout(2, 2, []Point{{X: 0, Y: 0}})
	if err := l.SetRacks([]Point{{X: 1, Y: 0}}); err != nil {
		t.Fatalf("SetRacks failed: %v", err)
	}
	l.SetCorridors(nil)
	l.SetRotationMapping()
	m := NewFineModel(-1)
	m.BuildStateSpace(l.Corridors)
	if err := m.BuildTransitions(l); err != nil {
		t.Fatalf("BuildTransitions failed: %v", err)
	}

	s := FineState{Dir: Right, Pos: Point{X: 0, Y: 1}, PackPos: NoPack}
	if _, ok := m.Index(s); !ok {
		t.Fatalf("Start state not enumerated")
	}
	// right turns from right face left into the boundary, so this route
	// turns back round and drives to the cell below the rack
	moves := []int{RotateRight, RotateRight, Forward, RotateRight, RotateRight, Forward, RotateLeft}
	for _, a := range moves {
		var err error
		s, _, _, err = m.Step(s, a, l)
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if s.Carrying || s.PackAvailable {
			t.Fatalf("Expected no load while driving, got %+v", s)
		}
	}
	if s.Pos != (Point{X: 1, Y: 1}) || s.Dir != Up {
		t.Fatalf("Expected (1, 1) facing up, got %+v", s)
	}

	s, _, _, _ = m.Step(s, Pickup, l)
	if !s.Carrying {
		t.Errorf("Expected pickup from rack at (1, 0)")
	}
}

func TestFineLiteralScenarioFacesBoundary(t *testing.T) {
	l := NewLayout(2, 2, []Point{{X: 0, Y: 0}})
	if err := l.SetRacks([]Point{{X: 1, Y: 0}}); err != nil {
		t.Fatalf("SetRacks failed: %v", err)
	}
	l.SetCorridors(nil)
	l.SetRotationMapping()
	m := NewFineModel(-1)

	// two right turns from right face left, so both forwards leave the grid
	start := FineState{Dir: Right, Pos: Point{X: 0, Y: 1}, PackPos: NoPack}
	s := start
	for _, a := range []int{RotateRight, RotateRight, Forward, Forward} {
		var err error
		s, _, _, err = m.Step(s, a, l)
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if s.Carrying || s.PackAvailable {
			t.Fatalf("Expected no load while driving, got %+v", s)
		}
	}
	if s.Pos != start.Pos || s.Dir != Left {
		t.Fatalf("Expected %s facing left, got %+v", start.Pos, s)
	}

	s, _, _, _ = m.Step(s, Pickup, l)
	if s.Carrying {
		t.Errorf("Expected pickup facing the boundary to be a no-op")
	}
}

func TestFineTransitionsDeterministic(t *testing.T) {
	l := defaultLayout(t)
	build := func() *FineModel {
		m := NewFineModel(-1)
		m.BuildStateSpace(l.Corridors)
		if err := m.BuildTransitions(l); err != nil {
			t.Fatalf("BuildTransitions failed: %v", err)
		}
		return m
	}
	a, b := build(), build()
	if a.NumStates() != b.NumStates() {
		t.Fatalf("State counts differ: %d vs %d", a.NumStates(), b.NumStates())
	}
	for s := 0; s < a.NumStates(); s++ {
		for act := 0; act < a.NumActions(); act++ {
			if a.Edge(s, act) != b.Edge(s, act) {
				t.Fatalf("Edge(%d, %d) differs between builds", s, act)
			}
		}
	}

	for i, st := range a.States() {
		for act := 0; act < a.NumActions(); act++ {
			n1, r1, w1, err1 := a.Step(st, act, l)
			n2, r2, w2, err2 := a.Step(st, act, l)
			if err1 != nil || err2 != nil {
				t.Fatalf("Step failed: %v, %v", err1, err2)
			}
			if n1 != n2 || r1 != r2 || w1 != w2 {
				t.Fatalf("Step(%d, %d) is not deterministic", i, act)
			}
		}
	}
}

func TestFineWithInitialUnknown(t *testing.T) {
	l := defaultLayout(t)
	m := NewFineModel(-1)
	m.BuildStateSpace(l.Corridors)

	_, err := m.WithInitial(FineState{Dir: Down, Pos: Point{X: 2, Y: 1}, PackPos: NoPack})
	if !errors.Is(err, ErrUnknownState) {
		t.Errorf("Expected ErrUnknownState for a rack cell, got %v", err)
	}
}

func TestFineActionName(t *testing.T) {
	if got := FineActionName(Pickup); got != "pickup" {
		t.Errorf("Expected pickup, got %s", got)
	}
	if got := FineActionName(FineActions); got != "action(5)" {
		t.Errorf("Expected action(5), got %s", got)
	}
}

func TestValidateSelectors(t *testing.T) {
	l := defaultLayout(t)
	l.FeedOption = 3
	if err := l.Validate(); !errors.Is(err, ErrSelector) {
		t.Errorf("Expected ErrSelector, got %v", err)
	}
}
