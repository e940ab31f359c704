package warehouse

import "fmt"

// Layout is the static description of one warehouse: rack, corridor,
// feed and queue cells, the rotation mapping and the grid size. The two
// task selectors (LookupRack, FeedOption) pick the rack and feed point of
// the task currently being planned.
//
// A Layout is owned by one planner goroutine. Automata and pooled
// workers receive a TaskContext snapshot instead of the live Layout.
type Layout struct {
	Width       int
	Height      int
	Racks       []Point
	Corridors   []Point
	FeedPoints  []Point
	QueuePoints []Point
	Rotation    map[Direction]Point

	LookupRack int
	FeedOption int

	rackSet map[Point]struct{}
	feedSet map[Point]struct{}
}

// NewLayout creates an empty layout of the given size with the given
// feed points. Racks, corridors and the rotation mapping are installed
// with SetRacks, SetCorridors and SetRotationMapping.
func NewLayout(width, height int, feedPoints []Point) *Layout {
	l := &Layout{
		Width:      width,
		Height:     height,
		FeedPoints: append([]Point(nil), feedPoints...),
		Rotation:   make(map[Direction]Point),
		rackSet:    make(map[Point]struct{}),
		feedSet:    make(map[Point]struct{}),
	}
	for _, p := range l.FeedPoints {
		l.feedSet[p] = struct{}{}
	}
	return l
}

// SetRacks appends the given rack cells. With nil input it generates the
// default layout: pairs of rack columns at x = 3c+2 and 3c+3 spanning
// every row except the first and last.
func (l *Layout) SetRacks(racks []Point) error {
	if racks != nil {
		for _, p := range racks {
			l.addRack(p)
		}
		return nil
	}
	cells := (l.Width - 2) / 3
	if cells < 1 {
		return fmt.Errorf("%w: width %d, make the width dimension larger", ErrLayoutTooNarrow, l.Width)
	}
	for c := 0; c < cells; c++ {
		for y := 1; y < l.Height-1; y++ {
			for i := 0; i < 2; i++ {
				l.addRack(Point{X: c*3 + 2 + i, Y: y})
			}
		}
	}
	return nil
}

func (l *Layout) addRack(p Point) {
	if _, ok := l.rackSet[p]; ok {
		return
	}
	l.rackSet[p] = struct{}{}
	l.Racks = append(l.Racks, p)
}

// SetCorridors appends the given corridor cells. With nil input every
// in-bounds cell that is neither a rack nor a feed point becomes a
// corridor, in x-major order.
func (l *Layout) SetCorridors(corridors []Point) {
	if corridors != nil {
		l.Corridors = append(l.Corridors, corridors...)
		return
	}
	for x := 0; x < l.Width; x++ {
		for y := 0; y < l.Height; y++ {
			p := Point{X: x, Y: y}
			if l.IsRack(p) || l.IsFeed(p) {
				continue
			}
			l.Corridors = append(l.Corridors, p)
		}
	}
}

// SetRotationMapping installs the default heading vectors.
func (l *Layout) SetRotationMapping() {
	l.Rotation[Right] = Point{X: 1, Y: 0}
	l.Rotation[Down] = Point{X: 0, Y: 1}
	l.Rotation[Left] = Point{X: -1, Y: 0}
	l.Rotation[Up] = Point{X: 0, Y: -1}
}

// SetQueuePoints records the per-agent queue cells used by regeneration.
func (l *Layout) SetQueuePoints(points []Point) {
	l.QueuePoints = append([]Point(nil), points...)
}

// IsRack reports whether p is a rack cell.
func (l *Layout) IsRack(p Point) bool {
	_, ok := l.rackSet[p]
	return ok
}

// IsFeed reports whether p is a feed point.
func (l *Layout) IsFeed(p Point) bool {
	_, ok := l.feedSet[p]
	return ok
}

// Validate checks the geometry before any planning starts.
func (l *Layout) Validate() error {
	if l.Width < 1 || l.Height < 1 {
		return fmt.Errorf("invalid grid size %dx%d", l.Width, l.Height)
	}
	for d := Right; d <= Up; d++ {
		if _, ok := l.Rotation[d]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRotation, d)
		}
	}
	if len(l.Racks) == 0 {
		return fmt.Errorf("%w: no racks placed", ErrLayoutTooNarrow)
	}
	if len(l.FeedPoints) == 0 {
		return fmt.Errorf("layout has no feed points")
	}
	for _, p := range l.FeedPoints {
		if !p.InBounds(l.Width, l.Height) {
			return fmt.Errorf("feed point %s outside %dx%d grid", p, l.Width, l.Height)
		}
	}
	for _, p := range l.QueuePoints {
		if !p.InBounds(l.Width, l.Height) {
			return fmt.Errorf("queue point %s outside %dx%d grid", p, l.Width, l.Height)
		}
	}
	if l.LookupRack < 0 || l.LookupRack >= len(l.Racks) || l.FeedOption < 0 || l.FeedOption >= len(l.FeedPoints) {
		return fmt.Errorf("%w: rack %d, feed %d", ErrSelector, l.LookupRack, l.FeedOption)
	}
	return nil
}

// Select points the task selectors at a rack index and a feed index.
func (l *Layout) Select(rack, feed int) error {
	if rack < 0 || rack >= len(l.Racks) {
		return fmt.Errorf("%w: rack %d of %d", ErrSelector, rack, len(l.Racks))
	}
	if feed < 0 || feed >= len(l.FeedPoints) {
		return fmt.Errorf("%w: feed %d of %d", ErrSelector, feed, len(l.FeedPoints))
	}
	l.LookupRack = rack
	l.FeedOption = feed
	return nil
}

// RackBounds returns the bounding box of the rack cells. ok is false
// when no racks are placed.
func (l *Layout) RackBounds() (lo, hi Point, ok bool) {
	if len(l.Racks) == 0 {
		return Point{}, Point{}, false
	}
	lo, hi = l.Racks[0], l.Racks[0]
	for _, p := range l.Racks[1:] {
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return lo, hi, true
}

// Geometry returns an owned copy of the grid size and rotation mapping.
func (l *Layout) Geometry() Geometry {
	g := Geometry{Width: l.Width, Height: l.Height}
	for d, v := range l.Rotation {
		if d.Valid() {
			g.Rotation[d] = v
			g.mapped[d] = true
		}
	}
	return g
}

// TaskContext snapshots the current task selectors for the given agent.
// The queue point is the agent's queue cell when one is configured.
func (l *Layout) TaskContext(agent int) TaskContext {
	tc := TaskContext{Geometry: l.Geometry(), Queue: NoPack}
	if l.LookupRack >= 0 && l.LookupRack < len(l.Racks) {
		tc.Rack = l.Racks[l.LookupRack]
	}
	if l.FeedOption >= 0 && l.FeedOption < len(l.FeedPoints) {
		tc.Feed = l.FeedPoints[l.FeedOption]
	}
	if agent >= 0 && agent < len(l.QueuePoints) {
		tc.Queue = l.QueuePoints[agent]
	}
	return tc
}

// Geometry is the grid size plus heading vectors. It is a plain value
// and safe to share between goroutines.
type Geometry struct {
	Width    int
	Height   int
	Rotation [NumDirections]Point
	mapped   [NumDirections]bool
}

// FrontCell returns the cell adjacent to pos in heading dir. ok is false
// when that cell is off the grid or dir has no rotation entry.
func (g Geometry) FrontCell(pos Point, dir Direction) (Point, bool) {
	if !dir.Valid() || !g.mapped[dir] {
		return Point{}, false
	}
	p := pos.Add(g.Rotation[dir])
	if !p.InBounds(g.Width, g.Height) {
		return Point{}, false
	}
	return p, true
}

// TaskContext is the read-only context handed to task automata: the
// target rack, feed and queue cells of one (agent, task) pair plus the
// grid geometry.
type TaskContext struct {
	Rack     Point
	Feed     Point
	Queue    Point
	Geometry Geometry
}
