// Package warehouse models the warehouse floor as a grid world at two
// resolutions and provides the deterministic transition dynamics used
// by the planner.
package warehouse

import "fmt"

// Point is a grid coordinate.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// NoPack is the pack position used when no pack is on the floor.
var NoPack = Point{X: -1, Y: -1}

// String renders the point as "(x, y)". Schedules use this as their
// position key.
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// InBounds reports whether p lies on a width x height grid.
func (p Point) InBounds(width, height int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < width && p.Y < height
}

// Direction is the heading of a robot on the fine grid.
type Direction int

const (
	Right Direction = iota
	Down
	Left
	Up
)

// NumDirections is the size of the heading cycle.
const NumDirections = 4

func (d Direction) String() string {
	switch d {
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	case Up:
		return "up"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool {
	return d >= Right && d <= Up
}

// RotateLeft returns the heading after a counter-clockwise quarter turn.
func (d Direction) RotateLeft() Direction {
	return (d + NumDirections - 1) % NumDirections
}

// RotateRight returns the heading after a clockwise quarter turn.
func (d Direction) RotateRight() Direction {
	return (d + 1) % NumDirections
}

// Edge is one deterministic transition of an environment model: the
// successor state index, the step reward and the word observed by task
// automata.
type Edge[W any] struct {
	Next   int
	Reward float64
	Word   W
}
