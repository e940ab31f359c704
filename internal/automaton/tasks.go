package automaton

import "github.com/fentz26/rackplan/internal/warehouse"

// CoarseReplenishment visits the target rack, then the feed point, then
// the rack again.
func CoarseReplenishment() Definition[warehouse.CoarseWord] {
	return Definition[warehouse.CoarseWord]{
		Name:       "coarse-replenishment",
		Initial:    0,
		States:     []int{0, 1, 2, 3, 4},
		Accepting:  []int{3},
		Done:       []int{4},
		Transition: coarseReplenishment,
	}
}

func coarseReplenishment(q int, w warehouse.CoarseWord, tc *warehouse.TaskContext) int {
	switch q {
	case 0:
		if w.Pos == tc.Rack {
			return 1
		}
		return 0
	case 1:
		if w.Pos == tc.Feed {
			return 2
		}
		return 1
	case 2:
		if w.Pos == tc.Rack {
			return 3
		}
		return 2
	case 3, 4:
		return 4
	default:
		return Invalid
	}
}

// FineReplenishment picks a pack up from the target rack, takes it to the
// feed point and returns it to the rack. Handling the payload out of
// order moves to the fail sink 7.
func FineReplenishment() Definition[warehouse.FineWord] {
	return Definition[warehouse.FineWord]{
		Name:       "fine-replenishment",
		Initial:    0,
		States:     []int{0, 1, 2, 3, 4, 5, 6, 7},
		Accepting:  []int{5},
		Fail:       []int{7},
		Done:       []int{6},
		Transition: fineReplenishment,
	}
}

func facing(w warehouse.FineWord, target warehouse.Point, tc *warehouse.TaskContext) bool {
	front, ok := tc.Geometry.FrontCell(w.Pos, w.Dir)
	return ok && front == target
}

func fineReplenishment(q int, w warehouse.FineWord, tc *warehouse.TaskContext) int {
	switch q {
	case 0:
		switch {
		case w.Carrying:
			return 7
		case facing(w, tc.Rack, tc):
			return 1
		}
		return 0
	case 1:
		if w.Carrying {
			return 2
		}
		return 1
	case 2:
		switch {
		case !w.Carrying:
			return 7
		case facing(w, tc.Feed, tc):
			return 3
		}
		return 2
	case 3:
		switch {
		case !w.Carrying:
			return 7
		case facing(w, tc.Rack, tc):
			return 4
		}
		return 3
	case 4:
		if !w.Carrying {
			return 5
		}
		return 4
	case 5, 6:
		return 6
	case 7:
		return 7
	default:
		return Invalid
	}
}

// Regeneration drives a robot back to its queue point.
func Regeneration() Definition[warehouse.FineWord] {
	return Definition[warehouse.FineWord]{
		Name:       "regeneration",
		Initial:    0,
		States:     []int{0, 1, 2},
		Accepting:  []int{1},
		Done:       []int{2},
		Transition: regeneration,
	}
}

func regeneration(q int, w warehouse.FineWord, tc *warehouse.TaskContext) int {
	switch q {
	case 0:
		if w.Pos == tc.Queue {
			return 1
		}
		return 0
	case 1, 2:
		return 2
	default:
		return Invalid
	}
}
