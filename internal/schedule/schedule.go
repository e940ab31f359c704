// Package schedule decodes optimal product policies into the lookup
// tables deployed robots consult, and reads and writes them as JSON.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fentz26/rackplan/internal/product"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// ErrShape is returned when the policy and state maps disagree.
var ErrShape = errors.New("policy and state maps do not line up")

// Record is one (state, automaton state) entry and its action.
type Record struct {
	Dir           int             `json:"direction"`
	Pos           warehouse.Point `json:"position"`
	Carrying      int             `json:"carrying"`
	PackAvailable int             `json:"pack_available"`
	PackPos       warehouse.Point `json:"pack_position"`
	Action        int             `json:"action"`
	Q             int             `json:"automaton_state"`
}

// Schedule groups records by position string, then direction string.
type Schedule map[string]map[string][]Record

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Decode emits one record per product state. pi[i] is the action at
// product state i, keys[i] its key, and states[keys[i].S] the fine state
// it refers to.
func Decode(pi []int, keys []product.Key, states []warehouse.FineState) (Schedule, error) {
	if len(pi) != len(keys) {
		return nil, fmt.Errorf("%w: %d actions for %d states", ErrShape, len(pi), len(keys))
	}
	out := make(Schedule)
	for i, a := range pi {
		k := keys[i]
		if k.S < 0 || k.S >= len(states) {
			return nil, fmt.Errorf("%w: product state %d refers to environment state %d of %d", ErrShape, i, k.S, len(states))
		}
		s := states[k.S]
		pos, dir := s.Pos.String(), strconv.Itoa(int(s.Dir))
		byDir, ok := out[pos]
		if !ok {
			byDir = make(map[string][]Record)
			out[pos] = byDir
		}
		byDir[dir] = append(byDir[dir], Record{
			Dir:           int(s.Dir),
			Pos:           s.Pos,
			Carrying:      flag(s.Carrying),
			PackAvailable: flag(s.PackAvailable),
			PackPos:       s.PackPos,
			Action:        a,
			Q:             k.Q,
		})
	}
	return out, nil
}

// Len returns the total number of records.
func (s Schedule) Len() int {
	n := 0
	for _, byDir := range s {
		for _, recs := range byDir {
			n += len(recs)
		}
	}
	return n
}

// Lookup finds the record matching a robot state and automaton state.
func (s Schedule) Lookup(state warehouse.FineState, q int) (Record, bool) {
	recs := s[state.Pos.String()][strconv.Itoa(int(state.Dir))]
	for _, r := range recs {
		if r.Q != q || r.Carrying != flag(state.Carrying) || r.PackAvailable != flag(state.PackAvailable) {
			continue
		}
		if state.PackAvailable && r.PackPos != state.PackPos {
			continue
		}
		return r, true
	}
	return Record{}, false
}

// TaskFileName is the file holding the schedule of agent on task.
func TaskFileName(agent, task int) string {
	return fmt.Sprintf("map_%d_%d.json", agent, task)
}

// RegenFileName is the file holding the regeneration schedule of agent.
func RegenFileName(agent int) string {
	return fmt.Sprintf("regen_%d.json", agent)
}

// WriteFile writes s as indented JSON, creating parent directories.
func WriteFile(path string, s Schedule) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create schedule directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}
	return nil
}

// ReadFile loads a schedule written by WriteFile.
func ReadFile(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}
	var s Schedule
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schedule %s: %w", path, err)
	}
	return s, nil
}
