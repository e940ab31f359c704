// Package controlplane serves planned schedules to deployed robots over
// HTTP.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/store"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// LatestRun selects the most recent completed run in place of a run ID.
const LatestRun = "latest"

// Ledger is the read side of the run ledger. store.Store and
// pgstore.Store satisfy it.
type Ledger interface {
	GetRun(id string) (*models.Run, error)
	LatestRun() (*models.Run, error)
	ListAllocations(runID string) ([]models.Allocation, error)
	FindSchedule(runID string, kind models.ScheduleKind, agent, task int) (*models.ScheduleFile, error)
}

// Pinger is implemented by ledgers that can report connection health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service resolves runs and schedule lookups. Decoded schedules are
// cached per run and path.
type Service struct {
	ledger Ledger

	mu    sync.Mutex
	cache map[cacheKey]schedule.Schedule
}

type cacheKey struct {
	run  string
	path string
}

// NewService creates a new control plane service.
func NewService(l Ledger) *Service {
	return &Service{
		ledger: l,
		cache:  make(map[cacheKey]schedule.Schedule),
	}
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// Run resolves a run ID, or the latest completed run for LatestRun.
func (s *Service) Run(id string) (*models.Run, error) {
	var run *models.Run
	var err error
	if id == LatestRun {
		run, err = s.ledger.LatestRun()
	} else {
		run, err = s.ledger.GetRun(id)
	}
	if err != nil {
		return nil, translate(err)
	}
	return run, nil
}

// Allocations returns the allocations of a run.
func (s *Service) Allocations(runID string) (*models.Run, []models.Allocation, error) {
	run, err := s.Run(runID)
	if err != nil {
		return nil, nil, err
	}
	allocs, err := s.ledger.ListAllocations(run.ID)
	if err != nil {
		return nil, nil, translate(err)
	}
	return run, allocs, nil
}

// Health checks the ledger when it can be pinged.
func (s *Service) Health(ctx context.Context) error {
	if p, ok := s.ledger.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Lookup returns the record a robot at state in automaton state q should
// act on. task is ignored for regeneration schedules.
func (s *Service) Lookup(runID string, kind models.ScheduleKind, agent, task int, state warehouse.FineState, q int) (*models.ScheduleFile, schedule.Record, error) {
	run, err := s.Run(runID)
	if err != nil {
		return nil, schedule.Record{}, err
	}
	f, err := s.ledger.FindSchedule(run.ID, kind, agent, task)
	if err != nil {
		return nil, schedule.Record{}, translate(err)
	}
	sched, err := s.load(run.ID, f.Path)
	if err != nil {
		return nil, schedule.Record{}, err
	}
	rec, ok := sched.Lookup(state, q)
	if !ok {
		return f, schedule.Record{}, fmt.Errorf("%w: %+v q=%d", ErrNoRecord, state, q)
	}
	return f, rec, nil
}

func (s *Service) load(runID, path string) (schedule.Schedule, error) {
	key := cacheKey{run: runID, path: path}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.cache[key]; ok {
		return sched, nil
	}
	sched, err := schedule.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s.cache[key] = sched
	return sched, nil
}
