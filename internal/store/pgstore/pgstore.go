// Package pgstore is the PostgreSQL run ledger, for teams that share one
// ledger across planning hosts.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/store"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a gorm-backed ledger with the same surface as store.Store.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and migrates the ledger tables.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.db.AutoMigrate(&models.Run{}, &models.Allocation{}, &models.ScheduleFile{}, &models.PDREntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return err
}

// CreateRun inserts a new running run.
func (s *Store) CreateRun(seed int64, agents, tasks int, configHash string) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.New().String(),
		Status:     models.RunStatusRunning,
		Agents:     agents,
		Tasks:      tasks,
		Seed:       seed,
		ConfigHash: configHash,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run completed, or failed when runErr is set.
func (s *Store) FinishRun(id string, runErr error) error {
	status, msg := models.RunStatusCompleted, ""
	if runErr != nil {
		status, msg = models.RunStatusFailed, runErr.Error()
	}
	res := s.db.Model(&models.Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"error":       msg,
		"finished_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*models.Run, error) {
	var run models.Run
	if err := s.db.Where("id = ?", id).First(&run).Error; err != nil {
		return nil, notFound(err, "run "+id)
	}
	return &run, nil
}

// LatestRun returns the most recently started completed run.
func (s *Store) LatestRun() (*models.Run, error) {
	var run models.Run
	err := s.db.Where(&models.Run{Status: models.RunStatusCompleted}).
		Clauses(clause.OrderBy{
			Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "started_at"}, Desc: true}},
		}).
		First(&run).Error
	if err != nil {
		return nil, notFound(err, "completed run")
	}
	return &run, nil
}

// RecordAllocation inserts an allocation.
func (s *Store) RecordAllocation(a *models.Allocation) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	if err := s.db.Create(a).Error; err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// ListAllocations returns the allocations of a run ordered by task.
func (s *Store) ListAllocations(runID string) ([]models.Allocation, error) {
	var out []models.Allocation
	if err := s.db.Where("run_id = ?", runID).Order("task ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	return out, nil
}

// RecordSchedule inserts a schedule file entry.
func (s *Store) RecordSchedule(f *models.ScheduleFile) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()
	if err := s.db.Create(f).Error; err != nil {
		return fmt.Errorf("insert schedule file: %w", err)
	}
	return nil
}

// ListSchedules returns the schedule files of a run.
func (s *Store) ListSchedules(runID string) ([]models.ScheduleFile, error) {
	var out []models.ScheduleFile
	if err := s.db.Where("run_id = ?", runID).Order("kind ASC, agent ASC, task ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query schedule files: %w", err)
	}
	return out, nil
}

// FindSchedule looks up one schedule file of a run. Task is ignored for
// regeneration schedules.
func (s *Store) FindSchedule(runID string, kind models.ScheduleKind, agent, task int) (*models.ScheduleFile, error) {
	q := s.db.Where("run_id = ? AND kind = ? AND agent = ?", runID, kind, agent)
	if kind == models.ScheduleKindTask {
		q = q.Where("task = ?", task)
	}
	var f models.ScheduleFile
	if err := q.First(&f).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("%s schedule %d/%d", kind, agent, task))
	}
	return &f, nil
}

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, runID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		RunID:      runID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.db.Create(pdr).Error; err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}
