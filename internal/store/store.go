// Package store provides the SQLite-backed run ledger for rackplan.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/rackplan/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides access to the rackplan SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running',
		agents INTEGER NOT NULL,
		tasks INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		config_hash TEXT NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		task INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		policy INTEGER NOT NULL,
		rack_x INTEGER NOT NULL,
		rack_y INTEGER NOT NULL,
		feed INTEGER NOT NULL,
		cost REAL NOT NULL,
		probability REAL NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS schedule_files (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		agent INTEGER NOT NULL,
		task INTEGER NOT NULL,
		path TEXT NOT NULL,
		records INTEGER NOT NULL,
		objective REAL NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		run_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_allocations_run_id ON allocations(run_id);
	CREATE INDEX IF NOT EXISTS idx_schedule_files_run_id ON schedule_files(run_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_run_id ON pdr(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

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

	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, agents, tasks, seed, config_hash, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Agents, run.Tasks, run.Seed, run.ConfigHash, run.StartedAt,
	)
	if err != nil {
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
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, status, agents, tasks, seed, config_hash, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var runErr sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Status, &run.Agents, &run.Tasks, &run.Seed, &run.ConfigHash,
		&runErr, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Error = runErr.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started completed run.
func (s *Store) LatestRun() (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		models.RunStatusCompleted,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("completed run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Allocation Operations ---

// RecordAllocation inserts an allocation, assigning its ID and timestamp.
func (s *Store) RecordAllocation(a *models.Allocation) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO allocations (id, run_id, task, agent, policy, rack_x, rack_y, feed, cost, probability, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.Task, a.Agent, a.Policy, a.RackX, a.RackY, a.Feed, a.Cost, a.Probability, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// ListAllocations returns the allocations of a run ordered by task.
func (s *Store) ListAllocations(runID string) ([]models.Allocation, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, task, agent, policy, rack_x, rack_y, feed, cost, probability, created_at
		 FROM allocations WHERE run_id = ? ORDER BY task ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var out []models.Allocation
	for rows.Next() {
		var a models.Allocation
		if err := rows.Scan(&a.ID, &a.RunID, &a.Task, &a.Agent, &a.Policy, &a.RackX, &a.RackY,
			&a.Feed, &a.Cost, &a.Probability, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Schedule File Operations ---

// RecordSchedule inserts a schedule file entry, assigning its ID and
// timestamp.
func (s *Store) RecordSchedule(f *models.ScheduleFile) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO schedule_files (id, run_id, kind, agent, task, path, records, objective, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RunID, f.Kind, f.Agent, f.Task, f.Path, f.Records, f.Objective, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule file: %w", err)
	}
	return nil
}

const scheduleColumns = `id, run_id, kind, agent, task, path, records, objective, created_at`

func scanSchedule(row rowScanner) (*models.ScheduleFile, error) {
	f := &models.ScheduleFile{}
	err := row.Scan(&f.ID, &f.RunID, &f.Kind, &f.Agent, &f.Task, &f.Path, &f.Records, &f.Objective, &f.CreatedAt)
	return f, err
}

// ListSchedules returns the schedule files of a run.
func (s *Store) ListSchedules(runID string) ([]models.ScheduleFile, error) {
	rows, err := s.db.Query(
		`SELECT `+scheduleColumns+` FROM schedule_files WHERE run_id = ? ORDER BY kind, agent, task`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query schedule files: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduleFile
	for rows.Next() {
		f, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// FindSchedule looks up one schedule file of a run. Task is ignored for
// regeneration schedules.
func (s *Store) FindSchedule(runID string, kind models.ScheduleKind, agent, task int) (*models.ScheduleFile, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule_files WHERE run_id = ? AND kind = ? AND agent = ?`
	args := []any{runID, kind, agent}
	if kind == models.ScheduleKindTask {
		query += ` AND task = ?`
		args = append(args, task)
	}
	f, err := scanSchedule(s.db.QueryRow(query+` LIMIT 1`, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s schedule %d/%d: %w", kind, agent, task, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule file: %w", err)
	}
	return f, nil
}

// --- PDR Operations ---

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

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, run_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.RunID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDRs returns the decision records of a run, oldest first.
func (s *Store) ListPDRs(runID string) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, run_id, details, timestamp FROM pdr WHERE run_id = ? ORDER BY timestamp ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var out []models.PDREntry
	for rows.Next() {
		var p models.PDREntry
		var rid, details sql.NullString
		if err := rows.Scan(&p.ID, &p.Action, &p.InputsHash, &p.Outcome, &rid, &details, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		p.RunID, p.Details = rid.String, details.String
		out = append(out, p)
	}
	return out, rows.Err()
}
