// Package models defines the persisted record types of a planning run.
package models

import "time"

// RunStatus represents the current state of a planning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the planning pipeline.
type Run struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Status     RunStatus  `json:"status"`
	Agents     int        `json:"agents"`
	Tasks      int        `json:"tasks"`
	Seed       int64      `json:"seed"`
	ConfigHash string     `json:"config_hash"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Allocation records which agent a task went to and what it realized.
type Allocation struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	RunID       string    `json:"run_id" gorm:"index"`
	Task        int       `json:"task"`
	Agent       int       `json:"agent"`
	Policy      int       `json:"policy"`
	RackX       int       `json:"rack_x"`
	RackY       int       `json:"rack_y"`
	Feed        int       `json:"feed"`
	Cost        float64   `json:"cost"`
	Probability float64   `json:"probability"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScheduleKind distinguishes task schedules from regeneration schedules.
type ScheduleKind string

const (
	ScheduleKindTask  ScheduleKind = "task"
	ScheduleKindRegen ScheduleKind = "regen"
)

// ScheduleFile points at one schedule written to disk.
type ScheduleFile struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	RunID     string       `json:"run_id" gorm:"index"`
	Kind      ScheduleKind `json:"kind"`
	Agent     int          `json:"agent"`
	Task      int          `json:"task"`
	Path      string       `json:"path"`
	Records   int          `json:"records"`
	Objective float64      `json:"objective"`
	CreatedAt time.Time    `json:"created_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	RunID      string    `json:"run_id,omitempty" gorm:"index"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TableName keeps the PDR table name shared with the SQLite ledger.
func (PDREntry) TableName() string { return "pdr" }
