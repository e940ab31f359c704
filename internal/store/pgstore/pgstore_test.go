package pgstore

import (
	"errors"
	"os"
	"testing"

	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/store"
)

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("RACKPLAN_PG_DSN")
	if dsn == "" {
		t.Skip("RACKPLAN_PG_DSN is required for integration test")
	}
	return dsn
}

func TestRunRoundTrip(t *testing.T) {
	s, err := Open(requireDSN(t))
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer s.Close()

	run, err := s.CreateRun(1234, 4, 9, "it-hash")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := s.RecordAllocation(&models.Allocation{RunID: run.ID, Task: 0, Agent: 2, Cost: -5, Probability: 1}); err != nil {
		t.Fatalf("record allocation: %v", err)
	}
	if err := s.RecordSchedule(&models.ScheduleFile{RunID: run.ID, Kind: models.ScheduleKindRegen, Agent: 2, Path: "regen_2.json"}); err != nil {
		t.Fatalf("record schedule: %v", err)
	}
	if _, err := s.WritePDR("allocate", "h", "success", run.ID, ""); err != nil {
		t.Fatalf("write pdr: %v", err)
	}
	if err := s.FinishRun(run.ID, nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	allocs, err := s.ListAllocations(run.ID)
	if err != nil || len(allocs) != 1 || allocs[0].Agent != 2 {
		t.Fatalf("unexpected allocations %+v, err %v", allocs, err)
	}
	f, err := s.FindSchedule(run.ID, models.ScheduleKindRegen, 2, 0)
	if err != nil || f.Path != "regen_2.json" {
		t.Fatalf("unexpected schedule %+v, err %v", f, err)
	}
	if _, err := s.GetRun("does-not-exist"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
