package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/rackplan/internal/store"
)

func TestRecord(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	w := NewPDRWriter(s)
	inputs := map[string]int{"task": 3, "agent": 1}
	pdr, err := w.Record("allocate", inputs, "success", "run-1", "task 3 -> agent 1")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if pdr.InputsHash != HashInputs(inputs) {
		t.Errorf("Expected inputs hash %s, got %s", HashInputs(inputs), pdr.InputsHash)
	}

	got, err := s.ListPDRs("run-1")
	if err != nil {
		t.Fatalf("ListPDRs failed: %v", err)
	}
	if len(got) != 1 || got[0].Action != "allocate" {
		t.Errorf("Unexpected PDRs %+v", got)
	}
}

func TestHashInputs(t *testing.T) {
	a := HashInputs(map[string]int{"x": 1, "y": 2})
	b := HashInputs(map[string]int{"y": 2, "x": 1})
	if a != b {
		t.Errorf("Expected map key order not to affect the hash")
	}
	if a == HashInputs(map[string]int{"x": 2}) {
		t.Errorf("Expected different inputs to hash differently")
	}
	if got := HashInputs(func() {}); got != "hash_error" {
		t.Errorf("Expected hash_error for unmarshalable input, got %s", got)
	}
}
