// Package audit provides PDR (Process Decision Record) writing for
// planning runs.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/rackplan/internal/models"
)

// PDRStore is the ledger surface the writer needs. Both the SQLite and
// PostgreSQL ledgers satisfy it.
type PDRStore interface {
	WritePDR(action, inputsHash, outcome, runID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store PDRStore
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s PDRStore) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a planning decision.
func (w *PDRWriter) Record(action string, inputs any, outcome, runID, details string) (*models.PDREntry, error) {
	return w.store.WritePDR(action, HashInputs(inputs), outcome, runID, details)
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
