package main

import (
	"fmt"

	"github.com/fentz26/rackplan/internal/controlplane"
	"github.com/fentz26/rackplan/internal/planner"
	"github.com/fentz26/rackplan/internal/store"
	"github.com/fentz26/rackplan/internal/store/pgstore"
)

// ledger is what the commands need from either backend.
type ledger interface {
	planner.Ledger
	controlplane.Ledger
	Close() error
}

// loadConfig reads --config and applies the ledger flag overrides.
func loadConfig() (*planner.Config, error) {
	cfg, err := planner.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbOverride != "" {
		cfg.Ledger.Path = dbOverride
	}
	if dsnOverride != "" {
		cfg.Ledger.DSN = dsnOverride
	}
	return cfg, nil
}

// openLedger opens PostgreSQL when a DSN is configured, otherwise the
// SQLite file.
func openLedger(cfg planner.LedgerConfig) (ledger, error) {
	if cfg.DSN != "" {
		s, err := pgstore.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return s, nil
	}
	s, err := store.New(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger %s: %w", cfg.Path, err)
	}
	return s, nil
}
