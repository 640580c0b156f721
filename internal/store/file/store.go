// Package file persists the ledger checkpoint as a JSON document, written
// atomically via a temp file and rename.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
)

type Store struct {
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "file_store"),
	}
}

// persistedState is the on-disk shape. The lamport total is a decimal
// string so it survives json number precision limits.
type persistedState struct {
	TotalLamportsIn        string     `json:"total_lamports_in"`
	TransactionCount       int64      `json:"transaction_count"`
	LastProcessedSignature string     `json:"last_processed_signature,omitempty"`
	LastFullScanAt         *time.Time `json:"last_full_scan_at,omitempty"`
	LastIncrementalScanAt  *time.Time `json:"last_incremental_scan_at,omitempty"`
	APICallsToday          int        `json:"api_calls_today"`
	APICallsResetDate      string     `json:"api_calls_reset_date,omitempty"`
}

func (s *Store) Load(ctx context.Context) (*model.LedgerState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no checkpoint on disk, starting fresh", "path", s.path)
		return model.NewLedgerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	total := new(big.Int)
	if p.TotalLamportsIn != "" {
		if _, ok := total.SetString(p.TotalLamportsIn, 10); !ok {
			return nil, fmt.Errorf("parse state file %s: invalid lamport total %q", s.path, p.TotalLamportsIn)
		}
	}

	return &model.LedgerState{
		TotalLamportsIn:        total,
		TransactionCount:       p.TransactionCount,
		LastProcessedSignature: p.LastProcessedSignature,
		LastFullScanAt:         p.LastFullScanAt,
		LastIncrementalScanAt:  p.LastIncrementalScanAt,
		APICallsToday:          p.APICallsToday,
		APICallsResetDate:      p.APICallsResetDate,
	}, nil
}

func (s *Store) Save(ctx context.Context, state *model.LedgerState) error {
	p := persistedState{
		TotalLamportsIn:        state.TotalLamportsIn.String(),
		TransactionCount:       state.TransactionCount,
		LastProcessedSignature: state.LastProcessedSignature,
		LastFullScanAt:         state.LastFullScanAt,
		LastIncrementalScanAt:  state.LastIncrementalScanAt,
		APICallsToday:          state.APICallsToday,
		APICallsResetDate:      state.APICallsResetDate,
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
