// Package store defines the persistence contract for the ledger checkpoint.
package store

import (
	"context"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
)

// StateStore persists the single ledger checkpoint. Load returns the
// zero-valued default state when nothing has been saved yet. Save replaces
// the whole record.
type StateStore interface {
	Load(ctx context.Context) (*model.LedgerState, error)
	Save(ctx context.Context, state *model.LedgerState) error
}
