package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
)

// StateRepo persists the ledger checkpoint as the single row of the
// ledger_state table. The lamport total is a NUMERIC column carried as a
// decimal string on the Go side.
type StateRepo struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) Load(ctx context.Context) (*model.LedgerState, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		total      string
		txCount    int64
		lastSig    sql.NullString
		fullAt     sql.NullTime
		incrAt     sql.NullTime
		callsToday int
		resetDate  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT total_lamports_in::text, transaction_count, last_processed_signature,
		       last_full_scan_at, last_incremental_scan_at, api_calls_today, api_calls_reset_date
		FROM ledger_state
		WHERE id = 1
	`).Scan(&total, &txCount, &lastSig, &fullAt, &incrAt, &callsToday, &resetDate)
	if err == sql.ErrNoRows {
		return model.NewLedgerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}

	totalInt, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return nil, fmt.Errorf("load ledger state: invalid lamport total %q", total)
	}

	state := &model.LedgerState{
		TotalLamportsIn:        totalInt,
		TransactionCount:       txCount,
		LastProcessedSignature: lastSig.String,
		APICallsToday:          callsToday,
		APICallsResetDate:      resetDate.String,
	}
	if fullAt.Valid {
		t := fullAt.Time.UTC()
		state.LastFullScanAt = &t
	}
	if incrAt.Valid {
		t := incrAt.Time.UTC()
		state.LastIncrementalScanAt = &t
	}
	return state, nil
}

func (r *StateRepo) Save(ctx context.Context, state *model.LedgerState) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var lastSig sql.NullString
	if state.LastProcessedSignature != "" {
		lastSig = sql.NullString{String: state.LastProcessedSignature, Valid: true}
	}
	var resetDate sql.NullString
	if state.APICallsResetDate != "" {
		resetDate = sql.NullString{String: state.APICallsResetDate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_state (
			id, total_lamports_in, transaction_count, last_processed_signature,
			last_full_scan_at, last_incremental_scan_at, api_calls_today, api_calls_reset_date, updated_at
		)
		VALUES (1, $1::numeric, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			total_lamports_in = EXCLUDED.total_lamports_in,
			transaction_count = EXCLUDED.transaction_count,
			last_processed_signature = EXCLUDED.last_processed_signature,
			last_full_scan_at = EXCLUDED.last_full_scan_at,
			last_incremental_scan_at = EXCLUDED.last_incremental_scan_at,
			api_calls_today = EXCLUDED.api_calls_today,
			api_calls_reset_date = EXCLUDED.api_calls_reset_date,
			updated_at = now()
	`, state.TotalLamportsIn.String(), state.TransactionCount, lastSig,
		nullableTime(state.LastFullScanAt), nullableTime(state.LastIncrementalScanAt),
		state.APICallsToday, resetDate)
	if err != nil {
		return fmt.Errorf("save ledger state: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
