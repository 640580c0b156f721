//go:build integration

package postgres_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRepo_LoadEmptyReturnsDefault(t *testing.T) {
	db := setupTestContainer(t)
	repo := postgres.NewStateRepo(db)

	state, err := repo.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), state.TotalLamportsIn.Int64())
	assert.Equal(t, int64(0), state.TransactionCount)
	assert.Empty(t, state.LastProcessedSignature)
	assert.Nil(t, state.LastFullScanAt)
}

func TestStateRepo_SaveLoadRoundTrip(t *testing.T) {
	db := setupTestContainer(t)
	repo := postgres.NewStateRepo(db)
	ctx := context.Background()

	fullAt := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	incrAt := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	total, ok := new(big.Int).SetString("98765432109876543210", 10)
	require.True(t, ok)

	in := &model.LedgerState{
		TotalLamportsIn:        total,
		TransactionCount:       7,
		LastProcessedSignature: "sigNewest",
		LastFullScanAt:         &fullAt,
		LastIncrementalScanAt:  &incrAt,
		APICallsToday:          120,
		APICallsResetDate:      "2026-03-01",
	}
	require.NoError(t, repo.Save(ctx, in))

	out, err := repo.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, out.TotalLamportsIn.Cmp(total))
	assert.Equal(t, int64(7), out.TransactionCount)
	assert.Equal(t, "sigNewest", out.LastProcessedSignature)
	require.NotNil(t, out.LastFullScanAt)
	assert.True(t, out.LastFullScanAt.Equal(fullAt))
	require.NotNil(t, out.LastIncrementalScanAt)
	assert.True(t, out.LastIncrementalScanAt.Equal(incrAt))
	assert.Equal(t, 120, out.APICallsToday)
	assert.Equal(t, "2026-03-01", out.APICallsResetDate)
}

func TestStateRepo_SaveOverwritesSingleRow(t *testing.T) {
	db := setupTestContainer(t)
	repo := postgres.NewStateRepo(db)
	ctx := context.Background()

	first := model.NewLedgerState()
	first.TotalLamportsIn = big.NewInt(100)
	first.TransactionCount = 1
	require.NoError(t, repo.Save(ctx, first))

	second := model.NewLedgerState()
	second.TotalLamportsIn = big.NewInt(350)
	second.TransactionCount = 4
	second.LastProcessedSignature = "sigLater"
	require.NoError(t, repo.Save(ctx, second))

	out, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), out.TotalLamportsIn.Int64())
	assert.Equal(t, int64(4), out.TransactionCount)
	assert.Equal(t, "sigLater", out.LastProcessedSignature)

	var rows int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_state").Scan(&rows))
	assert.Equal(t, 1, rows)
}
