package redis

import (
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_InvalidURL(t *testing.T) {
	_, err := NewPublisher("not-a-url", "", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestSummaryValues(t *testing.T) {
	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	summary := model.ScanSummary{
		RunID:           "run-123",
		Type:            model.ScanTypeIncremental,
		StartedAt:       started,
		Duration:        90 * time.Second,
		Processed:       250,
		InboundCount:    12,
		InboundLamports: big.NewInt(1_500_000_000),
		Errors:          1,
		Truncated:       false,
	}
	state := model.NewLedgerState()
	state.TotalLamportsIn = big.NewInt(7_250_000_000)
	state.TransactionCount = 98

	values := summaryValues(summary, state)

	assert.Equal(t, "run-123", values["run_id"])
	assert.Equal(t, "incremental", values["scan_type"])
	assert.Equal(t, "2026-03-01T06:00:00Z", values["started_at"])
	assert.Equal(t, "90000", values["duration_ms"])
	assert.Equal(t, "250", values["processed"])
	assert.Equal(t, "12", values["inbound_count"])
	assert.Equal(t, "1500000000", values["inbound_lamports"])
	assert.Equal(t, "1", values["errors"])
	assert.Equal(t, "false", values["truncated"])
	assert.Equal(t, "7250000000", values["total_lamports_in"])
	assert.Equal(t, "7.25", values["total_sol"])
	assert.Equal(t, "98", values["transaction_count"])
}
