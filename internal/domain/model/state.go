package model

import (
	"math/big"
	"strings"
	"time"
)

// LamportsPerSOL is the fixed number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// BudgetDateLayout is the layout of the daily quota reset date.
const BudgetDateLayout = "2006-01-02"

type ScanType string

const (
	ScanTypeFull        ScanType = "full"
	ScanTypeIncremental ScanType = "incremental"
)

func (t ScanType) String() string {
	return string(t)
}

// LedgerState is the durable checkpoint for the tracked wallet. It is owned
// exclusively by the scan coordinator for the duration of a run and persisted
// as a whole record, never partially.
type LedgerState struct {
	// TotalLamportsIn is the lifetime gross inbound total. Only strictly
	// positive balance deltas are ever added, so it is monotonically
	// non-decreasing across incremental scans.
	TotalLamportsIn *big.Int

	// TransactionCount is the number of inbound transactions accounted for.
	TransactionCount int64

	// LastProcessedSignature is the newest signature observed by the last
	// completed scan. Empty until the first scan finds any history.
	LastProcessedSignature string

	LastFullScanAt        *time.Time
	LastIncrementalScanAt *time.Time

	// Daily RPC call budget, persisted so a restart within the same day
	// does not reset the quota.
	APICallsToday     int
	APICallsResetDate string
}

// NewLedgerState returns the zero-valued default state used when nothing has
// been persisted yet.
func NewLedgerState() *LedgerState {
	return &LedgerState{
		TotalLamportsIn: big.NewInt(0),
	}
}

// ScanStatus is the in-memory snapshot read by the status endpoint. Writes
// are last-value-wins; readers always see a complete copy.
type ScanStatus struct {
	Running          bool       `json:"running"`
	RunID            string     `json:"run_id,omitempty"`
	TotalSOL         string     `json:"total_sol"`
	TotalLamports    string     `json:"total_lamports"`
	TransactionCount int64      `json:"transaction_count"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	LastRunMs        int64      `json:"last_run_ms"`
	APICallsUsed     int        `json:"api_calls_used"`
	Truncated        bool       `json:"truncated,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
}

// ScanSummary describes one completed scan run.
type ScanSummary struct {
	RunID           string
	Type            ScanType
	StartedAt       time.Time
	Duration        time.Duration
	Processed       int
	InboundCount    int
	InboundLamports *big.Int
	Errors          int
	Truncated       bool
}

// FormatSOL renders a lamport amount as a decimal SOL string with trailing
// zeros trimmed, e.g. 1500000000 -> "1.5".
func FormatSOL(lamports *big.Int) string {
	if lamports == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Abs(lamports)
	if lamports.Sign() < 0 {
		sign = "-"
	}

	quo, rem := new(big.Int).QuoRem(abs, big.NewInt(LamportsPerSOL), new(big.Int))
	if rem.Sign() == 0 {
		return sign + quo.String()
	}

	frac := rem.String()
	for len(frac) < 9 {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")
	return sign + quo.String() + "." + frac
}
