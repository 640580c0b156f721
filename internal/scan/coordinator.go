package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/alert"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/store"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/tracing"
)

// ErrScanInProgress is returned when a scan is requested while another one
// holds the single-flight slot.
var ErrScanInProgress = errors.New("scan already in progress")

// Publisher emits scan summaries to an external sink. Publishing is best
// effort; a failure never fails the scan.
type Publisher interface {
	PublishScanSummary(ctx context.Context, summary model.ScanSummary, state *model.LedgerState) error
}

type CoordinatorConfig struct {
	// Address is the tracked wallet.
	Address string

	// FullScanInterval forces a full replay when the last one is older
	// than this. Zero means incremental scans never escalate on age.
	FullScanInterval time.Duration

	// ScanTimeout bounds one run end to end. Zero disables the deadline.
	ScanTimeout time.Duration
}

// Coordinator owns the scan lifecycle: it decides full vs incremental,
// drives the paginator and fetcher, merges results into the ledger state,
// and persists the checkpoint. At most one scan runs at a time; totals are
// only persisted after the whole scan succeeds, so a failed run leaves the
// previous checkpoint untouched.
type Coordinator struct {
	paginator *Paginator
	fetcher   *Fetcher
	store     store.StateStore
	budget    *rpc.Budget
	alerter   alert.Alerter
	publisher Publisher
	cfg       CoordinatorConfig
	logger    *slog.Logger

	running atomic.Bool

	statusMu sync.RWMutex
	status   model.ScanStatus

	now func() time.Time
}

func NewCoordinator(
	paginator *Paginator,
	fetcher *Fetcher,
	stateStore store.StateStore,
	budget *rpc.Budget,
	alerter alert.Alerter,
	publisher Publisher,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *Coordinator {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	return &Coordinator{
		paginator: paginator,
		fetcher:   fetcher,
		store:     stateStore,
		budget:    budget,
		alerter:   alerter,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("component", "coordinator"),
		now:       time.Now,
	}
}

// SeedStatus primes the status snapshot from a loaded checkpoint so the
// status endpoint reports totals before the first scan of this process.
func (c *Coordinator) SeedStatus(state *model.LedgerState) {
	updated := state.LastIncrementalScanAt
	if updated == nil {
		updated = state.LastFullScanAt
	}

	c.statusMu.Lock()
	c.status = model.ScanStatus{
		TotalSOL:         model.FormatSOL(state.TotalLamportsIn),
		TotalLamports:    state.TotalLamportsIn.String(),
		TransactionCount: state.TransactionCount,
		LastUpdated:      updated,
		APICallsUsed:     state.APICallsToday,
	}
	c.statusMu.Unlock()

	setLedgerGauges(state)
}

// Status returns a copy of the latest scan status.
func (c *Coordinator) Status() model.ScanStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// RunScan executes one scan synchronously. forceFull replays the whole
// history regardless of the checkpoint.
func (c *Coordinator) RunScan(ctx context.Context, forceFull bool) (*model.ScanSummary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	return c.run(ctx, forceFull, uuid.NewString())
}

// Trigger starts a scan in the background and returns its run ID. The
// caller owns nothing; progress is observable via Status.
func (c *Coordinator) Trigger(forceFull bool) (string, error) {
	if !c.running.CompareAndSwap(false, true) {
		return "", ErrScanInProgress
	}
	runID := uuid.NewString()
	go func() {
		if _, err := c.run(context.Background(), forceFull, runID); err != nil {
			c.logger.Error("background scan failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// run assumes the caller already won the single-flight slot.
func (c *Coordinator) run(ctx context.Context, forceFull bool, runID string) (*model.ScanSummary, error) {
	defer c.running.Store(false)

	start := c.now()
	if c.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ScanTimeout)
		defer cancel()
	}

	ctx, span := tracing.Tracer("coordinator").Start(ctx, "coordinator.run",
		otelTrace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("address", c.cfg.Address),
			attribute.Bool("force_full", forceFull),
		),
	)
	defer span.End()

	c.setRunning(runID)

	state, err := c.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load checkpoint: %w", err)
		c.finishFailure(runID, "unknown", start, err, span)
		return nil, err
	}
	c.budget.Restore(state.APICallsToday, state.APICallsResetDate)

	scanType := model.ScanTypeIncremental
	if forceFull || c.needsFullScan(state) {
		scanType = model.ScanTypeFull
	}

	c.logger.Info("scan starting",
		"run_id", runID,
		"type", scanType,
		"address", c.cfg.Address,
		"checkpoint", state.LastProcessedSignature,
	)

	var summary *model.ScanSummary
	if scanType == model.ScanTypeFull {
		summary, err = c.runFull(ctx, state, runID, start)
	} else {
		summary, err = c.runIncremental(ctx, state, runID, start)
		if err == nil && summary.Truncated {
			// The page ceiling cut the walk short of the checkpoint,
			// leaving a gap the next incremental would skip over. A
			// full replay repairs the totals in the same run.
			c.logger.Warn("incremental scan truncated, escalating to full scan",
				"run_id", runID,
				"checkpoint", state.LastProcessedSignature,
			)
			scanType = model.ScanTypeFull
			summary, err = c.runFull(ctx, state, runID, start)
		}
	}
	if err != nil {
		c.finishFailure(runID, scanType.String(), start, err, span)
		return nil, err
	}

	state.APICallsToday, state.APICallsResetDate = c.budget.Snapshot()
	if err := c.store.Save(ctx, state); err != nil {
		err = fmt.Errorf("save checkpoint: %w", err)
		c.finishFailure(runID, scanType.String(), start, err, span)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("scan_type", scanType.String()),
		attribute.Int("processed", summary.Processed),
		attribute.Int("inbound", summary.InboundCount),
		attribute.Bool("truncated", summary.Truncated),
	)

	c.finishSuccess(summary, state)
	return summary, nil
}

func (c *Coordinator) needsFullScan(state *model.LedgerState) bool {
	if state.LastFullScanAt == nil {
		return true
	}
	if c.cfg.FullScanInterval > 0 && c.now().Sub(*state.LastFullScanAt) >= c.cfg.FullScanInterval {
		return true
	}
	return false
}

// runFull replays the entire history and replaces the totals wholesale.
func (c *Coordinator) runFull(ctx context.Context, state *model.LedgerState, runID string, start time.Time) (*model.ScanSummary, error) {
	agg := NewBatchResult()
	newest := ""

	truncated, err := c.paginator.Paginate(ctx, c.cfg.Address, "", func(page []rpc.SignatureInfo) error {
		if newest == "" && len(page) > 0 {
			newest = page[0].Signature
		}
		batch, err := c.fetcher.FetchAndSum(ctx, c.cfg.Address, page)
		agg.Merge(batch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("full scan: %w", err)
	}

	state.TotalLamportsIn = new(big.Int).Set(agg.TotalInbound)
	state.TransactionCount = int64(agg.InboundCount)
	if newest != "" {
		state.LastProcessedSignature = newest
	}
	now := c.now()
	state.LastFullScanAt = &now
	state.LastIncrementalScanAt = &now

	summary := c.summarize(runID, model.ScanTypeFull, start, agg, truncated)
	if truncated {
		c.alertTruncated(ctx, runID)
	}
	return summary, nil
}

// runIncremental scans only signatures newer than the checkpoint and merges
// the result into the running totals.
func (c *Coordinator) runIncremental(ctx context.Context, state *model.LedgerState, runID string, start time.Time) (*model.ScanSummary, error) {
	agg := NewBatchResult()
	newest := ""

	truncated, err := c.paginator.Paginate(ctx, c.cfg.Address, state.LastProcessedSignature, func(page []rpc.SignatureInfo) error {
		if newest == "" && len(page) > 0 {
			newest = page[0].Signature
		}
		batch, err := c.fetcher.FetchAndSum(ctx, c.cfg.Address, page)
		agg.Merge(batch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("incremental scan: %w", err)
	}

	state.TotalLamportsIn.Add(state.TotalLamportsIn, agg.TotalInbound)
	state.TransactionCount += int64(agg.InboundCount)
	if newest != "" {
		state.LastProcessedSignature = newest
	}
	now := c.now()
	state.LastIncrementalScanAt = &now

	// A truncated incremental is escalated by the caller; only a full
	// replay that still hits the ceiling alerts.
	return c.summarize(runID, model.ScanTypeIncremental, start, agg, truncated), nil
}

func (c *Coordinator) summarize(runID string, scanType model.ScanType, start time.Time, agg BatchResult, truncated bool) *model.ScanSummary {
	return &model.ScanSummary{
		RunID:           runID,
		Type:            scanType,
		StartedAt:       start,
		Duration:        c.now().Sub(start),
		Processed:       agg.Processed,
		InboundCount:    agg.InboundCount,
		InboundLamports: agg.TotalInbound,
		Errors:          agg.Errors,
		Truncated:       truncated,
	}
}

func (c *Coordinator) setRunning(runID string) {
	// LastError is kept until a run completes; it describes the last
	// terminal outcome, not the in-flight run.
	c.statusMu.Lock()
	c.status.Running = true
	c.status.RunID = runID
	c.statusMu.Unlock()
}

func (c *Coordinator) finishSuccess(summary *model.ScanSummary, state *model.LedgerState) {
	updated := c.now()

	c.statusMu.Lock()
	recovered := c.status.LastError != ""
	c.status = model.ScanStatus{
		Running:          false,
		RunID:            summary.RunID,
		TotalSOL:         model.FormatSOL(state.TotalLamportsIn),
		TotalLamports:    state.TotalLamportsIn.String(),
		TransactionCount: state.TransactionCount,
		LastUpdated:      &updated,
		LastRunMs:        summary.Duration.Milliseconds(),
		APICallsUsed:     state.APICallsToday,
		Truncated:        summary.Truncated,
	}
	c.statusMu.Unlock()

	metrics.ScansTotal.WithLabelValues(summary.Type.String(), "success").Inc()
	metrics.ScanDuration.WithLabelValues(summary.Type.String()).Observe(summary.Duration.Seconds())
	setLedgerGauges(state)

	if recovered {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Wallet:  c.cfg.Address,
			Title:   "Scanning recovered",
			Message: fmt.Sprintf("Scan %s completed after a previous failure", summary.RunID),
			Fields:  map[string]string{"run_id": summary.RunID},
		}); err != nil {
			c.logger.Warn("alert dispatch failed", "error", err)
		}
	}

	c.logger.Info("scan completed",
		"run_id", summary.RunID,
		"type", summary.Type,
		"duration", summary.Duration,
		"processed", summary.Processed,
		"inbound", summary.InboundCount,
		"inbound_lamports", summary.InboundLamports.String(),
		"errors", summary.Errors,
		"truncated", summary.Truncated,
		"total_sol", model.FormatSOL(state.TotalLamportsIn),
	)

	if c.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.publisher.PublishScanSummary(ctx, *summary, state); err != nil {
			c.logger.Warn("scan summary publish failed", "run_id", summary.RunID, "error", err)
		}
	}
}

// finishFailure records a terminal failure. scanType is "unknown" when the
// run failed before the full-or-incremental decision was made.
func (c *Coordinator) finishFailure(runID, scanType string, start time.Time, err error, span otelTrace.Span) {
	elapsed := c.now().Sub(start)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	c.statusMu.Lock()
	c.status.Running = false
	c.status.RunID = runID
	c.status.LastRunMs = elapsed.Milliseconds()
	c.status.LastError = err.Error()
	c.statusMu.Unlock()

	metrics.ScansTotal.WithLabelValues(scanType, "failure").Inc()

	c.logger.Error("scan failed", "run_id", runID, "duration", elapsed, "error", err)

	alertType := alert.AlertTypeScanFailed
	title := "Scan failed"
	if errors.Is(err, rpc.ErrQuotaExceeded) {
		alertType = alert.AlertTypeQuotaExceeded
		title = "Daily call quota spent"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sendErr := c.alerter.Send(ctx, alert.Alert{
		Type:    alertType,
		Wallet:  c.cfg.Address,
		Title:   title,
		Message: err.Error(),
		Fields:  map[string]string{"run_id": runID},
	}); sendErr != nil {
		c.logger.Warn("alert dispatch failed", "error", sendErr)
	}
}

func (c *Coordinator) alertTruncated(ctx context.Context, runID string) {
	if err := c.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeTruncated,
		Wallet:  c.cfg.Address,
		Title:   "History truncated",
		Message: "Page ceiling reached before history was exhausted; totals understate the lifetime sum",
		Fields: map[string]string{
			"run_id":    runID,
			"max_pages": strconv.Itoa(c.paginator.maxPages),
		},
	}); err != nil {
		c.logger.Warn("alert dispatch failed", "error", err)
	}
}

func setLedgerGauges(state *model.LedgerState) {
	total, _ := new(big.Float).SetInt(state.TotalLamportsIn).Float64()
	metrics.LifetimeInboundLamports.Set(total)
	metrics.InboundTransactions.Set(float64(state.TransactionCount))
}
