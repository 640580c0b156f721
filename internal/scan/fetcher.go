package scan

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
)

const (
	defaultFetchConcurrency = 10
)

type FetcherConfig struct {
	// Concurrency caps in-flight getTransaction calls.
	Concurrency int

	// PauseEvery inserts a courtesy pause after that many transactions.
	// Zero disables pausing.
	PauseEvery int
	PauseFor   time.Duration

	// ExcludeSelfTransfers subtracts transfers the wallet sends to itself
	// from the inbound amount.
	ExcludeSelfTransfers bool

	// LargeTransferLamports logs inbound transfers at or above this
	// amount. Zero disables the log.
	LargeTransferLamports int64
}

// Fetcher resolves a page of signatures into transactions and sums the
// inbound lamports for one address. Individual fetch or parse failures are
// counted and skipped; only quota exhaustion or context cancellation abort
// the batch.
type Fetcher struct {
	client rpc.RPCClient
	cfg    FetcherConfig
	logger *slog.Logger

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewFetcher(client rpc.RPCClient, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultFetchConcurrency
	}
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "fetcher"),
		sleepFn: sleepCtx,
	}
}

// BatchResult accumulates the outcome of one or more signature pages.
type BatchResult struct {
	TotalInbound *big.Int
	InboundCount int
	Processed    int
	Skipped      int
	Errors       int
	EarliestTime *time.Time
	LatestTime   *time.Time
}

func NewBatchResult() BatchResult {
	return BatchResult{TotalInbound: new(big.Int)}
}

// Merge folds other into r.
func (r *BatchResult) Merge(other BatchResult) {
	if other.TotalInbound != nil {
		r.TotalInbound.Add(r.TotalInbound, other.TotalInbound)
	}
	r.InboundCount += other.InboundCount
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Errors += other.Errors
	if other.EarliestTime != nil && (r.EarliestTime == nil || other.EarliestTime.Before(*r.EarliestTime)) {
		r.EarliestTime = other.EarliestTime
	}
	if other.LatestTime != nil && (r.LatestTime == nil || other.LatestTime.After(*r.LatestTime)) {
		r.LatestTime = other.LatestTime
	}
}

// FetchAndSum processes one page of signatures for address. Signatures that
// failed on chain are skipped without a fetch.
func (f *Fetcher) FetchAndSum(ctx context.Context, address string, sigs []rpc.SignatureInfo) (BatchResult, error) {
	res := NewBatchResult()
	var mu sync.Mutex
	var done atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	// Skips are counted outside res while workers from earlier iterations
	// still hold references to it; they fold in after Wait.
	skipped := 0
	for _, sig := range sigs {
		if sig.Failed() {
			skipped++
			metrics.FetcherTransactions.WithLabelValues("skipped_failed").Inc()
			continue
		}

		g.Go(func() error {
			tx, err := f.client.GetTransaction(gCtx, sig.Signature)
			if err != nil {
				if errors.Is(err, rpc.ErrQuotaExceeded) || gCtx.Err() != nil {
					return err
				}
				f.logger.Warn("transaction fetch failed, skipping",
					"signature", sig.Signature,
					"error", err,
				)
				metrics.FetcherTransactions.WithLabelValues("error").Inc()
				mu.Lock()
				res.Processed++
				res.Errors++
				mu.Unlock()
				return nil
			}

			if tx == nil {
				f.logger.Warn("transaction not found on node", "signature", sig.Signature)
				metrics.FetcherTransactions.WithLabelValues("missing").Inc()
				mu.Lock()
				res.Processed++
				res.Errors++
				mu.Unlock()
				return nil
			}

			delta := BalanceDelta(tx, address)
			if f.cfg.ExcludeSelfTransfers && delta > 0 {
				if self := SelfTransferLamports(tx, address); self > 0 {
					delta -= self
					if delta < 0 {
						delta = 0
					}
				}
			}

			mu.Lock()
			res.Processed++
			if delta > 0 {
				res.InboundCount++
				res.TotalInbound.Add(res.TotalInbound, big.NewInt(delta))
			}
			if bt := blockTimeOf(sig, tx); bt != nil {
				if res.EarliestTime == nil || bt.Before(*res.EarliestTime) {
					res.EarliestTime = bt
				}
				if res.LatestTime == nil || bt.After(*res.LatestTime) {
					res.LatestTime = bt
				}
			}
			mu.Unlock()

			if delta > 0 {
				metrics.FetcherTransactions.WithLabelValues("inbound").Inc()
				if f.cfg.LargeTransferLamports > 0 && delta >= f.cfg.LargeTransferLamports {
					f.logger.Info("large inbound transfer",
						"signature", sig.Signature,
						"lamports", delta,
						"sol", model.FormatSOL(big.NewInt(delta)),
					)
				}
			} else {
				metrics.FetcherTransactions.WithLabelValues("no_inbound").Inc()
			}

			if f.cfg.PauseEvery > 0 {
				if n := done.Add(1); n%int64(f.cfg.PauseEvery) == 0 {
					if err := f.sleepFn(gCtx, f.cfg.PauseFor); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	err := g.Wait()
	res.Processed += skipped
	res.Skipped += skipped
	if err != nil {
		return res, err
	}
	return res, nil
}

func blockTimeOf(sig rpc.SignatureInfo, tx *rpc.TransactionResult) *time.Time {
	var unix *int64
	switch {
	case tx.BlockTime != nil:
		unix = tx.BlockTime
	case sig.BlockTime != nil:
		unix = sig.BlockTime
	default:
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
