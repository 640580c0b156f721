package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/ratelimit"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
)

const (
	maxPageSize     = 1000
	defaultMaxPages = 200
)

// Paginator walks a wallet's signature history newest-first, one page at a
// time. Pages are handed to a callback so large histories never sit in
// memory whole.
type Paginator struct {
	client   rpc.RPCClient
	limiter  *ratelimit.Limiter
	pageSize int
	maxPages int
	logger   *slog.Logger
}

func NewPaginator(client rpc.RPCClient, limiter *ratelimit.Limiter, pageSize, maxPages int, logger *slog.Logger) *Paginator {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Paginator{
		client:   client,
		limiter:  limiter,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger.With("component", "paginator"),
	}
}

// PageFunc receives one newest-first page of signatures. Returning an error
// aborts the walk.
type PageFunc func(page []rpc.SignatureInfo) error

// Paginate walks the signature history of address. An empty until walks the
// full history; otherwise the walk stops when the node reaches that
// signature, which bounds an incremental scan to the signatures newer than
// the last checkpoint. The walk ends cleanly on an empty or short page.
// truncated reports that the page ceiling was hit with history left over.
func (p *Paginator) Paginate(ctx context.Context, address, until string, fn PageFunc) (truncated bool, err error) {
	before := ""
	for page := 1; ; page++ {
		if page > p.maxPages {
			p.logger.Warn("page ceiling reached, history truncated",
				"address", address,
				"max_pages", p.maxPages,
			)
			metrics.PaginatorTruncations.Inc()
			return true, nil
		}

		opts := &rpc.GetSignaturesOpts{Limit: p.pageSize}
		if before != "" {
			opts.Before = before
		}
		if until != "" {
			opts.Until = until
		}

		sigs, err := p.client.GetSignaturesForAddress(ctx, address, opts)
		if err != nil {
			return false, fmt.Errorf("fetch signature page %d: %w", page, err)
		}
		metrics.PaginatorPages.Inc()

		if len(sigs) == 0 {
			return false, nil
		}

		p.logger.Debug("signature page fetched",
			"page", page,
			"count", len(sigs),
			"newest", sigs[0].Signature,
		)

		if err := fn(sigs); err != nil {
			return false, err
		}

		if len(sigs) < p.pageSize {
			return false, nil
		}
		before = sigs[len(sigs)-1].Signature

		if err := p.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limiter: %w", err)
		}
	}
}
