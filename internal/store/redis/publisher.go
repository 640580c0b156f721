// Package redis publishes scan summaries to a Redis stream so downstream
// consumers (dashboards, notifiers) can react without polling the tracker.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
)

const defaultStream = "tracker:scan_events"

type Publisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewPublisher(url, stream string, logger *slog.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if stream == "" {
		stream = defaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "redis_publisher"),
	}, nil
}

// PublishScanSummary appends one scan event to the stream.
func (p *Publisher) PublishScanSummary(ctx context.Context, summary model.ScanSummary, state *model.LedgerState) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: summaryValues(summary, state),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd scan summary: %w", err)
	}

	p.logger.Debug("scan summary published", "stream", p.stream, "id", id)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func summaryValues(summary model.ScanSummary, state *model.LedgerState) map[string]interface{} {
	return map[string]interface{}{
		"run_id":            summary.RunID,
		"scan_type":         summary.Type.String(),
		"started_at":        summary.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"duration_ms":       strconv.FormatInt(summary.Duration.Milliseconds(), 10),
		"processed":         strconv.Itoa(summary.Processed),
		"inbound_count":     strconv.Itoa(summary.InboundCount),
		"inbound_lamports":  summary.InboundLamports.String(),
		"errors":            strconv.Itoa(summary.Errors),
		"truncated":         strconv.FormatBool(summary.Truncated),
		"total_lamports_in": state.TotalLamportsIn.String(),
		"total_sol":         model.FormatSOL(state.TotalLamportsIn),
		"transaction_count": strconv.FormatInt(state.TransactionCount, 10),
	}
}
