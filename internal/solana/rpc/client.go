package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/ratelimit"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/retry"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/tracing"
)

// RPCClient abstracts the Solana JSON-RPC interface for testing.
type RPCClient interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *GetSignaturesOpts) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*TransactionResult, error)
}

const (
	defaultRateLimitAttempts = 5
	defaultServerAttempts    = 3
	defaultRateLimitBase     = 2 * time.Second
	defaultServerDelay       = 1 * time.Second
)

// Client is a JSON-RPC client with a daily call budget and bounded retries.
// Rate-limit responses back off on an escalating schedule; other transient
// failures retry on a fixed delay. Terminal errors return immediately.
type Client struct {
	httpClient *http.Client
	rpcURL     string
	requestID  atomic.Int64
	budget     *Budget
	logger     *slog.Logger

	rateLimitAttempts int
	serverAttempts    int
	rateLimitBase     time.Duration
	serverDelay       time.Duration

	sleepFn func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy overrides the retry attempt counts and delays.
func WithRetryPolicy(rateLimitAttempts, serverAttempts int, rateLimitBase, serverDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.rateLimitAttempts = rateLimitAttempts
		c.serverAttempts = serverAttempts
		c.rateLimitBase = rateLimitBase
		c.serverDelay = serverDelay
	}
}

func NewClient(rpcURL string, budget *Budget, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rpcURL:            rpcURL,
		budget:            budget,
		logger:            logger.With("component", "rpc_client"),
		rateLimitAttempts: defaultRateLimitAttempts,
		serverAttempts:    defaultServerAttempts,
		rateLimitBase:     defaultRateLimitBase,
		serverDelay:       defaultServerDelay,
		sleepFn:           sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rateLimitDelay is the backoff before rate-limit retry n (1-based). It is a
// pure function of the attempt number so tests can pin the schedule.
func rateLimitDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(attempt) * base
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	ctx, span := tracing.Tracer("rpc_client").Start(ctx, "rpc.call",
		otelTrace.WithAttributes(attribute.String("rpc.method", method)),
	)
	defer span.End()

	result, err := c.callWithRetry(ctx, method, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (c *Client) callWithRetry(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var rateLimitTries, serverTries int

	for {
		if err := c.budget.Acquire(); err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}

		result, err := c.doCall(ctx, method, params)
		ratelimit.RecordRPCCall(method, err)
		if err == nil {
			c.budget.Commit()
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", method, ctx.Err())
		}

		if retry.IsRateLimited(err) {
			rateLimitTries++
			if rateLimitTries >= c.rateLimitAttempts {
				return nil, fmt.Errorf("%s: %w: %v", method, ErrRateLimited, err)
			}
			delay := rateLimitDelay(c.rateLimitBase, rateLimitTries)
			c.logger.Warn("rate limited, backing off",
				"method", method,
				"attempt", rateLimitTries,
				"delay", delay,
			)
			c.recordRetry(method, "rate_limited")
			if err := c.sleepFn(ctx, delay); err != nil {
				return nil, fmt.Errorf("%s: %w", method, err)
			}
			continue
		}

		decision := retry.Classify(err)
		if !decision.IsTransient() {
			return nil, fmt.Errorf("%s: %w", method, err)
		}

		serverTries++
		if serverTries >= c.serverAttempts {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrUnavailable, err)
		}
		c.logger.Warn("transient rpc failure, retrying",
			"method", method,
			"attempt", serverTries,
			"reason", decision.Reason,
			"error", err,
		)
		c.recordRetry(method, decision.Reason)
		if err := c.sleepFn(ctx, c.serverDelay); err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
	}
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.requestID.Add(1))
	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

func (c *Client) recordRetry(method, reason string) {
	metrics.RPCRetriesTotal.WithLabelValues(method, reason).Inc()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
