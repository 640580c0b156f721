package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string    { return e.msg }
func (e *codedError) JSONRPCCode() int { return e.code }

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o deadline reached" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		reason    string
	}{
		{"nil", nil, false, "nil_error"},
		{"context canceled", context.Canceled, false, "context_canceled"},
		{"context deadline", context.DeadlineExceeded, true, "context_deadline_exceeded"},
		{"wrapped cancel", fmt.Errorf("fetch: %w", context.Canceled), false, "context_canceled"},
		{"net timeout", timeoutError{}, true, "net_timeout"},
		{"jsonrpc internal", &codedError{code: -32603, msg: "internal error"}, true, "jsonrpc_server_transient"},
		{"jsonrpc node behind", &codedError{code: -32005, msg: "node is behind"}, true, "jsonrpc_server_transient"},
		{"jsonrpc server range", &codedError{code: -32004, msg: "block not available"}, true, "jsonrpc_server_range"},
		{"jsonrpc invalid params", &codedError{code: -32602, msg: "invalid params"}, false, "jsonrpc_terminal"},
		{"http 503 message", errors.New("http status 503: bad gateway"), true, "message_transient"},
		{"terminal message", errors.New("rpc: invalid params for method"), false, "message_terminal"},
		{"unknown default", errors.New("something odd"), false, "unknown_terminal_default"},
		{"explicit transient", Transient(errors.New("flaky")), true, "explicit_transient"},
		{"explicit terminal", Terminal(errors.New("broken")), false, "explicit_terminal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.err)
			assert.Equal(t, tt.transient, d.IsTransient())
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	assert.False(t, IsRateLimited(nil))
	assert.True(t, IsRateLimited(&codedError{code: -32005, msg: "node is behind"}))
	assert.True(t, IsRateLimited(errors.New("http status 429: Too Many Requests")))
	assert.True(t, IsRateLimited(errors.New("rate limit exceeded")))
	assert.False(t, IsRateLimited(errors.New("http status 500: boom")))
	assert.False(t, IsRateLimited(&codedError{code: -32603, msg: "internal error"}))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	base := errors.New("base")
	assert.ErrorIs(t, Transient(base), base)
	assert.ErrorIs(t, Terminal(base), base)
}
