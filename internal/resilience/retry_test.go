package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &StatusError{Service: "fetch", StatusCode: http.StatusServiceUnavailable}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, &StatusError{Service: "fetch", StatusCode: http.StatusNotFound}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	_, err := Retry(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("connection reset by peer")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	p := fastPolicy(4)
	p.Retryable = func(error) bool { return true }

	calls := 0
	_, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.withDefaults()
	p.Jitter = 0

	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.backoff(8))
}

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(config.RetryConfig{MaxAttempts: 7, InitialBackoffMs: 20, MaxBackoffMs: 900}, "store: connect")
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 900*time.Millisecond, p.MaxBackoff)
	assert.Equal(t, "store: connect", p.Label)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"502 wrapped", eris.Wrap(&StatusError{StatusCode: 502}, "fetch"), true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"reset", fmt.Errorf("read: connection reset by peer"), true},
		{"dns", errors.New("dial tcp: lookup x: no such host"), true},
		{"plain", errors.New("bad request body"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{Service: "openrouter", StatusCode: 503, Body: "overloaded"}
	assert.Equal(t, "openrouter: status Service Unavailable: overloaded", err.Error())
	assert.True(t, err.Transient())
}
