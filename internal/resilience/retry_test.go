package resilience

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoValRetriesTransient(t *testing.T) {
	attempts := 0
	val, err := DoVal(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewTransientError(errors.New("flaky read"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, attempts)
}

func TestDoValStopsOnPermanent(t *testing.T) {
	attempts := 0
	_, err := DoVal(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("malformed csv")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoValExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := DoVal(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewTransientError(errors.New("still failing"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoValHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := DoVal(ctx, fastConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewTransientError(errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoValOnRetryCallback(t *testing.T) {
	cfg := fastConfig()
	var retried []int
	cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	_, _ = DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("flaky"))
	})
	assert.Equal(t, []int{1, 2}, retried)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(syscall.EINTR))
	assert.True(t, IsTransient(io.ErrUnexpectedEOF))
	assert.True(t, IsTransient(NewTransientError(errors.New("anything"))))
	assert.True(t, IsTransient(errors.New("resource temporarily unavailable")))
	assert.False(t, IsTransient(errors.New("no such file or directory")))
	assert.False(t, IsTransient(nil))
}

func TestIsGzipFormat(t *testing.T) {
	assert.True(t, IsGzipFormat(errors.New("gzip: invalid header")))
	assert.True(t, IsGzipFormat(errors.New("gzip: invalid checksum")))
	assert.True(t, IsGzipFormat(errors.New("unexpected EOF")))
	assert.False(t, IsGzipFormat(errors.New("permission denied")))
	assert.False(t, IsGzipFormat(nil))
}
