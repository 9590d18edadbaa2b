package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capadapt/capadapt/pkg/errors"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryer_Success(t *testing.T) {
	calls := 0
	attempts, err := New(fastConfig()).DoWithContext(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryableError(t *testing.T) {
	calls := 0
	attempts, err := New(fastConfig()).DoWithContext(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.NewError(errors.ErrCodeNetworkError, "flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_NonRetryableError(t *testing.T) {
	calls := 0
	attempts, err := New(fastConfig()).DoWithContext(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.NewError(errors.ErrCodeAccessDenied, "denied")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.True(t, stderr.Is(err, errors.NewError(errors.ErrCodeAccessDenied, "")))

	// Plain errors carry no retry hint.
	attempts, _ = New(fastConfig()).DoWithContext(context.Background(), func(ctx context.Context) error {
		return stderr.New("plain")
	})
	assert.Equal(t, 1, attempts)
}

func TestRetryer_RetryableErrorCodes(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryableErrors = []errors.ErrorCode{errors.ErrCodeBucketNotFound}

	calls := 0
	_, err := New(cfg).DoWithContext(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.NewError(errors.ErrCodeBucketNotFound, "eventually consistent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	var retries []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}

	cause := errors.NewError(errors.ErrCodeStorageWrite, "upload failed")
	attempts, err := New(cfg).DoWithContext(context.Background(), func(ctx context.Context) error {
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retries)

	var capErr *errors.CapAdaptError
	require.True(t, stderr.As(err, &capErr))
	assert.Equal(t, errors.ErrCodeRetryExhausted, capErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestRetryer_ContextCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	attempts, err := New(cfg).DoWithContext(ctx, func(ctx context.Context) error {
		return errors.NewError(errors.ErrCodeNetworkError, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryer_Backoff(t *testing.T) {
	r := New(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 350*time.Millisecond, r.calculateDelay(3), "capped at MaxDelay")

	jittered := New(Config{InitialDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true})
	for i := 0; i < 20; i++ {
		d := jittered.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New(Config{}).Config()
	assert.Equal(t, DefaultConfig().MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultConfig().InitialDelay, cfg.InitialDelay)
	assert.Equal(t, DefaultConfig().MaxDelay, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
