package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryBackoffWithContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryBackoffWithContext(ctx, 3, time.Millisecond, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryBackoffWithContext() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("RetryBackoffWithContext() calls = %d, want 0", calls)
	}
}

func TestRetryBackoffWithContextStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("not configured")
	calls := 0
	_, err := RetryBackoffWithContext(context.Background(), 5, time.Millisecond, func(err error) bool {
		return !errors.Is(err, fatal)
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("RetryBackoffWithContext() error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("RetryBackoffWithContext() calls = %d, want 1", calls)
	}
}

func TestRetryBackoffWithContextRetriesTransient(t *testing.T) {
	calls := 0
	got, err := RetryBackoffWithContext(context.Background(), 3, time.Millisecond, nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("RetryBackoffWithContext() error = %v", err)
	}
	if got != 7 {
		t.Errorf("RetryBackoffWithContext() = %d, want 7", got)
	}
	if calls != 3 {
		t.Errorf("RetryBackoffWithContext() calls = %d, want 3", calls)
	}
}

func TestSleepWithContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepWithContext(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("SleepWithContext() error = %v, want context.Canceled", err)
	}
}
